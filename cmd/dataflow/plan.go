package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aixgo-dev/dataflow"
	"github.com/aixgo-dev/dataflow/pkg/config"
)

func newPlanCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "plan <pipeline.yaml>",
		Short: "Print the execution order and waves of a pipeline without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			return writePlan(cmd.OutOrStdout(), cfg, format)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

// writePlan prints the plan of cfg. A plan with unresolved dependencies is
// printed before the error is returned.
func writePlan(w io.Writer, cfg *config.Config, format string) error {
	p, err := dataflow.FromConfig(cfg)
	if err != nil {
		return err
	}
	plan, planErr := p.Engine.Plan()
	if plan == nil {
		return planErr
	}

	switch format {
	case "text":
		err = plan.Write(w)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(plan)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		err = enc.Encode(plan)
		if err == nil {
			err = enc.Close()
		}
	default:
		return fmt.Errorf("unknown output format %q: must be text, json or yaml", format)
	}
	if err != nil {
		return err
	}
	return planErr
}
