package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aixgo-dev/dataflow/examples"
	"github.com/aixgo-dev/dataflow/pkg/config"
)

func newDemoCmd() *cobra.Command {
	opts := &runOptions{}
	var planOnly bool
	cmd := &cobra.Command{
		Use:   "demo [name]",
		Short: "Run a bundled example pipeline, or list them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, name := range examples.Names() {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			data, err := examples.Read(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.NewLoader(&config.OSFileReader{}).Parse(data)
			if err != nil {
				return err
			}
			if planOnly {
				return writePlan(out, cfg, "text")
			}
			return execute(cmd.Context(), out, cfg, opts)
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().BoolVar(&planOnly, "plan", false, "print the plan instead of running")
	return cmd
}
