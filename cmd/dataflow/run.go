package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aixgo-dev/dataflow"
	"github.com/aixgo-dev/dataflow/agent"
	"github.com/aixgo-dev/dataflow/agents"
	tracing "github.com/aixgo-dev/dataflow/internal/observability"
	"github.com/aixgo-dev/dataflow/pkg/config"
	"github.com/aixgo-dev/dataflow/pkg/observability"
)

const shutdownTimeout = 10 * time.Second

type runOptions struct {
	metricsPort int
	quiet       bool
}

func (o *runOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&o.metricsPort, "metrics-port", 0, "serve /metrics and /health on this port (overrides the file)")
	cmd.Flags().BoolVarP(&o.quiet, "quiet", "q", false, "do not print produced values")
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <pipeline.yaml>",
		Short: "Run a pipeline file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			return execute(cmd.Context(), cmd.OutOrStdout(), cfg, opts)
		},
	}
	opts.addFlags(cmd)
	return cmd
}

// execute runs cfg until its schedule ends or the process is interrupted,
// then prints every agent's produced value.
func execute(ctx context.Context, out io.Writer, cfg *config.Config, opts *runOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := cfg.Observability
	if opts.metricsPort != 0 {
		obs.MetricsPort = opts.metricsPort
	}

	tracingOn, err := initTracing(obs)
	if err != nil {
		return err
	}
	if tracingOn {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tracing.Shutdown(sctx); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	p, err := dataflow.FromConfig(cfg,
		dataflow.WithMetrics(obs.MetricsPort != 0),
		dataflow.WithTracing(tracingOn),
	)
	if err != nil {
		return err
	}

	if obs.MetricsPort != 0 {
		srv := startObservability(obs.MetricsPort, p.Engine.Agents())
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				slog.Warn("observability server shutdown failed", "error", err)
			}
		}()
	}

	start := time.Now()
	err = p.Run(ctx)
	if errors.Is(err, context.Canceled) {
		slog.Info("run interrupted", "duration", time.Since(start))
	} else if err != nil {
		return err
	}

	slog.Info("run finished", "runner", cfg.Runner, "schedule", cfg.Schedule.Name, "duration", time.Since(start))
	if !opts.quiet {
		return printResults(out, p.Engine)
	}
	return nil
}

// initTracing starts the exporter named by the file. When the file names none,
// the standard OTEL_* environment variables decide.
func initTracing(obs config.ObservabilityConfig) (bool, error) {
	if obs.TracingExporter == "" || obs.TracingExporter == "none" {
		return tracing.InitFromEnv()
	}
	return true, tracing.Init(tracing.Config{
		ServiceName:  obs.ServiceName,
		Enabled:      true,
		ExporterType: obs.TracingExporter,
		OTLPEndpoint: tracing.DefaultOTLPEndpoint,
		Insecure:     true,
	})
}

func startObservability(port int, all []agent.Agent) *observability.Server {
	observability.SetVersion(dataflow.Version)
	observability.InitMetrics()
	hc := observability.InitHealthChecker()
	for _, check := range storeChecks(all) {
		hc.RegisterCheck(check)
	}

	srv := observability.NewServer(port)
	go func() {
		slog.Info("starting observability server", "port", port)
		if err := srv.Start(); err != nil {
			slog.Error("observability server stopped", "error", err)
		}
	}()
	return srv
}

// printResults writes "name: value" for every agent, in execution order.
func printResults(w io.Writer, e dataflow.Engine) error {
	plan, err := e.Plan()
	if err != nil {
		return err
	}
	byName := make(map[string]any)
	for _, a := range e.Agents() {
		byName[a.Name()] = agent.ProducedBy(a)
	}
	for _, name := range plan.Order {
		if _, err := fmt.Fprintf(w, "%s: %v\n", name, byName[name]); err != nil {
			return err
		}
	}
	return nil
}

// storeChecks returns a health check for every redis sink among all.
func storeChecks(all []agent.Agent) []*observability.HealthCheck {
	var checks []*observability.HealthCheck
	for _, a := range all {
		if sink, ok := agents.RedisSinkOf(a); ok {
			checks = append(checks, observability.StoreCheck("redis:"+a.Name(), sink.Ping))
		}
	}
	return checks
}
