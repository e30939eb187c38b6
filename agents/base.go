// Package agents provides the concrete agents available to pipeline files.
// Each file registers its roles with the default registry on init, so a
// blank import of this package makes every role below buildable from YAML.
package agents

import (
	"context"
	"log/slog"
	"time"

	agentdef "github.com/aixgo-dev/dataflow/internal/agent"
)

// Roles registered by this package.
const (
	RoleNumberSource   = "number_source"
	RoleTextSource     = "text_source"
	RoleArraySource    = "array_source"
	RoleOffset         = "offset"
	RoleMultiplier     = "multiplier"
	RoleDivider        = "divider"
	RoleFilter         = "filter"
	RoleAccumulator    = "accumulator"
	RoleReducer        = "reducer"
	RoleCombiner       = "combiner"
	RoleFormatter      = "formatter"
	RoleCollector      = "collector"
	RoleNumberStream   = "number_stream"
	RoleStreamScaler   = "stream_scaler"
	RoleStreamSum      = "stream_sum"
	RoleHybrid         = "hybrid"
	RoleRedisSink      = "redis_sink"
	RoleRedisBatchSink = "redis_batch_sink"
)

func agentLogger(def agentdef.AgentDef) *slog.Logger {
	return slog.Default().With("agent", def.Name, "role", def.Role)
}

// pause waits for d, returning early with the context's error.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
