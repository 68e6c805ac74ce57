// Package system provides the built-in diagnostic APIs.
package system

import (
	"context"

	"dispatch-server/internal/db"
	"dispatch-server/internal/service"
	"go.uber.org/zap"
)

type StatsLoader interface {
	Load(ctx context.Context, api string) (map[string]int64, error)
}

var _ StatsLoader = (*db.StatsDao)(nil)

// New returns a module with ping, echo and whoami, plus api_stats when
// stats is non-nil.
func New(logger *zap.Logger, stats StatsLoader) *service.Module {
	m := service.NewModule(service.WithLogger(logger))
	m.MustRegister("ping", Ping)
	m.MustRegister("echo", Echo)
	m.MustRegister("whoami", WhoAmI, service.WithCtx())
	if stats != nil {
		m.MustRegister("api_stats", func(c *service.Context, api string) (map[string]int64, error) {
			return stats.Load(c, api)
		}, service.WithCtx())
	}
	return m
}

func Ping() string {
	return "pong"
}

// Echo returns its positional arguments.
func Echo(args ...any) []any {
	if args == nil {
		return []any{}
	}
	return args
}

// WhoAmI reports what the server knows about the calling connection.
func WhoAmI(c *service.Context) map[string]any {
	return map[string]any{
		"client_addr": c.ClientAddr(),
		"client_port": c.ClientPort(),
		"meta":        c.Meta(),
		"trace_id":    c.GetOr(service.KeyTraceID, ""),
	}
}
