package plugins

import (
	"context"
	"fmt"
	"time"

	"dispatch-server/internal/db"
	"dispatch-server/internal/hook"
	"dispatch-server/internal/service"
)

const statsTimeout = time.Second

// Stats persists per-API outcome counters in redis.
type Stats struct {
	dao *db.StatsDao
}

func NewStats(dao *db.StatsDao) *Stats {
	return &Stats{dao: dao}
}

// Hook binds the counter to api_called.
func (s *Stats) Hook() hook.Hook {
	return service.APICalled(s.record)
}

func (s *Stats) record(c *service.Context) error {
	// the call context may already be past its deadline
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c), statsTimeout)
	defer cancel()

	api := c.APIName()
	if _, err := s.dao.Incr(ctx, api, string(service.Classify(c))); err != nil {
		return fmt.Errorf("record stats for %s: %w", api, err)
	}
	return nil
}
