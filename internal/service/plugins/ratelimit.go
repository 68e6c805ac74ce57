// Package plugins holds optional hooks a ServiceHandler can Use.
package plugins

import (
	"strings"
	"sync"
	"time"

	"dispatch-server/internal/config"
	"dispatch-server/internal/hook"
	"dispatch-server/internal/protocol"
	"dispatch-server/internal/service"
	"golang.org/x/time/rate"
)

const defaultIdleTTL = 10 * time.Minute

// RateLimit applies a token bucket per client address and rejects calls
// over budget before the handler runs.
type RateLimit struct {
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
	byKey   map[string]*limitEntry
	hits    uint64
	idleTTL time.Duration
	now     func() time.Time
}

type limitEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimit returns nil when the limit is disabled or invalid; a nil
// *RateLimit allows everything.
func NewRateLimit(cfg config.RateLimitConfig) *RateLimit {
	if !cfg.Enabled || cfg.RPS <= 0 || cfg.Burst <= 0 {
		return nil
	}
	return &RateLimit{
		limit:   rate.Limit(cfg.RPS),
		burst:   cfg.Burst,
		byKey:   make(map[string]*limitEntry),
		idleTTL: defaultIdleTTL,
		now:     time.Now,
	}
}

// Allow reports whether one token can be consumed for key at now.
func (l *RateLimit) Allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byKey[key]
	if !ok {
		e = &limitEntry{
			limiter:  rate.NewLimiter(l.limit, l.burst),
			lastSeen: now,
		}
		l.byKey[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byKey {
			if v.lastSeen.Before(cutoff) {
				delete(l.byKey, k)
			}
		}
	}
	return allowed
}

// Hook binds the limiter to before_api_call.
func (l *RateLimit) Hook() hook.Hook {
	return service.BeforeAPICall(l.check)
}

func (l *RateLimit) check(c *service.Context) error {
	if l == nil {
		return nil
	}
	if !l.Allow(c.ClientAddr(), l.now()) {
		return protocol.Faultf(protocol.FaultRateLimited, "API '%s' rate limited", c.APIName())
	}
	return nil
}
