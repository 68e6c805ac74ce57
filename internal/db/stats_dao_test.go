package db

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// memHash is an in-memory HashClient.
type memHash struct {
	data map[string]map[string]int64
	err  error
}

func newMemHash() *memHash {
	return &memHash{data: map[string]map[string]int64{}}
}

func (m *memHash) HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "hincrby", key, field, incr)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	if m.data[key] == nil {
		m.data[key] = map[string]int64{}
	}
	m.data[key][field] += incr
	cmd.SetVal(m.data[key][field])
	return cmd
}

func (m *memHash) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	cmd := redis.NewMapStringStringCmd(ctx, "hgetall", key)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	out := map[string]string{}
	for field, n := range m.data[key] {
		out[field] = strconv.FormatInt(n, 10)
	}
	out["junk"] = "not a number"
	cmd.SetVal(out)
	return cmd
}

func TestStatsDao(t *testing.T) {
	ctx := context.Background()
	hash := newMemHash()
	dao := NewStatsDao(hash, "")

	n, err := dao.Incr(ctx, "ping", "ok")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, _ = dao.Incr(ctx, "ping", "ok")
	_, _ = dao.Incr(ctx, "ping", "error")
	assert.Contains(t, hash.data, "api:stats:ping")

	stats, err := dao.Load(ctx, "ping")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"ok": 2, "error": 1}, stats)

	stats, err = dao.Load(ctx, "never")
	require.NoError(t, err)
	assert.Empty(t, stats)

	hash.err = errors.New("down")
	_, err = dao.Incr(ctx, "ping", "ok")
	assert.EqualError(t, err, "down")
	_, err = dao.Load(ctx, "ping")
	assert.Error(t, err)
}

func TestKeyAPIStats(t *testing.T) {
	assert.Equal(t, "api:stats:ping", KeyAPIStats("", "ping"))
	assert.Equal(t, "svc:calls:ping", KeyAPIStats("svc:calls", "ping"))
}

type fakePinger struct {
	calls chan struct{}
}

func (p *fakePinger) Ping(ctx context.Context) *redis.StatusCmd {
	select {
	case p.calls <- struct{}{}:
	default:
	}
	cmd := redis.NewStatusCmd(ctx, "ping")
	cmd.SetErr(errors.New("unreachable"))
	return cmd
}

func TestStartHealthCheckReportsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	pinger := &fakePinger{calls: make(chan struct{}, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartHealthCheck(ctx, pinger, "127.0.0.1:6379", zap.New(core), 5*time.Millisecond)

	select {
	case <-pinger.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("health check never pinged")
	}
	assert.Eventually(t, func() bool {
		return logs.FilterMessage("redis ping failed").Len() > 0
	}, 2*time.Second, 5*time.Millisecond)
}
