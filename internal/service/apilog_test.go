package service

import (
	"errors"
	"testing"
	"time"

	"dispatch-server/internal/common/logging"
	"dispatch-server/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// finishedCall builds the context api_called sees for
// ping_api(4, 'hello', name='sarah') taking 5000ms.
func finishedCall(t *testing.T, soft time.Duration) (*Context, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	start := time.Now()

	c := NewContext(nil)
	c.Set(KeyAPIName, "ping_api")
	c.Set(KeyArgs, []any{int64(4), "hello"})
	c.Set(KeyKwargs, protocol.Kwargs{{Name: "name", Value: "sarah"}})
	c.Set(KeyStartAt, start)
	c.Set(KeyEndAt, start.Add(5000*time.Millisecond))
	c.Set(KeyConf, APIConfig{SoftTimeout: soft, HardTimeout: 20 * time.Second})
	c.Set(KeyExc, nil)
	c.Set(KeyLogger, logging.NewMetaAdapter(zap.New(core), c))
	return c, logs
}

func lastEntry(t *testing.T, logs *observer.ObservedLogs) observer.LoggedEntry {
	t.Helper()
	entries := logs.TakeAll()
	require.Len(t, entries, 1)
	return entries[0]
}

func TestLogAPICallSoftTimeout(t *testing.T) {
	c, logs := finishedCall(t, 3000*time.Millisecond)
	require.NoError(t, LogAPICall(c))

	entry := lastEntry(t, logs)
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "[-/- -] Soft timeout! ping_api(4,'hello',name='sarah') 5000.0ms", entry.Message)
	assert.Equal(t, OutcomeSoftTimeout, Classify(c))
}

func TestLogAPICallBelowSoftTimeout(t *testing.T) {
	c, logs := finishedCall(t, 6000*time.Millisecond)
	require.NoError(t, LogAPICall(c))

	entry := lastEntry(t, logs)
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "[-/- -] ping_api(4,'hello',name='sarah') 5000.0ms", entry.Message)
	assert.Equal(t, OutcomeOK, Classify(c))
}

func TestLogAPICallAtSoftTimeout(t *testing.T) {
	c, logs := finishedCall(t, 5000*time.Millisecond)
	require.NoError(t, LogAPICall(c))
	assert.Equal(t, zapcore.WarnLevel, lastEntry(t, logs).Level)
}

func TestLogAPICallTimeout(t *testing.T) {
	c, logs := finishedCall(t, 3000*time.Millisecond)
	exc := &TimeoutError{Timeout: 20 * time.Second}
	c.Set(KeyExc, exc)
	require.NoError(t, LogAPICall(c))

	entry := lastEntry(t, logs)
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "[-/- -] Timeout! ping_api(4,'hello',name='sarah') 5000.0ms", entry.Message)
	require.Len(t, entry.Context, 1)
	assert.Equal(t, exc, entry.Context[0].Interface)
	assert.Equal(t, OutcomeTimeout, Classify(c))
}

func TestLogAPICallError(t *testing.T) {
	c, logs := finishedCall(t, 3000*time.Millisecond)
	c.Set(KeyExc, errors.New("other error"))
	require.NoError(t, LogAPICall(c))

	entry := lastEntry(t, logs)
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "[-/- -] other error => ping_api(4,'hello',name='sarah') 5000.0ms", entry.Message)
	assert.Equal(t, OutcomeError, Classify(c))
}

func TestLogAPICallMessageWithPercent(t *testing.T) {
	c, logs := finishedCall(t, 6000*time.Millisecond)
	c.Set(KeyArgs, []any{"100%"})
	c.Set(KeyKwargs, protocol.Kwargs(nil))
	require.NoError(t, LogAPICall(c))
	assert.Equal(t, "[-/- -] ping_api('100%') 5000.0ms", lastEntry(t, logs).Message)
}

func TestFormatCall(t *testing.T) {
	tests := []struct {
		name   string
		args   []any
		kwargs protocol.Kwargs
		want   string
	}{
		{"empty", nil, nil, "f()"},
		{"scalars", []any{nil, true, false, int64(-1), 1.5, 2.0}, nil, "f(None,True,False,-1,1.5,2.0)"},
		{"quotes", []any{"it's", `say "hi"`, `both ' "`}, nil, `f("it's",'say "hi"','both \' "')`},
		{"escapes", []any{"a\nb\\"}, nil, `f('a\nb\\')`},
		{"list", []any{[]any{int64(1), "x"}}, nil, "f([1, 'x'])"},
		{"map", []any{map[string]any{"b": int64(2), "a": int64(1)}}, nil, "f({'a': 1, 'b': 2})"},
		{"kwargs only", nil, protocol.Kwargs{{Name: "k", Value: "v"}, {Name: "n", Value: nil}}, "f(k='v',n=None)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCall("f", tt.args, tt.kwargs))
		})
	}
}
