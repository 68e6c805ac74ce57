package logging

import (
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Source is a live key/value store the adapter reads caller identity from
// on every log call.
type Source interface {
	Lookup(key string) (any, bool)
}

// MapSource adapts a plain map.
type MapSource map[string]any

func (m MapSource) Lookup(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

const placeholder = "-"

// MetaAdapter prefixes every line with
// "[<client_name>/<client_version> <client_addr>]" taken from the source's
// "meta" and "env" entries, plus "log_extra" when set.
type MetaAdapter struct {
	base   *zap.Logger
	logger *zap.Logger
	src    Source
}

func NewMetaAdapter(logger *zap.Logger, src Source) *MetaAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	// one frame for the adapter method, one for log()
	return &MetaAdapter{
		base:   logger,
		logger: logger.WithOptions(zap.AddCallerSkip(2)),
		src:    src,
	}
}

func (a *MetaAdapter) Logger() *zap.Logger {
	return a.base
}

func (a *MetaAdapter) Debug(format string, args ...any) {
	a.log(zap.DebugLevel, nil, format, args)
}

func (a *MetaAdapter) Info(format string, args ...any) {
	a.log(zap.InfoLevel, nil, format, args)
}

func (a *MetaAdapter) Warn(format string, args ...any) {
	a.log(zap.WarnLevel, nil, format, args)
}

func (a *MetaAdapter) Error(format string, args ...any) {
	a.log(zap.ErrorLevel, nil, format, args)
}

// Exception logs at error level with err attached as a field.
func (a *MetaAdapter) Exception(err error, format string, args ...any) {
	a.log(zap.ErrorLevel, err, format, args)
}

func (a *MetaAdapter) log(level zapcore.Level, err error, format string, args []any) {
	if !a.logger.Core().Enabled(level) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	// samplers bucket by the message given to Check
	ce := a.logger.Check(level, a.Prefix()+" "+msg)
	if ce == nil {
		return
	}
	if err != nil {
		ce.Write(zap.Error(err))
		return
	}
	ce.Write()
}

// Prefix renders the bracketed identity block for the source's current
// state.
func (a *MetaAdapter) Prefix() string {
	name, version, addr := placeholder, placeholder, placeholder
	var extra string
	if a.src != nil {
		if meta, ok := a.src.Lookup("meta"); ok {
			name = lookupString(meta, "client_name", placeholder)
			version = lookupString(meta, "client_version", placeholder)
		}
		if env, ok := a.src.Lookup("env"); ok {
			addr = lookupString(env, "client_addr", placeholder)
		}
		if v, ok := a.src.Lookup("log_extra"); ok && v != nil {
			extra = fmt.Sprint(v)
		}
	}

	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(name)
	b.WriteByte('/')
	b.WriteString(version)
	b.WriteByte(' ')
	b.WriteString(addr)
	if extra != "" {
		b.WriteByte(' ')
		b.WriteString(extra)
	}
	b.WriteByte(']')
	return b.String()
}

// lookupString reads key out of the map-like container v.
func lookupString(v any, key, def string) string {
	var (
		raw any
		ok  bool
	)
	switch c := v.(type) {
	case map[string]string:
		var s string
		s, ok = c[key]
		raw = s
	case map[string]any:
		raw, ok = c[key]
	case Source:
		raw, ok = c.Lookup(key)
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
			return def
		}
		e := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !e.IsValid() {
			return def
		}
		raw, ok = e.Interface(), true
	}
	if !ok || raw == nil {
		return def
	}
	s := fmt.Sprint(raw)
	if s == "" {
		return def
	}
	return s
}
