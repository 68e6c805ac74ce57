// internal/service/context.go
package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"dispatch-server/internal/common/logging"
	"dispatch-server/internal/protocol"
	orderedmap "github.com/wk8/go-ordered-map"
)

// Well-known context keys.
const (
	KeyClientAddr = "client_addr"
	KeyClientPort = "client_port"
	KeyMeta       = "meta"
	KeyEnv        = "env"
	KeyArgs       = "args"
	KeyKwargs     = "kwargs"
	KeyAPIName    = "api_name"
	KeyStartAt    = "start_at"
	KeyEndAt      = "end_at"
	KeyConf       = "conf"
	KeyLogger     = "logger"
	KeyExc        = "exc"
	KeyLogExtra   = "log_extra"
	KeyTraceID    = "trace_id"
)

var ErrKeyNotFound = errors.New("key not found")

// Context is an insertion-ordered key/value store threaded through hooks,
// handlers and the call logger. It embeds the context.Context of the
// current call.
//
// A Context is owned by one connection and is not safe for concurrent use.
type Context struct {
	context.Context

	values *orderedmap.OrderedMap
}

func NewContext(parent context.Context) *Context {
	if parent == nil {
		parent = context.Background()
	}
	return &Context{Context: parent, values: orderedmap.New()}
}

func (c *Context) Set(key string, value any) {
	c.values.Set(key, value)
}

// Get returns the value stored under key or an error wrapping
// ErrKeyNotFound.
func (c *Context) Get(key string) (any, error) {
	v, ok := c.values.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return v, nil
}

func (c *Context) GetOr(key string, def any) any {
	if v, ok := c.values.Get(key); ok {
		return v
	}
	return def
}

// Lookup implements logging.Source.
func (c *Context) Lookup(key string) (any, bool) {
	return c.values.Get(key)
}

func (c *Context) Has(key string) bool {
	_, ok := c.values.Get(key)
	return ok
}

func (c *Context) Delete(key string) {
	c.values.Delete(key)
}

func (c *Context) Len() int {
	return c.values.Len()
}

func (c *Context) Keys() []string {
	keys := make([]string, 0, c.values.Len())
	for pair := c.values.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key.(string))
	}
	return keys
}

// Range visits entries in insertion order until fn returns false.
func (c *Context) Range(fn func(key string, value any) bool) {
	for pair := c.values.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key.(string), pair.Value) {
			return
		}
	}
}

// Map returns a snapshot of the entries.
func (c *Context) Map() map[string]any {
	m := make(map[string]any, c.values.Len())
	c.Range(func(k string, v any) bool {
		m[k] = v
		return true
	})
	return m
}

// Update sets every entry of m, in key order.
func (c *Context) Update(m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.Set(k, m[k])
	}
}

// Equal compares the entries with m as plain mappings; order is ignored.
func (c *Context) Equal(m map[string]any) bool {
	if c.values.Len() != len(m) {
		return false
	}
	equal := true
	c.Range(func(k string, v any) bool {
		other, ok := m[k]
		if !ok || !reflect.DeepEqual(v, other) {
			equal = false
		}
		return equal
	})
	return equal
}

// ClearExcept drops every entry whose key is not listed.
func (c *Context) ClearExcept(keys ...string) {
	keep := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keep[k] = struct{}{}
	}
	var drop []any
	for pair := c.values.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := keep[pair.Key.(string)]; !ok {
			drop = append(drop, pair.Key)
		}
	}
	for _, k := range drop {
		c.values.Delete(k)
	}
}

func (c *Context) String() string {
	return fmt.Sprintf("Context%v", c.Keys())
}

func (c *Context) stringValue(key string) string {
	s, _ := c.GetOr(key, "").(string)
	return s
}

func (c *Context) APIName() string {
	return c.stringValue(KeyAPIName)
}

func (c *Context) Args() []any {
	args, _ := c.GetOr(KeyArgs, nil).([]any)
	return args
}

func (c *Context) Kwargs() protocol.Kwargs {
	kwargs, _ := c.GetOr(KeyKwargs, nil).(protocol.Kwargs)
	return kwargs
}

func (c *Context) StartAt() time.Time {
	t, _ := c.GetOr(KeyStartAt, time.Time{}).(time.Time)
	return t
}

func (c *Context) EndAt() time.Time {
	t, _ := c.GetOr(KeyEndAt, time.Time{}).(time.Time)
	return t
}

func (c *Context) Conf() APIConfig {
	conf, _ := c.GetOr(KeyConf, APIConfig{}).(APIConfig)
	return conf
}

func (c *Context) Meta() protocol.Meta {
	meta, _ := c.GetOr(KeyMeta, nil).(protocol.Meta)
	return meta
}

// Env returns the connection context a call context was built from.
func (c *Context) Env() *Context {
	env, _ := c.GetOr(KeyEnv, nil).(*Context)
	return env
}

func (c *Context) Logger() *logging.MetaAdapter {
	if l, ok := c.GetOr(KeyLogger, nil).(*logging.MetaAdapter); ok {
		return l
	}
	return logging.NewMetaAdapter(nil, c)
}

func (c *Context) Exc() error {
	err, _ := c.GetOr(KeyExc, nil).(error)
	return err
}

// ClientAddr reads client_addr from the context itself or from its env.
func (c *Context) ClientAddr() string {
	if addr := c.stringValue(KeyClientAddr); addr != "" {
		return addr
	}
	if env := c.Env(); env != nil {
		return env.stringValue(KeyClientAddr)
	}
	return ""
}

func (c *Context) ClientPort() string {
	if port := c.GetOr(KeyClientPort, nil); port != nil {
		return fmt.Sprint(port)
	}
	if env := c.Env(); env != nil {
		if port := env.GetOr(KeyClientPort, nil); port != nil {
			return fmt.Sprint(port)
		}
	}
	return ""
}
