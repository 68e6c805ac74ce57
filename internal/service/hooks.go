package service

import (
	"fmt"

	"dispatch-server/internal/hook"
)

const (
	EventBeforeAPICall = "before_api_call"
	EventAPICalled     = "api_called"
)

// BeforeAPICall binds fn to before_api_call. Returning an error aborts the
// call as if the handler had failed with it.
func BeforeAPICall(fn func(c *Context) error) hook.Hook {
	return hook.Define(EventBeforeAPICall, contextHook(fn))
}

// APICalled binds fn to api_called, fired after every call.
func APICalled(fn func(c *Context) error) hook.Hook {
	return hook.Define(EventAPICalled, contextHook(fn))
}

func contextHook(fn func(c *Context) error) hook.Func {
	if fn == nil {
		return nil
	}
	return func(payload ...any) (any, error) {
		if len(payload) == 0 {
			return nil, fmt.Errorf("hook: missing context payload")
		}
		c, ok := payload[0].(*Context)
		if !ok {
			return nil, fmt.Errorf("hook: payload is %T, not *service.Context", payload[0])
		}
		return nil, fn(c)
	}
}
