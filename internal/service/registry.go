// internal/service/registry.go
package service

import (
	"time"

	"dispatch-server/internal/hook"
	"go.uber.org/zap"
)

// APIProvider is what a Dispatcher resolves calls against. Lookup returns
// the API as registered; unset timeouts are filled from Timeouts per call.
type APIProvider interface {
	Lookup(name string) (*API, bool)
	Hooks() *hook.Registry
	Timeouts() (soft, hard time.Duration)
}

// ServiceHandler is the API table of one service together with its hooks
// and default timeouts.
type ServiceHandler struct {
	*Module

	name   string
	soft   time.Duration
	hard   time.Duration
	hooks  *hook.Registry
	logger *zap.Logger
}

// NewServiceHandler creates a handler with the call-logging hook already
// bound to api_called.
func NewServiceHandler(name string, opts ...Option) *ServiceHandler {
	o := buildOptions(opts)
	h := &ServiceHandler{
		Module: NewModule(opts...),
		name:   name,
		soft:   o.softTimeout,
		hard:   o.hardTimeout,
		hooks:  hook.NewRegistry(),
		logger: o.logger,
	}
	_ = h.Use(APICalled(LogAPICall))
	return h
}

func (h *ServiceHandler) Name() string {
	return h.name
}

// Use subscribes hk to the event it was defined for.
func (h *ServiceHandler) Use(hk hook.Hook) error {
	if err := h.hooks.Use(hk); err != nil {
		h.logger.Warn("hook rejected", zap.String("event", hk.Event), zap.Error(err))
		return err
	}
	return nil
}

func (h *ServiceHandler) Hooks() *hook.Registry {
	return h.hooks
}

func (h *ServiceHandler) Timeouts() (soft, hard time.Duration) {
	return h.soft, h.hard
}
