// internal/service/module.go
package service

import (
	"dispatch-server/internal/handler"
	"go.uber.org/zap"
)

// Module is a named set of APIs that can be registered on its own and
// merged into a ServiceHandler with Extend.
type Module struct {
	apis   *handler.Registry[*API]
	logger *zap.Logger
}

func NewModule(opts ...Option) *Module {
	o := buildOptions(opts)
	return &Module{
		apis:   handler.NewRegistry[*API](),
		logger: o.logger,
	}
}

// Register adds fn under name. Registering an existing name replaces it
// and logs a warning.
func (m *Module) Register(name string, fn any, opts ...APIOption) error {
	api, err := NewAPI(name, fn, opts...)
	if err != nil {
		return err
	}
	m.add(api)
	return nil
}

// MustRegister is Register for setup code; it panics on error.
func (m *Module) MustRegister(name string, fn any, opts ...APIOption) {
	if err := m.Register(name, fn, opts...); err != nil {
		panic(err)
	}
}

func (m *Module) add(api *API) {
	if m.apis.Set(api.Name, api) {
		m.logger.Warn("api re-registered",
			zap.String("api", api.Name),
			zap.Duration("soft_timeout", api.Conf.SoftTimeout),
			zap.Duration("hard_timeout", api.Conf.HardTimeout),
			zap.Bool("with_ctx", api.Conf.WithCtx),
		)
	}
}

func (m *Module) Lookup(name string) (*API, bool) {
	return m.apis.Get(name)
}

// Names lists APIs in registration order.
func (m *Module) Names() []string {
	return m.apis.Names()
}

func (m *Module) Len() int {
	return m.apis.Len()
}

// Extend copies every API of other into m; on a name collision other wins.
func (m *Module) Extend(other *Module) {
	if other == nil || other == m {
		return
	}
	other.apis.Range(func(_ string, api *API) bool {
		m.add(api)
		return true
	})
}
