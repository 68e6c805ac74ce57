package service

import (
	"time"

	"go.uber.org/zap"
)

type options struct {
	logger      *zap.Logger
	softTimeout time.Duration
	hardTimeout time.Duration
	processor   Processor
}

func defaultOptions() options {
	return options{
		logger:      zap.NewNop(),
		softTimeout: DefaultSoftTimeout,
		hardTimeout: DefaultHardTimeout,
	}
}

// Option configures modules, service handlers and servers. Options that do
// not apply to the receiver are ignored.
type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTimeouts sets the service-level defaults used by APIs that do not
// override them. Non-positive values keep the package defaults.
func WithTimeouts(soft, hard time.Duration) Option {
	return func(o *options) {
		if soft > 0 {
			o.softTimeout = soft
		}
		if hard > 0 {
			o.hardTimeout = hard
		}
	}
}

func WithProcessor(p Processor) Option {
	return func(o *options) { o.processor = p }
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
