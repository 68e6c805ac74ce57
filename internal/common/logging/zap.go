package logging

import (
	"strings"

	"go.uber.org/zap"
)

// NewLogger builds the process logger. env "prod" logs JSON at info level;
// any other env logs to the console at debug level.
func NewLogger(name string, env string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if strings.EqualFold(env, "prod") {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if name != "" {
		logger = logger.Named(name)
	}
	return logger, nil
}
