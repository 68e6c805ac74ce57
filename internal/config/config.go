package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RedisConfig struct {
	Addr         string `json:"addr" yaml:"addr"`
	Password     string `json:"password" yaml:"password"`
	DB           int    `json:"db" yaml:"db"`
	PoolSize     int    `json:"pool_size" yaml:"pool_size"`
	MinIdleConns int    `json:"min_idle_conns" yaml:"min_idle_conns"`
	// StatsKeyPrefix namespaces the per-API call counters.
	StatsKeyPrefix string `json:"stats_key_prefix" yaml:"stats_key_prefix"`
}

type RateLimitConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	RPS     float64 `json:"rps" yaml:"rps"`
	Burst   int     `json:"burst" yaml:"burst"`
}

type ServerConfig struct {
	ServiceName string `json:"service_name" yaml:"service_name"`
	// Env selects the log format: "prod" is JSON, anything else is console.
	Env         string `json:"env" yaml:"env"`
	ListenAddr  string `json:"listen_addr" yaml:"listen_addr"`
	WSAddr      string `json:"ws_addr" yaml:"ws_addr"`
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`

	SoftTimeoutMs  int `json:"soft_timeout_ms" yaml:"soft_timeout_ms"`
	HardTimeoutMs  int `json:"hard_timeout_ms" yaml:"hard_timeout_ms"`
	MaxFrameSize   int `json:"max_frame_size" yaml:"max_frame_size"`
	ReadTimeoutSec int `json:"read_timeout_sec" yaml:"read_timeout_sec"`

	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Redis     RedisConfig     `json:"redis" yaml:"redis"`
}

var (
	ErrMissingServiceName = errors.New("service_name is required")
	ErrMissingListenAddr  = errors.New("listen_addr or ws_addr is required")
	ErrTimeoutOrder       = errors.New("soft_timeout_ms must not exceed hard_timeout_ms")
)

func Defaults() ServerConfig {
	return ServerConfig{
		ServiceName:   "DispatchService",
		Env:           "dev",
		ListenAddr:    ":6000",
		SoftTimeoutMs: 3000,
		HardTimeoutMs: 20000,
		MaxFrameSize:  16 * 1024 * 1024,
		RateLimit: RateLimitConfig{
			RPS:   30,
			Burst: 60,
		},
		Redis: RedisConfig{
			StatsKeyPrefix: "api:stats",
		},
	}
}

func (c ServerConfig) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return ErrMissingServiceName
	}
	if c.ListenAddr == "" && c.WSAddr == "" {
		return ErrMissingListenAddr
	}
	if c.SoftTimeoutMs > 0 && c.HardTimeoutMs > 0 && c.SoftTimeoutMs > c.HardTimeoutMs {
		return ErrTimeoutOrder
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate_limit: rps and burst must be positive when enabled")
	}
	return nil
}

func (c ServerConfig) SoftTimeout() time.Duration {
	return time.Duration(c.SoftTimeoutMs) * time.Millisecond
}

func (c ServerConfig) HardTimeout() time.Duration {
	return time.Duration(c.HardTimeoutMs) * time.Millisecond
}

func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSec) * time.Second
}

// Load decodes the file at path into out. Files ending in .yaml or .yml are
// YAML, everything else is JSON.
func Load(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, out)
	default:
		err = json.Unmarshal(data, out)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadServer loads a server config over Defaults and validates it.
func LoadServer(path string) (ServerConfig, error) {
	cfg := Defaults()
	if err := Load(path, &cfg); err != nil {
		return ServerConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
