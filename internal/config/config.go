// Package config loads and validates bridge configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper. It is
// constructed once at startup and passed by value to the components that
// need it; nothing reads ambient configuration state after Load returns.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port       int `mapstructure:"port"`
	MaxBodyMiB int `mapstructure:"max_body_mib"`
}

// WorkerConfig selects the external worker process and bounds its runtime.
type WorkerConfig struct {
	Executable     string `mapstructure:"executable"`
	Script         string `mapstructure:"script"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. Environment variables use the
// BRIDGE prefix with dots replaced by underscores, e.g.
// BRIDGE_WORKER_EXECUTABLE overrides worker.executable.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	// Payloads may embed binary-as-text blobs, so the cap is generous.
	v.SetDefault("server.max_body_mib", 64)
	v.SetDefault("worker.executable", "python3")
	v.SetDefault("worker.script", "main.py")
	v.SetDefault("worker.timeout_seconds", 120)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.MaxBodyMiB <= 0 {
		return fmt.Errorf("server.max_body_mib must be > 0")
	}
	if c.Worker.Executable == "" {
		return fmt.Errorf("worker.executable must be set")
	}
	if c.Worker.TimeoutSeconds <= 0 {
		return fmt.Errorf("worker.timeout_seconds must be > 0")
	}
	return nil
}

// WorkerTimeout converts the configured budget into a duration.
func (c Config) WorkerTimeout() time.Duration {
	return time.Duration(c.Worker.TimeoutSeconds) * time.Second
}

// MaxBodyBytes converts the configured request body cap into bytes.
func (c Config) MaxBodyBytes() int64 {
	return int64(c.Server.MaxBodyMiB) << 20
}
