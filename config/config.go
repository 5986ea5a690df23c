// Package config loads runtime configuration from file and environment.
// Files are looked up as agentrun.{yaml,toml,json} in the working directory
// and ~/.agentrun; every key can be overridden through AGENTRUN_* environment
// variables (nested keys use underscores, e.g. AGENTRUN_SESSION_BACKEND).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	// Provider selects the model gateway: "openai", "anthropic" or "mock".
	Provider string `mapstructure:"provider"`
	// Model is the provider-specific model identifier.
	Model string `mapstructure:"model"`

	Agent   AgentConfig   `mapstructure:"agent"`
	Session SessionConfig `mapstructure:"session"`
	Log     LogConfig     `mapstructure:"log"`
}

// AgentConfig tunes executor behaviour.
type AgentConfig struct {
	Name             string        `mapstructure:"name"`
	SystemPrompt     string        `mapstructure:"system_prompt"`
	NextStepPrompt   string        `mapstructure:"next_step_prompt"`
	MaxSteps         int           `mapstructure:"max_steps"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	StreamTimeout    time.Duration `mapstructure:"stream_timeout"`
}

// SessionConfig selects and tunes the session store backend.
type SessionConfig struct {
	// Backend is one of "memory", "redis", "mysql".
	Backend     string        `mapstructure:"backend"`
	RedisURL    string        `mapstructure:"redis_url"`
	MySQLDSN    string        `mapstructure:"mysql_dsn"`
	MaxMessages int           `mapstructure:"max_messages"`
	TTL         time.Duration `mapstructure:"ttl"`
}

// LogConfig tunes structured logging.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is "text" or "json".
	Format string `mapstructure:"format"`
}

// Load reads configuration, applying defaults, an optional explicit file
// path, discovered config files and environment overrides, in that order of
// increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENTRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("agentrun")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.agentrun")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
		// No config file is fine; defaults plus env apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects impossible combinations early, before any wiring happens.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openai", "anthropic", "mock":
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider)
	}

	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Session.RedisURL == "" {
			return fmt.Errorf("config: session backend %q requires session.redis_url", c.Session.Backend)
		}
	case "mysql":
		if c.Session.MySQLDSN == "" {
			return fmt.Errorf("config: session backend %q requires session.mysql_dsn", c.Session.Backend)
		}
	default:
		return fmt.Errorf("config: unknown session backend %q", c.Session.Backend)
	}

	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("config: agent.max_steps must be positive, got %d", c.Agent.MaxSteps)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "openai")
	v.SetDefault("model", "")

	v.SetDefault("agent.name", "agentrun")
	v.SetDefault("agent.system_prompt", "")
	v.SetDefault("agent.next_step_prompt", "")
	v.SetDefault("agent.max_steps", 20)
	v.SetDefault("agent.failure_threshold", 3)
	v.SetDefault("agent.stream_timeout", 5*time.Minute)

	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.max_messages", 100)
	v.SetDefault("session.ttl", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
