package cmd

import (
	"fmt"
	"os"

	"github.com/agentrun-io/agentrun"
	"github.com/agentrun-io/agentrun/config"
	"github.com/agentrun-io/agentrun/core"
	"github.com/agentrun-io/agentrun/engine"
	"github.com/agentrun-io/agentrun/logging"
	"github.com/agentrun-io/agentrun/model"
	"github.com/agentrun-io/agentrun/model/anthropic"
	"github.com/agentrun-io/agentrun/model/openai"
	"github.com/agentrun-io/agentrun/session"
	"github.com/agentrun-io/agentrun/session/gormstore"
	sessionredis "github.com/agentrun-io/agentrun/session/redis"
	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
)

// wireApp assembles a fully configured AgentRun from the config file and
// environment.
func wireApp(configPath string) (*agentrun.AgentRun, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Log)

	gateway, err := newGateway(cfg)
	if err != nil {
		return nil, err
	}

	store, err := newSessionStore(cfg.Session)
	if err != nil {
		return nil, err
	}

	app := agentrun.New(gateway, func(o *agentrun.Options) {
		o.AgentName = cfg.Agent.Name
		o.SystemPrompt = cfg.Agent.SystemPrompt
		o.NextStepPrompt = cfg.Agent.NextStepPrompt
		o.MaxSteps = cfg.Agent.MaxSteps
		o.FailureThreshold = cfg.Agent.FailureThreshold
		o.SessionStore = store
		o.EngineConfig = engine.Config{StreamTimeout: cfg.Agent.StreamTimeout}
		o.Logger = logger
	})
	return app, nil
}

func newLogger(cfg config.LogConfig) logging.Logger {
	lvl := logging.LogLevelInfo
	switch cfg.Level {
	case "debug":
		lvl = logging.LogLevelDebug
	case "warn":
		lvl = logging.LogLevelWarn
	case "error":
		lvl = logging.LogLevelError
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  lvl,
		Format: cfg.Format,
		Output: os.Stderr,
	})
}

func newGateway(cfg *config.Config) (model.Gateway, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewGateway(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		}), nil
	case "anthropic":
		return anthropic.NewGateway(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
		}), nil
	case "mock":
		return model.NewMockGateway(), nil
	default:
		return nil, fmt.Errorf("wire gateway: unknown provider %q", cfg.Provider)
	}
}

func newSessionStore(cfg config.SessionConfig) (core.SessionStore, error) {
	switch cfg.Backend {
	case "memory":
		return session.NewInMemoryStore(func(o *session.InMemoryOptions) {
			o.MaxMessages = cfg.MaxMessages
			o.TTL = cfg.TTL
		}), nil
	case "redis":
		store, err := sessionredis.NewFromURL(cfg.RedisURL, func(o *sessionredis.Options) {
			o.MaxMessages = cfg.MaxMessages
			o.TTL = cfg.TTL
		})
		if err != nil {
			return nil, fmt.Errorf("wire session store: %w", err)
		}
		return store, nil
	case "mysql":
		store, err := gormstore.NewMySQL(cfg.MySQLDSN, func(o *gormstore.Options) {
			o.MaxMessages = cfg.MaxMessages
			o.TTL = cfg.TTL
		})
		if err != nil {
			return nil, fmt.Errorf("wire session store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("wire session store: unknown backend %q", cfg.Backend)
	}
}
