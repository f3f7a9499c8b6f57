package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Server is the top-level configuration for the conversation backend.
type Server struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	Store StoreConfig `yaml:"store"`
	Model ModelConfig `yaml:"model"`

	// Workflows carries per-workflow option maps keyed by workflow name.
	Workflows map[string]map[string]any `yaml:"workflows"`
}

// StoreConfig selects and configures the thread store backend.
type StoreConfig struct {
	// Backend is one of "memory", "sqlite", "redis".
	Backend string `yaml:"backend"`

	// Path is the SQLite database file (sqlite backend).
	Path string `yaml:"path"`

	// Addr is the Redis address (redis backend).
	Addr string `yaml:"addr"`
}

// ModelConfig configures the model client.
type ModelConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "mock".
	Provider string `yaml:"provider"`

	Name        string        `yaml:"name"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() *Server {
	return &Server{
		Listen: ":8080",
		Store:  StoreConfig{Backend: "memory"},
		Model: ModelConfig{
			Provider:    "mock",
			Temperature: 0.2,
			Timeout:     60 * time.Second,
		},
	}
}

// Load reads a YAML config file over the defaults, then applies environment
// overrides. An empty path returns defaults plus environment.
//
// Environment overrides: CONVOFLOW_LISTEN, CONVOFLOW_STORE_BACKEND,
// CONVOFLOW_REDIS_ADDR, CONVOFLOW_SQLITE_PATH, CONVOFLOW_MODEL.
func Load(path string) (*Server, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Server) {
	if v := os.Getenv("CONVOFLOW_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("CONVOFLOW_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("CONVOFLOW_REDIS_ADDR"); v != "" {
		cfg.Store.Addr = v
	}
	if v := os.Getenv("CONVOFLOW_SQLITE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("CONVOFLOW_MODEL"); v != "" {
		cfg.Model.Name = v
	}
}

// Validate checks cross-field requirements.
func (s *Server) Validate() error {
	switch s.Store.Backend {
	case "memory":
	case "sqlite":
		if s.Store.Path == "" {
			return fmt.Errorf("store backend sqlite requires store.path")
		}
	case "redis":
		if s.Store.Addr == "" {
			return fmt.Errorf("store backend redis requires store.addr")
		}
	default:
		return fmt.Errorf("unknown store backend %q", s.Store.Backend)
	}

	switch s.Model.Provider {
	case "openai", "mock":
	default:
		return fmt.Errorf("unknown model provider %q", s.Model.Provider)
	}

	return nil
}

// WorkflowOptions returns the option map for a workflow as a Config.
func (s *Server) WorkflowOptions(name string) Config {
	return New(s.Workflows[name])
}
