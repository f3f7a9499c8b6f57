package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/pkg/convoflow/config"
)

func TestConfig_TypedAccessors(t *testing.T) {
	c := config.New(map[string]any{
		"name":    "support",
		"retries": 3,
		"enabled": true,
		"ratio":   0.5,
		"timeout": "30s",
		"budget":  45, // seconds
	})

	assert.Equal(t, "support", c.String("name", "fallback"))
	assert.Equal(t, "fallback", c.String("missing", "fallback"))
	assert.Equal(t, 3, c.Int("retries", 0))
	assert.Equal(t, 9, c.Int("name", 9)) // wrong type -> default
	assert.True(t, c.Bool("enabled", false))
	assert.Equal(t, 0.5, c.Float("ratio", 0))
	assert.Equal(t, 30*time.Second, c.Duration("timeout", 0))
	assert.Equal(t, 45*time.Second, c.Duration("budget", 0))
	assert.True(t, c.Has("name"))
	assert.False(t, c.Has("missing"))
}

func TestConfig_NilMap(t *testing.T) {
	c := config.New(nil)
	assert.Equal(t, "d", c.String("k", "d"))
	assert.NotNil(t, c.Raw())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "mock", cfg.Model.Provider)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convoflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
store:
  backend: sqlite
  path: ./threads.db
model:
  provider: openai
  name: gpt-4o-mini
  timeout: 45s
workflows:
  support:
    refund_limit: 200
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "./threads.db", cfg.Store.Path)
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, 45*time.Second, cfg.Model.Timeout)

	opts := cfg.WorkflowOptions("support")
	assert.Equal(t, 200, opts.Int("refund_limit", 0))

	// Unknown workflow yields an empty Config, not a panic.
	assert.False(t, cfg.WorkflowOptions("other").Has("refund_limit"))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONVOFLOW_LISTEN", ":7070")
	t.Setenv("CONVOFLOW_STORE_BACKEND", "redis")
	t.Setenv("CONVOFLOW_REDIS_ADDR", "localhost:6379")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "localhost:6379", cfg.Store.Addr)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown backend",
			yaml: "store:\n  backend: dynamo\n",
			want: "unknown store backend",
		},
		{
			name: "sqlite without path",
			yaml: "store:\n  backend: sqlite\n",
			want: "requires store.path",
		},
		{
			name: "redis without addr",
			yaml: "store:\n  backend: redis\n",
			want: "requires store.addr",
		},
		{
			name: "unknown provider",
			yaml: "model:\n  provider: homegrown\n",
			want: "unknown model provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			_, err := config.Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
