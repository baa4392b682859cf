package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2400, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.Equal(t, 8191, cfg.Embedding.MaxInputChars)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, "sqlite", cfg.Vector.Backend)
	assert.Equal(t, time.Hour, cfg.Vector.GCGrace)
	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paperchat.yaml")
	yaml := `
server:
  port: 9090
rag:
  top_k: 3
llm:
  model: from-file
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("PAPERCHAT_LLM_MODEL", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.RAG.TopK)
	assert.Equal(t, "from-env", cfg.LLM.Model)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero chunk size", func(c *Config) { c.RAG.ChunkSize = 0 }, true},
		{"overlap too large", func(c *Config) { c.RAG.ChunkOverlap = c.RAG.ChunkSize }, true},
		{"postgres without dsn", func(c *Config) { c.Vector.Backend = "postgres" }, true},
		{"unknown backend", func(c *Config) { c.Vector.Backend = "qdrant" }, true},
		{"zero gc grace", func(c *Config) { c.Vector.GCGrace = 0 }, true},
		{"negative gc grace", func(c *Config) { c.Vector.GCGrace = -time.Minute }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				RAG:    RAGConfig{ChunkSize: 2400, ChunkOverlap: 200, TopK: 5},
				Vector: VectorConfig{Backend: "sqlite", GCGrace: time.Hour},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
