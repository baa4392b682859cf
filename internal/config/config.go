package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for PaperChat
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	RAG        RAGConfig        `mapstructure:"rag"`
	Vector     VectorConfig     `mapstructure:"vector"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Literature LiteratureConfig `mapstructure:"literature"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	BaseURL      string   `mapstructure:"base_url"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// AdminConfig holds API authentication configuration
type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig holds uploaded paper storage configuration
type StorageConfig struct {
	Papers       string        `mapstructure:"papers"`
	MaxUploadMB  int64         `mapstructure:"max_upload_mb"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// RAGConfig holds chunking and retrieval configuration
type RAGConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	TopK         int `mapstructure:"top_k"`
}

// VectorConfig selects and tunes the chunk store backend
type VectorConfig struct {
	Backend     string        `mapstructure:"backend"` // sqlite, postgres
	PostgresDSN string        `mapstructure:"postgres_dsn"`
	GCSchedule  string        `mapstructure:"gc_schedule"`
	GCGrace     time.Duration `mapstructure:"gc_grace"`
}

// EmbeddingConfig holds embedding provider configuration
type EmbeddingConfig struct {
	Provider          string  `mapstructure:"provider"` // openai, gemini
	BaseURL           string  `mapstructure:"base_url"`
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	Dimensions        int     `mapstructure:"dimensions"`
	MaxInputChars     int     `mapstructure:"max_input_chars"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// LLMConfig holds generation provider configuration
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai, anthropic, gemini
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// AnthropicConfig holds Claude configuration
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// GeminiConfig holds Gemini configuration
type GeminiConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

// LiteratureConfig holds literature source configuration
type LiteratureConfig struct {
	SemanticScholarURL string        `mapstructure:"semantic_scholar_url"`
	ArxivURL           string        `mapstructure:"arxiv_url"`
	HuggingFaceURL     string        `mapstructure:"huggingface_url"`
	Limit              int           `mapstructure:"limit"`
	Timeout            time.Duration `mapstructure:"timeout"`
	CachePath          string        `mapstructure:"cache_path"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// PAPERCHAT_LLM_API_KEY overrides llm.api_key
	v.SetEnvPrefix("PAPERCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("admin.api_key", "")

	v.SetDefault("database.path", "./data/paperchat.db")
	v.SetDefault("storage.papers", "./data/papers")
	v.SetDefault("storage.max_upload_mb", 50)
	v.SetDefault("storage.fetch_timeout", 60*time.Second)

	v.SetDefault("rag.chunk_size", 2400)
	v.SetDefault("rag.chunk_overlap", 200)
	v.SetDefault("rag.top_k", 5)

	v.SetDefault("vector.backend", "sqlite")
	v.SetDefault("vector.postgres_dsn", "")
	v.SetDefault("vector.gc_schedule", "@every 1h")
	v.SetDefault("vector.gc_grace", time.Hour)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 0)
	v.SetDefault("embedding.max_input_chars", 8191)
	v.SetDefault("embedding.requests_per_second", 5.0)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 1500)
	v.SetDefault("llm.timeout", 90*time.Second)

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.embedding_model", "gemini-embedding-001")

	v.SetDefault("literature.semantic_scholar_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("literature.arxiv_url", "https://export.arxiv.org/api/query")
	v.SetDefault("literature.huggingface_url", "https://huggingface.co/api")
	v.SetDefault("literature.limit", 10)
	v.SetDefault("literature.timeout", 15*time.Second)
	v.SetDefault("literature.cache_path", "./data/literature-cache")
	v.SetDefault("literature.cache_ttl", 6*time.Hour)
}

// Validate checks settings that would otherwise fail deep inside a request
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, chunk_size), got %d", c.RAG.ChunkOverlap)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK)
	}
	if c.Vector.GCGrace <= 0 {
		return fmt.Errorf("vector.gc_grace must be positive, got %s", c.Vector.GCGrace)
	}
	switch c.Vector.Backend {
	case "sqlite":
	case "postgres":
		if c.Vector.PostgresDSN == "" {
			return fmt.Errorf("vector.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown vector.backend %q", c.Vector.Backend)
	}
	return nil
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
