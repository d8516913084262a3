package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// AnthropicConfig configures the reasoning engine client.
type AnthropicConfig struct {
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension"`
	CacheSize int                   `yaml:"cache_size"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how lesson text is split into chunks.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	SQLite   *SQLiteConfig   `yaml:"sqlite,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	PGVector *PGVectorConfig `yaml:"pgvector,omitempty"`
}

// SQLiteConfig points at the embedded database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL              string `yaml:"url"`
	APIKeyEnv        string `yaml:"api_key_env"`
	CollectionPrefix string `yaml:"collection_prefix"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
}

// PGVectorConfig contains connection details for Postgres with the pgvector extension.
type PGVectorConfig struct {
	DSNEnv string `yaml:"dsn_env"`
	Table  string `yaml:"table"`
}

// SearchConfig tunes retrieval.
type SearchConfig struct {
	MaxResults         int     `yaml:"max_results"`
	ResolveMaxDistance float64 `yaml:"resolve_max_distance"`
}

// ConversationConfig bounds sessions and the tool loop.
type ConversationConfig struct {
	MaxHistory     int `yaml:"max_history"`
	MaxToolRounds  int `yaml:"max_tool_rounds"`
	SessionTTLMins int `yaml:"session_ttl_mins"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	DocsDir     string `yaml:"docs_dir"`
	CORSOrigins string `yaml:"cors_origins"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
	JSON  bool   `yaml:"json"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Anthropic    AnthropicConfig    `yaml:"anthropic"`
	Embedder     EmbedderConfig     `yaml:"embedder"`
	Chunker      ChunkerConfig      `yaml:"chunker"`
	VectorStore  VectorStoreConfig  `yaml:"vector_store"`
	Search       SearchConfig       `yaml:"search"`
	Conversation ConversationConfig `yaml:"conversation"`
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/courserag/config.yaml.
// If neither exists, it writes defaults to ~/.config/courserag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects configurations the application cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "hashing", "openai":
	default:
		return fmt.Errorf("unknown embedder: %q", c.Embedder.Type)
	}
	switch c.VectorStore.Type {
	case "memory", "sqlite", "qdrant", "pgvector":
	default:
		return fmt.Errorf("unknown vector store: %q", c.VectorStore.Type)
	}
	if c.Embedder.Dimension <= 0 {
		return errors.New("embedder.dimension must be positive")
	}
	if c.Search.MaxResults <= 0 {
		return errors.New("search.max_results must be positive")
	}
	if c.Search.ResolveMaxDistance <= 0 || c.Search.ResolveMaxDistance > 2 {
		return errors.New("search.resolve_max_distance must be in (0, 2]")
	}
	if c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return errors.New("chunker.chunk_overlap must be smaller than chunk_size")
	}
	if c.Conversation.MaxHistory <= 0 || c.Conversation.MaxToolRounds <= 0 {
		return errors.New("conversation.max_history and max_tool_rounds must be positive")
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "courserag", "config.yaml"), nil
}

// Default returns the configuration used when no file is present.
func Default() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "hashing"},
		VectorStore: VectorStoreConfig{Type: "sqlite"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Anthropic.APIKeyEnv == "" {
		cfg.Anthropic.APIKeyEnv = "ANTHROPIC_API_KEY"
	}
	if cfg.Anthropic.Model == "" {
		cfg.Anthropic.Model = "claude-sonnet-4-20250514"
	}
	if cfg.Anthropic.MaxTokens == 0 {
		cfg.Anthropic.MaxTokens = 800
	}
	if cfg.Anthropic.TimeoutSecs == 0 {
		cfg.Anthropic.TimeoutSecs = 60
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.CacheSize == 0 {
		cfg.Embedder.CacheSize = 1024
	}
	if cfg.Embedder.Type == "hashing" && cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 2048
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.MaxRetries == 0 {
			cfg.Embedder.OpenAI.MaxRetries = 5
		}
		if cfg.Embedder.Dimension == 0 {
			cfg.Embedder.Dimension = 1536
		}
	}

	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 800
	}
	if cfg.Chunker.ChunkOverlap == 0 {
		cfg.Chunker.ChunkOverlap = 100
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	switch cfg.VectorStore.Type {
	case "sqlite":
		if cfg.VectorStore.SQLite == nil {
			cfg.VectorStore.SQLite = &SQLiteConfig{}
		}
		if cfg.VectorStore.SQLite.Path == "" {
			cfg.VectorStore.SQLite.Path = filepath.Join("data", "courserag.db")
		}
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	case "pgvector":
		if cfg.VectorStore.PGVector == nil {
			cfg.VectorStore.PGVector = &PGVectorConfig{}
		}
		if cfg.VectorStore.PGVector.DSNEnv == "" {
			cfg.VectorStore.PGVector.DSNEnv = "DATABASE_URL"
		}
		if cfg.VectorStore.PGVector.Table == "" {
			cfg.VectorStore.PGVector.Table = "course_vectors"
		}
	}

	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 5
	}
	if cfg.Search.ResolveMaxDistance == 0 {
		cfg.Search.ResolveMaxDistance = 0.5
	}

	if cfg.Conversation.MaxHistory == 0 {
		cfg.Conversation.MaxHistory = 2
	}
	if cfg.Conversation.MaxToolRounds == 0 {
		cfg.Conversation.MaxToolRounds = 2
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.DocsDir == "" {
		cfg.Server.DocsDir = "docs"
	}
	if cfg.Server.CORSOrigins == "" {
		cfg.Server.CORSOrigins = "*"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
