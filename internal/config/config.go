package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"legal-rag/internal/models"
)

const (
	BackendChromem  = "chromem"
	BackendPostgres = "postgres"

	apiKeyEnv  = "OPENAI_API_KEY"
	baseURLEnv = "OPENAI_BASE_URL"
)

type Config struct {
	Server    ServerConfig `yaml:"server"`
	LLM       LLMConfig    `yaml:"llm"`
	EmbedLLM  LLMConfig    `yaml:"embed_llm"`
	RAG       RAGConfig    `yaml:"rag"`
	Store     StoreConfig  `yaml:"store"`
	Log       LogConfig    `yaml:"log"`
	UploadDir string       `yaml:"upload_dir"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LLMConfig describes an OpenAI compatible endpoint. Key is normally left
// empty in the file and supplied through OPENAI_API_KEY.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

type RAGConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`
}

type StoreConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	Collection    string `yaml:"collection"`
	InMemory      bool   `yaml:"in_memory"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
	DSN           string `yaml:"dsn"`
	Debug         bool   `yaml:"debug"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// LoadConfig reads the YAML file at path, falling back to defaults when it
// does not exist, and applies environment overrides. The result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := newConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", models.ErrConfig, path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("%w: read %s: %w", models.ErrConfig, path, err)
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newConfig presets the values for which zero is a valid setting, so they
// keep their default only when the key is absent from the file.
func newConfig() *Config {
	return &Config{RAG: RAGConfig{ChunkOverlap: models.DefaultChunkOverlap}}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini-2024-07-18"
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "text-embedding-3-small"
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = models.DefaultChunkSize
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = models.DefaultTopK
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendChromem
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "chromemdb"
	}
	if cfg.Store.Collection == "" {
		cfg.Store.Collection = models.DefaultCollectionName
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}
}

// applyEnv lets the environment win over the file. The embedder shares the
// chat key and endpoint unless it has its own.
func applyEnv(cfg *Config) {
	if key := os.Getenv(apiKeyEnv); key != "" {
		cfg.LLM.Key = key
	}
	if base := os.Getenv(baseURLEnv); base != "" {
		cfg.LLM.BaseURL = base
	}
	if cfg.EmbedLLM.Key == "" {
		cfg.EmbedLLM.Key = cfg.LLM.Key
	}
	if cfg.EmbedLLM.BaseURL == "" {
		cfg.EmbedLLM.BaseURL = cfg.LLM.BaseURL
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.LLM.Key) == "" {
		return fmt.Errorf("%w: %s is not set", models.ErrConfig, apiKeyEnv)
	}
	if c.RAG.ChunkSize < 1 {
		return fmt.Errorf("%w: rag.chunk_size must be positive", models.ErrConfig)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("%w: rag.chunk_overlap must be in [0, chunk_size)", models.ErrConfig)
	}
	if c.RAG.TopK < 1 {
		return fmt.Errorf("%w: rag.top_k must be positive", models.ErrConfig)
	}
	switch c.Store.Backend {
	case BackendChromem:
		if n := len(c.Store.EncryptionKey); n != 0 && n != 32 {
			return fmt.Errorf("%w: store.encryption_key must be 32 bytes", models.ErrConfig)
		}
	case BackendPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for the postgres backend", models.ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store.backend %q", models.ErrConfig, c.Store.Backend)
	}
	return nil
}
