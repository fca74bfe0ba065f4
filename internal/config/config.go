package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Store     StoreConfig     `mapstructure:"store"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Server    ServerConfig    `mapstructure:"server"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Log       LogConfig       `mapstructure:"log"`
	Topics    []string        `mapstructure:"topics"`
}

type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	MaxRetries  int     `mapstructure:"max_retries"`
	// Client-side rate limiting; 0 disables the corresponding limit.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	TokensPerMinute   int `mapstructure:"tokens_per_minute"`
}

// EmbeddingConfig configures the embedding model. Unset fields inherit
// from the LLM provider.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// Resolve returns an embedding provider config with LLM fallbacks applied.
func (c EmbeddingConfig) Resolve(llm LLMConfig) EmbeddingConfig {
	resolved := c
	if resolved.Provider == "" {
		resolved.Provider = llm.Provider
	}
	if resolved.APIKey == "" {
		resolved.APIKey = llm.APIKey
	}
	if resolved.BaseURL == "" {
		resolved.BaseURL = llm.BaseURL
	}
	return resolved
}

type StoreConfig struct {
	// Backend selects the vector store: "chromem" (embedded) or "qdrant".
	Backend       string  `mapstructure:"backend"`
	Path          string  `mapstructure:"path"`
	Collection    string  `mapstructure:"collection"`
	Host          string  `mapstructure:"host"`
	Port          int     `mapstructure:"port"`
	MinSimilarity float64 `mapstructure:"min_similarity"`
}

type IngestConfig struct {
	PDFPath      string `mapstructure:"pdf_path"`
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`
}

type RetrievalConfig struct {
	TopK int `mapstructure:"top_k"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	HealthAddr  string `mapstructure:"health_addr"`
	UploadDir   string `mapstructure:"upload_dir"`
	MaxUploadMB int64  `mapstructure:"max_upload_mb"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	OutputPath string `mapstructure:"output_path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	// Check for empty API key with active provider (skip "none" provider)
	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}

	// Check temperature range [0, 2.0]
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}

	// Check for negative max_tokens
	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}

	switch c.Store.Backend {
	case "", "chromem", "qdrant":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown store backend '%s', expected chromem or qdrant", c.Store.Backend))
	}

	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize && c.Ingest.ChunkSize > 0 {
		warnings = append(warnings, fmt.Sprintf("chunk_overlap %d >= chunk_size %d", c.Ingest.ChunkOverlap, c.Ingest.ChunkSize))
	}

	if c.Retrieval.TopK <= 0 {
		warnings = append(warnings, fmt.Sprintf("retrieval top_k %d is not positive", c.Retrieval.TopK))
	}

	return warnings
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "groq")
	v.SetDefault("llm.model", "llama-3.1-8b-instant")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.max_retries", 3)

	v.SetDefault("embedding.model", "text-embedding-3-small")

	v.SetDefault("store.backend", "chromem")
	v.SetDefault("store.path", "data/index")
	v.SetDefault("store.collection", "curriculum")
	v.SetDefault("store.host", "localhost")
	v.SetDefault("store.port", 6334)
	v.SetDefault("store.min_similarity", 0.0)

	v.SetDefault("ingest.chunk_size", 1000)
	v.SetDefault("ingest.chunk_overlap", 200)

	v.SetDefault("retrieval.top_k", 4)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.health_addr", ":8081")
	v.SetDefault("server.max_upload_mb", 50)

	v.SetDefault("tracing.sample_rate", 1.0)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.output_path", "stdout")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from file and environment. An empty path or
// a missing file falls back to defaults plus environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("GEOTUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					return nil, fmt.Errorf("reading config: %w", err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
