package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/alokproc/geotutor/internal/config"
	"github.com/alokproc/geotutor/internal/llm"
	"github.com/alokproc/geotutor/internal/llm/anthropic"
	"github.com/alokproc/geotutor/internal/llm/openai"
	"github.com/alokproc/geotutor/internal/secrets"
	"github.com/alokproc/geotutor/internal/tutor"
	"github.com/alokproc/geotutor/internal/vector"
	"github.com/alokproc/geotutor/internal/vector/chromem"
	"github.com/alokproc/geotutor/internal/vector/qdrant"
)

// defaultVectorSize matches text-embedding-3-small; qdrant needs the
// dimension up front, chromem infers it from the first upsert.
const defaultVectorSize = 1536

// registerProviders registers all built-in LLM provider constructors.
func registerProviders(factory *llm.ProviderFactory) {
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	for _, name := range append(llm.OpenAICompatible, "custom") {
		defaultBase := llm.KnownProviders[name]
		factory.Register(name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = defaultBase
			}
			return openai.New(c.APIKey, c.Model, base, c.EmbedModel), nil
		})
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// resolveAPIKey prefers the config value, then the secrets manager.
func resolveAPIKey(ctx context.Context, configured string, key secrets.SecretKey) string {
	if configured != "" {
		return configured
	}
	mgr, err := secrets.NewManager(nil)
	if err != nil {
		return ""
	}
	val, _ := mgr.Get(ctx, string(key))
	return val
}

func newChatProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	factory := llm.NewFactory()
	registerProviders(factory)

	pc := llm.DefaultProviderConfig()
	pc.Provider = cfg.LLM.Provider
	pc.Model = cfg.LLM.Model
	pc.BaseURL = cfg.LLM.BaseURL
	pc.APIKey = resolveAPIKey(ctx, cfg.LLM.APIKey, secrets.SecretLLMAPIKey)
	pc.EmbedModel = cfg.Embedding.Model
	if cfg.LLM.MaxRetries > 0 {
		pc.MaxRetries = cfg.LLM.MaxRetries
	}

	provider, err := factory.Create(pc)
	if err != nil || provider == nil {
		return provider, err
	}
	if cfg.LLM.RequestsPerMinute > 0 || cfg.LLM.TokensPerMinute > 0 {
		provider = llm.WithRateLimit(provider, &llm.RateLimitConfig{
			RequestsPerMinute: cfg.LLM.RequestsPerMinute,
			TokensPerMinute:   cfg.LLM.TokensPerMinute,
		})
	}
	return provider, nil
}

func newEmbedProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	emb := cfg.Embedding.Resolve(cfg.LLM)
	if emb.Provider == cfg.LLM.Provider && emb.BaseURL == cfg.LLM.BaseURL {
		// Chat provider doubles as the embedder
		return nil, nil
	}

	factory := llm.NewFactory()
	registerProviders(factory)

	pc := llm.DefaultProviderConfig()
	pc.Provider = emb.Provider
	pc.Model = emb.Model
	pc.BaseURL = emb.BaseURL
	pc.APIKey = resolveAPIKey(ctx, emb.APIKey, secrets.SecretLLMAPIKey)
	pc.EmbedModel = emb.Model

	return factory.Create(pc)
}

func newRepository(ctx context.Context, cfg *config.Config) (vector.Repository, error) {
	switch cfg.Store.Backend {
	case "", "chromem":
		return chromem.New(chromem.Options{
			Path:          cfg.Store.Path,
			Collection:    cfg.Store.Collection,
			MinSimilarity: float32(cfg.Store.MinSimilarity),
		})
	case "qdrant":
		repo, err := qdrant.New(ctx, cfg.Store.Host, cfg.Store.Port, cfg.Store.Collection)
		if err != nil {
			return nil, err
		}
		if err := repo.EnsureCollection(ctx, defaultVectorSize); err != nil {
			repo.Close()
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// buildService wires config into a ready tutoring service. The returned
// cleanup closes the vector store.
func buildService(ctx context.Context, cfg *config.Config, log *slog.Logger) (*tutor.Service, func() error, error) {
	provider, err := newChatProvider(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create LLM provider: %w", err)
	}

	repo, err := newRepository(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open vector store: %w", err)
	}

	svc := tutor.New(provider, repo, tutor.Options{
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
		TopK:         cfg.Retrieval.TopK,
		Temperature:  cfg.LLM.Temperature,
		MaxTokens:    cfg.LLM.MaxTokens,
		Topics:       cfg.Topics,
	}, log)

	embedProvider, err := newEmbedProvider(ctx, cfg)
	if err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("create embedding provider: %w", err)
	}
	svc.WithEmbedProvider(embedProvider)

	return svc, repo.Close, nil
}
