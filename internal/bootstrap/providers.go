package bootstrap

import (
	"context"
	"fmt"
	"time"

	"concept-digest-be/internal/config"
	"concept-digest-be/internal/pkg/logger"
	"concept-digest-be/pkg/conceptstore"
	"concept-digest-be/pkg/embedding"
	"concept-digest-be/pkg/embedding/openai"
	"concept-digest-be/pkg/llm"
	"concept-digest-be/pkg/llm/factory"
	"concept-digest-be/pkg/resilience"

	"github.com/redis/go-redis/v9"
)

func retryPolicy(cfg *config.Config) resilience.Policy {
	return resilience.Policy{
		MaxTries:           cfg.Retry.MaxTries,
		InitialInterval:    cfg.Retry.InitialInterval,
		MaxInterval:        cfg.Retry.MaxInterval,
		BreakerMinRequests: cfg.Retry.BreakerMinRequests,
		BreakerFailRatio:   cfg.Retry.BreakerFailRatio,
		BreakerOpenTimeout: cfg.Retry.BreakerOpenTimeout,
	}
}

// NewEmbeddingProvider picks the backend named by EMBEDDING_PROVIDER and
// wraps it with retry and a circuit breaker.
func NewEmbeddingProvider(cfg *config.Config, sysLogger logger.ILogger) (embedding.EmbeddingProvider, error) {
	var provider embedding.EmbeddingProvider
	switch cfg.Ai.EmbeddingProvider {
	case "ollama":
		model := cfg.Ai.OllamaModel
		if cfg.Ai.EmbeddingModel != "" {
			model = cfg.Ai.EmbeddingModel
		}
		provider = embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, model)
	case "jina":
		provider = openai.NewJinaProvider(cfg.Keys.Jina, cfg.Ai.EmbeddingModel)
	case "openai":
		model := cfg.Ai.EmbeddingModel
		if model == "" {
			model = "text-embedding-3-small"
		}
		provider = openai.NewProvider("openai", cfg.Keys.OpenAI, cfg.Ai.EmbeddingBaseURL, model, cfg.Store.EmbeddingDimension)
	case "gemini":
		gemini := embedding.NewGeminiProvider(cfg.Keys.GoogleGemini)
		if cfg.Ai.EmbeddingModel != "" {
			gemini.Model = cfg.Ai.EmbeddingModel
		}
		provider = gemini
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Ai.EmbeddingProvider)
	}

	sysLogger.Info("BOOTSTRAP", "Embedding provider ready", map[string]interface{}{
		"provider": cfg.Ai.EmbeddingProvider,
	})
	caller := resilience.NewCaller("embedding-"+cfg.Ai.EmbeddingProvider, retryPolicy(cfg), sysLogger)
	return resilience.NewEmbedder(provider, caller), nil
}

func NewLLMProvider(cfg *config.Config, sysLogger logger.ILogger) (llm.LLMProvider, error) {
	baseURL := cfg.Ai.LLMBaseURL
	if baseURL == "" && cfg.Ai.LLMProvider == "ollama" {
		baseURL = cfg.Ai.OllamaBaseURL
	}
	provider, err := factory.NewLLMProvider(cfg.Ai.LLMProvider, cfg.Ai.LLMModel, baseURL, cfg.Keys.OpenAI)
	if err != nil {
		return nil, err
	}

	sysLogger.Info("BOOTSTRAP", "LLM provider ready", map[string]interface{}{
		"provider": cfg.Ai.LLMProvider,
		"model":    cfg.Ai.LLMModel,
	})
	caller := resilience.NewCaller("llm-"+cfg.Ai.LLMProvider, retryPolicy(cfg), sysLogger)
	return resilience.NewLLM(provider, caller), nil
}

// NewLocker returns the per-user run lock. The redis client is returned so
// the caller can close it; it is nil for the local locker.
func NewLocker(cfg *config.Config, sysLogger logger.ILogger) (conceptstore.Locker, *redis.Client, error) {
	switch cfg.Store.LockBackend {
	case "", "local":
		return conceptstore.NewLocalLocker(), nil, nil
	case "redis":
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			sysLogger.Warn("BOOTSTRAP", "Failed to parse Redis URL, using it as address", map[string]interface{}{
				"error": err.Error(),
			})
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb := redis.NewClient(opt)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		return conceptstore.NewRedisLocker(rdb, cfg.Store.LockTTL, sysLogger), rdb, nil
	default:
		return nil, nil, fmt.Errorf("unsupported lock backend: %s", cfg.Store.LockBackend)
	}
}
