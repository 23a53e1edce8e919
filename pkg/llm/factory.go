package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ncert-tutor-go/internal/config"
)

// NewProvider builds a provider from configuration, wrapped as
// caller -> retry -> logging -> backend.
func NewProvider(ctx context.Context, cfg config.LLMModelConfig, retry RetryConfig) (Provider, error) {
	var (
		base Provider
		err  error
	)
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		base, err = NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaBaseURL
		}
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama"
		}
		base, err = NewOpenAIProvider(apiKey, baseURL, cfg.Model)
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}
	return WithRetry(WithLogging(base), retry), nil
}

// RetryConfigFrom converts the YAML retry settings.
func RetryConfigFrom(c config.LLMRetryConfig) RetryConfig {
	return RetryConfig{
		MaxAttempts: c.MaxAttempts,
		InitialWait: time.Duration(c.InitialWaitMS) * time.Millisecond,
		MaxWait:     time.Duration(c.MaxWaitMS) * time.Millisecond,
		Multiplier:  c.Multiplier,
	}
}
