package llm

import (
	"context"
	"errors"
	"fmt"
)

// Errors shared by every provider. Transport failures are wrapped as-is.
var (
	ErrMissingAPIKey = errors.New("llm: API key is required")
	ErrNoModel       = errors.New("llm: no model configured")
	ErrEmptyResponse = errors.New("llm: empty response")
)

// Client is an abstraction over LLM providers
type Client interface {
	// GenerateContent returns the model's free-text answer to prompt
	GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error)
	// GenerateJSON requests a JSON answer and strips any markdown fence around it
	GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error)
	// GetModel returns the provider model name used for a tier
	GetModel(tier ModelTier) string
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates the client for the configured provider. A nil config means
// the Gemini defaults.
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config, apiKey)
	case ProviderGemini, "":
		return NewGeminiClient(ctx, config, apiKey)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", config.Provider)
	}
}

// modelFor resolves the model name for tier or reports ErrNoModel.
func modelFor(config *Config, tier ModelTier) (string, error) {
	name := config.GetModel(tier)
	if name == "" {
		return "", fmt.Errorf("%w for tier %s", ErrNoModel, tier)
	}
	return name, nil
}
