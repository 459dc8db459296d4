// Package llm abstracts the prompt→text services the repair executor calls.
// The review loop never inspects provider internals; any sequential
// reasoning a model performs is invisible to the controller.
package llm

import (
	"context"
	"fmt"
	"time"

	"tomato/internal/config"
)

// Client is the minimal completion contract.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// NewClient builds a client from config.
func NewClient(cfg config.LLMConfig) (Client, error) {
	timeout := config.Duration(cfg.Timeout, 120*time.Second)
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		}), nil
	case "genai":
		return NewGenAIClient(cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q (use openai or genai)", cfg.Provider)
	}
}
