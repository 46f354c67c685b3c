// Package genai holds the AI completion clients used to draft follow-up templates.
package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"followup-orchestrator/internal/common/config"
	apperrors "followup-orchestrator/internal/common/errors"
)

// Generator returns completion text for prompt. Callers bound it with ctx.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// New builds the generator selected by cfg.Provider.
func New(ctx context.Context, cfg config.AIConfig) (Generator, error) {
	switch cfg.Provider {
	case "gemini":
		g, err := NewGeminiGenerator(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.GenAI.MaxTokens, cfg.GenAI.Temperature)
		if err != nil {
			// a typed nil here would make the interface non-nil
			return nil, err
		}
		return g, nil
	case "http", "":
		return NewHTTPGenerator(cfg.GenAI.BaseURL, cfg.GenAI.APIKey, cfg.GenAI.MaxTokens, cfg.GenAI.Temperature), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

// classify maps a provider failure onto the error taxonomy.
func classify(provider string, ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewGenerationTimeoutError(provider, 0)
	}
	return apperrors.NewExternalServiceError(provider, err)
}

func clean(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty completion")
	}
	return text, nil
}
