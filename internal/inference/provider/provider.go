// Package provider builds the configured inference.Client.
package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/khmerdict/dictbot/internal/config"
	"github.com/khmerdict/dictbot/internal/inference"
	"github.com/khmerdict/dictbot/internal/inference/gemini"
	"github.com/khmerdict/dictbot/internal/inference/openai"
)

// New returns the client for cfg.Provider and a function releasing its resources.
// Without an API key it returns inference.Disabled.
func New(ctx context.Context, cfg config.AIConfig) (inference.Client, func() error, error) {
	noop := func() error { return nil }
	if !cfg.Enabled() {
		slog.Default().Warn("no AI API key configured, dictionary misses get a fixed reply")
		return inference.Disabled{}, noop, nil
	}

	switch cfg.Provider {
	case "openai":
		client := openai.NewClient(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Timeout)
		return client, client.Close, nil
	case "gemini", "":
		client, err := gemini.NewClient(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini.NewClient > %w", err)
		}
		return client, noop, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown ai provider %q", config.ErrInvalid, cfg.Provider)
	}
}
