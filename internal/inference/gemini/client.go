// Package gemini implements inference.Client on the Google Gemini API.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/khmerdict/dictbot/internal/inference"
)

type Client struct {
	genaiClient *genai.Client
	model       string
	timeout     time.Duration
}

// NewClient creates a Gemini client. baseURL is empty for the public endpoint.
func NewClient(ctx context.Context, apiKey, model, baseURL string, timeout time.Duration) (*Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient > %w", err)
	}
	return &Client{
		genaiClient: client,
		model:       model,
		timeout:     timeout,
	}, nil
}

// GetModel returns the model name configured for this client
func (client *Client) GetModel() string {
	return client.model
}

// Complete implements the inference.Client interface
func (client *Client) Complete(ctx context.Context, req inference.CompletionRequest) (inference.CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, client.timeout)
	defer cancel()

	var config *genai.GenerateContentConfig
	if req.SystemPrompt != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		}
	}

	started := time.Now()
	resp, err := client.genaiClient.Models.GenerateContent(ctx, client.model, genai.Text(req.Query), config)
	if err != nil {
		return inference.CompletionResponse{}, fmt.Errorf("Models.GenerateContent > %w: %w", inference.ErrUnavailable, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return inference.CompletionResponse{}, fmt.Errorf("empty response content: %w", inference.ErrUnavailable)
	}
	slog.Default().Debug("gemini response",
		"model", client.model,
		"elapsed", time.Since(started),
		"length", len(text),
	)

	model := client.model
	if resp.ModelVersion != "" {
		model = resp.ModelVersion
	}
	return inference.CompletionResponse{Text: text, Model: model}, nil
}
