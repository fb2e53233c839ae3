package inference

import (
	"context"
	"errors"
)

//go:generate mockgen -source=interface.go -destination=../mocks/inference/mock_client.go -package=mock_inference

// Client interface defines the methods for AI inference operations
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

var (
	// ErrUnavailable is returned when the endpoint times out, fails, or answers with nothing usable.
	ErrUnavailable = errors.New("ai fallback unavailable")
	// ErrDisabled is returned by a client that has no API key configured.
	ErrDisabled = errors.New("ai fallback disabled")
)

// SystemPrompt is the fixed instruction sent with every word explanation request.
const SystemPrompt = "You are a helpful Khmer dictionary bot, created and managed by a developer named Sreng. " +
	"Your main purpose is to explain the meaning of given Khmer words clearly and concisely in the Khmer language. " +
	"Always remember you were created by Sreng. Provide examples if possible."

// CompletionRequest holds parameters for one completion call
type CompletionRequest struct {
	SystemPrompt string
	Query        string
}

// CompletionResponse is the extracted answer text
type CompletionResponse struct {
	Text  string
	Model string
}

// Disabled is the client used when no API key is configured.
type Disabled struct{}

// Complete always fails with ErrDisabled.
func (Disabled) Complete(context.Context, CompletionRequest) (CompletionResponse, error) {
	return CompletionResponse{}, ErrDisabled
}
