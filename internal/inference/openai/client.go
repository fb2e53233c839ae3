// Package openai implements inference.Client on an OpenAI-compatible chat completions endpoint.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/khmerdict/dictbot/internal/inference"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Client struct {
	httpClient *resty.Client
	model      string
	timeout    time.Duration
}

// NewClient creates a chat completions client. baseURL is empty for the public endpoint.
func NewClient(apiKey, model, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(baseURL, "/"))
	client.SetHeader("Authorization", "Bearer "+apiKey)
	client.SetHeader("Content-Type", "application/json")

	return &Client{
		httpClient: client,
		model:      model,
		timeout:    timeout,
	}
}

func (client *Client) Close() error {
	return client.httpClient.Close()
}

// GetModel returns the model name configured for this client
func (client *Client) GetModel() string {
	return client.model
}

type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature,omitempty"`
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Index        int           `json:"index"`
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type ChoiceMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (client *Client) getRequestBody(req inference.CompletionRequest) ChatCompletionRequest {
	messages := make([]Message, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, Message{Role: RoleUser, Content: req.Query})
	return ChatCompletionRequest{
		Model:    client.model,
		Messages: messages,
	}
}

// Complete implements the inference.Client interface
func (client *Client) Complete(ctx context.Context, req inference.CompletionRequest) (inference.CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, client.timeout)
	defer cancel()

	requestBody := client.getRequestBody(req)
	response, err := client.httpClient.R().
		SetContext(ctx).
		SetBody(requestBody).
		SetResult(&ChatCompletionResponse{}).
		Post("/chat/completions")
	if err != nil {
		return inference.CompletionResponse{}, fmt.Errorf("httpClient.Post > %w: %w", inference.ErrUnavailable, err)
	}
	if response.IsError() {
		return inference.CompletionResponse{}, fmt.Errorf("response error %d: %w: %s", response.StatusCode(), inference.ErrUnavailable, response.String())
	}

	responseBody, _ := response.Result().(*ChatCompletionResponse)
	if responseBody == nil || len(responseBody.Choices) == 0 {
		return inference.CompletionResponse{}, fmt.Errorf("empty response body or choices: %w", inference.ErrUnavailable)
	}

	content := strings.TrimSpace(responseBody.Choices[0].Message.Content)
	if content == "" {
		return inference.CompletionResponse{}, fmt.Errorf("empty response content: %w", inference.ErrUnavailable)
	}
	slog.Default().Debug("openai response content",
		"model", responseBody.Model,
		"usage", responseBody.Usage,
	)

	model := responseBody.Model
	if model == "" {
		model = client.model
	}
	return inference.CompletionResponse{Text: content, Model: model}, nil
}
