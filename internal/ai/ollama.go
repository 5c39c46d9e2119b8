package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scrypster/chorus/internal/sources"
)

// OllamaConfig holds configuration for a local Ollama endpoint.
type OllamaConfig struct {
	BaseURL string        // default: http://localhost:11434
	Timeout time.Duration // default: 60s
}

// OllamaClient implements ChatCompleter against the Ollama chat API, for
// running the assistant against a local model instead of a hosted one.
type OllamaClient struct {
	cfg     OllamaConfig
	client  *http.Client
	breaker *sources.Breaker
}

// NewOllamaClient creates a client with defaults applied.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OllamaClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: sources.NewBreaker("ollama", sources.BreakerConfig{}),
	}
}

// ollamaChatRequest is the request body for POST /api/chat.
type ollamaChatRequest struct {
	Model    string `json:"model"`
	Messages []Turn `json:"messages"`
	Stream   bool   `json:"stream"`
	Options  struct {
		Temperature     float64 `json:"temperature"`
		PresencePenalty float64 `json:"presence_penalty,omitempty"`
	} `json:"options"`
}

// ollamaChatResponse is the non-streaming response body.
type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// Chat sends the conversation and returns the generated assistant text.
func (c *OllamaClient) Chat(ctx context.Context, turns []Turn, opts Options) (string, error) {
	if len(turns) == 0 {
		return "", genErr("ollama", "empty conversation", nil)
	}

	reqBody := ollamaChatRequest{Model: opts.Model, Messages: turns, Stream: false}
	reqBody.Options.Temperature = opts.Temperature
	reqBody.Options.PresencePenalty = opts.PresencePenalty

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", genErr("ollama", "failed to marshal request", err)
	}

	var text string
	err = c.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.BaseURL+"/api/chat", bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, body)
		}

		var respData ollamaChatResponse
		if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		text = respData.Message.Content
		return nil
	})
	if err != nil {
		return "", genErr("ollama", err.Error(), err)
	}
	return text, nil
}

// Compile-time assertion.
var _ ChatCompleter = (*OllamaClient)(nil)
