package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scrypster/chorus/internal/sources"
)

// OpenAIConfig holds configuration for the OpenAI-compatible client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string        // default: https://api.openai.com
	Timeout time.Duration // default: 60s
}

// OpenAIClient implements ChatCompleter against the chat completions API.
// Calls are wrapped in a circuit breaker so a dead provider fails fast.
type OpenAIClient struct {
	cfg     OpenAIConfig
	client  *http.Client
	breaker *sources.Breaker
}

// NewOpenAIClient creates a client with defaults applied.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: sources.NewBreaker("openai", sources.BreakerConfig{}),
	}
}

// chatRequest is the request body for POST /v1/chat/completions.
type chatRequest struct {
	Model           string  `json:"model"`
	Messages        []Turn  `json:"messages"`
	Temperature     float64 `json:"temperature"`
	PresencePenalty float64 `json:"presence_penalty,omitempty"`
	User            string  `json:"user,omitempty"`
}

// chatResponse is the success body; errorResponse the failure envelope.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends the conversation and returns the generated assistant text.
func (c *OpenAIClient) Chat(ctx context.Context, turns []Turn, opts Options) (string, error) {
	if len(turns) == 0 {
		return "", genErr("openai", "empty conversation", nil)
	}

	reqBody := chatRequest{
		Model:           opts.Model,
		Messages:        turns,
		Temperature:     opts.Temperature,
		PresencePenalty: opts.PresencePenalty,
		User:            opts.User,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", genErr("openai", "failed to marshal request", err)
	}

	var text string
	err = c.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			var apiErr errorResponse
			if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
				return errors.New(apiErr.Error.Message)
			}
			return fmt.Errorf("openai returned status %d: %s", resp.StatusCode, body)
		}

		var respData chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		if len(respData.Choices) == 0 {
			return errors.New("openai returned no choices")
		}
		text = respData.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", genErr("openai", err.Error(), err)
	}
	return text, nil
}

// Compile-time assertion.
var _ ChatCompleter = (*OpenAIClient)(nil)
