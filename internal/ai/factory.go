package ai

import (
	"fmt"
	"time"

	"github.com/scrypster/chorus/internal/config"
)

// NewChatCompleter creates the configured provider client.
func NewChatCompleter(cfg config.AIConfig, timeout time.Duration) (ChatCompleter, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: timeout,
		}), nil
	case "ollama":
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.BaseURL,
			Timeout: timeout,
		}), nil
	default:
		return nil, fmt.Errorf("ai: unsupported provider %q", cfg.Provider)
	}
}
