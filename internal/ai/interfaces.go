// Package ai provides the chat-completion adapters. Conversations are
// ordered turn sequences starting with exactly one system turn; providers
// return generated text or a *GenerationError carrying the provider's own
// message.
package ai

import (
	"context"
	"fmt"
)

// Role tags who produced a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options are the per-request sampling parameters.
type Options struct {
	Model           string
	Temperature     float64
	PresencePenalty float64

	// User is an opaque end-user identifier forwarded to the provider for
	// abuse attribution.
	User string
}

// ChatCompleter generates the next assistant turn for a conversation.
type ChatCompleter interface {
	Chat(ctx context.Context, turns []Turn, opts Options) (string, error)
}

// GenerationError reports a failed completion call. The provider's message
// is surfaced verbatim to the user.
type GenerationError struct {
	Provider string
	Message  string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func genErr(provider, message string, err error) error {
	return &GenerationError{Provider: provider, Message: message, Err: err}
}
