// Package convo rebuilds the conversation history behind a reply so the
// chat command can hand the full exchange to a completion provider. A
// conversation is a reply chain whose root is a genuine chat invocation;
// anything else is rejected rather than partially reconstructed.
package convo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/scrypster/chorus/internal/ai"
	"github.com/scrypster/chorus/internal/platform"
)

// ErrInvalidConversation marks a reply chain that does not trace back to a
// chat invocation, or one too deep to walk.
var ErrInvalidConversation = errors.New("convo: reply chain is not a conversation")

// DefaultMaxDepth bounds the reply-chain walk when no limit is given.
const DefaultMaxDepth = 50

// Config parameterizes a Reconstructor.
type Config struct {
	// BotUserID resolves the bot's own user ID. It is a func because the
	// ID is only known once the platform session is ready.
	BotUserID func() string

	// Prefix and Command describe the invocation that may open a
	// conversation, e.g. prefix "!" and command "chat".
	Prefix  string
	Command string

	// DefaultPrimer is the system turn used when the chain's own primer
	// is no longer on record.
	DefaultPrimer string

	// MaxDepth caps how many messages a chain may span. A longer chain is
	// rejected outright.
	MaxDepth int
}

// Reconstructor walks reply chains into completion-ready turn sequences.
type Reconstructor struct {
	cfg         Config
	fetcher     platform.MessageFetcher
	invocations *InvocationLog
}

// New returns a Reconstructor reading unresolved parents through fetcher
// and primers through invocations.
func New(cfg Config, fetcher platform.MessageFetcher, invocations *InvocationLog) *Reconstructor {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.BotUserID == nil {
		cfg.BotUserID = func() string { return "" }
	}
	return &Reconstructor{cfg: cfg, fetcher: fetcher, invocations: invocations}
}

// Reconstruct walks the reply chain above msg and returns the full
// conversation oldest-first: one system turn carrying the primer, then one
// turn per message, tagged assistant for the bot's own messages and user
// for everyone else's.
//
// The chain is only a conversation when its root is either a direct
// invocation of the chat command or a bot reply recorded as opening one;
// otherwise ErrInvalidConversation is returned. A parent that cannot be
// fetched aborts the whole reconstruction.
func (r *Reconstructor) Reconstruct(ctx context.Context, msg *platform.Message) ([]ai.Turn, error) {
	if msg.ReferenceID == "" {
		return nil, ErrInvalidConversation
	}

	chain := []*platform.Message{msg}
	cur := msg
	for cur.ReferenceID != "" {
		if len(chain) >= r.cfg.MaxDepth {
			return nil, fmt.Errorf("%w: longer than %d messages", ErrInvalidConversation, r.cfg.MaxDepth)
		}
		parent := cur.Referenced
		if parent == nil {
			var err error
			parent, err = r.fetcher.FetchMessage(ctx, cur.ChannelID, cur.ReferenceID)
			if err != nil {
				return nil, fmt.Errorf("fetch parent message %s: %w", cur.ReferenceID, err)
			}
		}
		chain = append([]*platform.Message{parent}, chain...)
		cur = parent
	}

	root := chain[0]
	if !r.isInvocation(root) {
		return nil, ErrInvalidConversation
	}

	primer, ok := r.invocations.Lookup(root.ID)
	if !ok {
		log.Printf("No primer on record for conversation root %s, using default", root.ID)
		primer = r.cfg.DefaultPrimer
	}

	turns := make([]ai.Turn, 0, len(chain)+1)
	turns = append(turns, ai.Turn{Role: ai.RoleSystem, Content: primer})
	for _, m := range chain {
		role := ai.RoleUser
		if m.AuthorBot && m.AuthorID == r.cfg.BotUserID() {
			role = ai.RoleAssistant
		}
		turns = append(turns, ai.Turn{Role: role, Content: m.Content})
	}
	return turns, nil
}

// isInvocation reports whether the root message legitimately opened a
// conversation: a user typing the chat command, or a bot reply tagged with
// it by the platform or recorded in the invocation log.
func (r *Reconstructor) isInvocation(root *platform.Message) bool {
	if root.AuthorBot {
		if root.AuthorID != r.cfg.BotUserID() {
			return false
		}
		if root.CommandName == r.cfg.Command {
			return true
		}
		_, ok := r.invocations.Lookup(root.ID)
		return ok
	}
	if root.CommandName == r.cfg.Command {
		return true
	}
	invocation := r.cfg.Prefix + r.cfg.Command
	return root.Content == invocation || strings.HasPrefix(root.Content, invocation+" ")
}
