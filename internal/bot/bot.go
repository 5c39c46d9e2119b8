// Package bot is the command surface: it parses inbound messages,
// dispatches to the aggregator and friends, renders plain-text replies,
// and maps the error taxonomy onto user-facing messages.
package bot

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/chorus/internal/aggregator"
	"github.com/scrypster/chorus/internal/ai"
	"github.com/scrypster/chorus/internal/config"
	"github.com/scrypster/chorus/internal/convo"
	"github.com/scrypster/chorus/internal/platform"
	"github.com/scrypster/chorus/internal/registry"
	"github.com/scrypster/chorus/internal/sources"
)

// reactDone is the reaction acknowledging a command with no text output.
const reactDone = "✅" // WHITE HEAVY CHECK MARK

// maxReplyLen is the platform's message size limit; longer replies are
// split.
const maxReplyLen = 2000

// Deps collects the collaborators the bot needs.
type Deps struct {
	Config      config.BotConfig
	Aggregator  *aggregator.Aggregator
	Registry    *registry.Registry
	Convo       *convo.Reconstructor
	Invocations *convo.InvocationLog
	Completer   ai.ChatCompleter
	Replier     platform.Replier
	Members     platform.MemberLister
	Docs        *config.DocStore

	// AIDoc holds the runtime assistant settings (model, primer,
	// sampling).
	AIDoc *config.Document

	// GenerationTimeout bounds one completion call.
	GenerationTimeout time.Duration
}

// Bot dispatches inbound messages to command handlers. It is safe for
// concurrent use; the gateway calls HandleMessage on a fresh goroutine per
// message.
type Bot struct {
	cfg         config.BotConfig
	agg         *aggregator.Aggregator
	reg         *registry.Registry
	convo       *convo.Reconstructor
	invocations *convo.InvocationLog
	completer   ai.ChatCompleter
	replier     platform.Replier
	members     platform.MemberLister
	docs        *config.DocStore
	aiDoc       *config.Document
	genTimeout  time.Duration
}

// New creates a Bot.
func New(deps Deps) *Bot {
	if deps.GenerationTimeout == 0 {
		deps.GenerationTimeout = 60 * time.Second
	}
	return &Bot{
		cfg:         deps.Config,
		agg:         deps.Aggregator,
		reg:         deps.Registry,
		convo:       deps.Convo,
		invocations: deps.Invocations,
		completer:   deps.Completer,
		replier:     deps.Replier,
		members:     deps.Members,
		docs:        deps.Docs,
		aiDoc:       deps.AIDoc,
		genTimeout:  deps.GenerationTimeout,
	}
}

// invocation is one parsed command call.
type invocation struct {
	id      string
	msg     *platform.Message
	command string
	args    []string

	// query is the raw argument text with inner spacing preserved, for
	// free-text search commands.
	query string
}

// HandleMessage is the entry point for every inbound message. Commands
// are dispatched by prefix; replies to the bot may continue a
// conversation; everything else is ignored.
func (b *Bot) HandleMessage(ctx context.Context, msg *platform.Message) {
	if msg == nil || msg.AuthorBot {
		return
	}

	if strings.HasPrefix(msg.Content, b.cfg.CommandPrefix) {
		b.dispatch(ctx, msg)
		return
	}
	if msg.ReferenceID != "" {
		b.continueConversation(ctx, msg)
	}
}

// dispatch parses and runs one prefix command.
func (b *Bot) dispatch(ctx context.Context, msg *platform.Message) {
	body := strings.TrimPrefix(msg.Content, b.cfg.CommandPrefix)
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return
	}

	inv := &invocation{
		id:      uuid.New().String(),
		msg:     msg,
		command: fields[0],
		args:    fields[1:],
	}
	// Everything after the command word, spacing intact.
	if idx := strings.Index(body, fields[0]); idx >= 0 {
		inv.query = strings.TrimSpace(body[idx+len(fields[0]):])
	}
	msg.CommandName = inv.command

	log.Printf("[%s] %s invoked %q", inv.id, msg.AuthorName, inv.command)

	var err error
	switch inv.command {
	case "last":
		err = b.handleLast(ctx, inv)
	case "track":
		err = b.handleTrack(ctx, inv)
	case "album":
		err = b.handleAlbum(ctx, inv)
	case "artist":
		err = b.handleArtist(ctx, inv)
	case "lyrics":
		err = b.handleLyrics(ctx, inv)
	case "chat":
		err = b.handleChat(ctx, inv)
	case "plays":
		err = b.handlePlays(ctx, inv)
	case "config":
		err = b.handleConfig(ctx, inv)
	default:
		return
	}

	if err != nil {
		b.replyError(ctx, inv, err)
	}
}

// reply sends text back, splitting when it exceeds the platform limit.
func (b *Bot) reply(ctx context.Context, msg *platform.Message, text string) (string, error) {
	var lastID string
	for _, chunk := range splitMessage(text, maxReplyLen) {
		id, err := b.replier.Reply(ctx, msg.ChannelID, msg.ID, chunk)
		if err != nil {
			return "", err
		}
		lastID = id
	}
	return lastID, nil
}

// splitMessage cuts text into chunks of at most limit runes, preferring
// line breaks as cut points.
func splitMessage(text string, limit int) []string {
	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// replyError maps the error taxonomy onto user-facing replies. Unknown
// errors are logged with the invocation id and answered generically.
func (b *Bot) replyError(ctx context.Context, inv *invocation, err error) {
	var (
		notRegistered *registry.NotRegisteredError
		srcErr        *sources.SourceError
		genErr        *ai.GenerationError
		periodErr     *aggregator.UnknownPeriodError
	)

	var text string
	switch {
	case errors.Is(err, convo.ErrInvalidConversation):
		return
	case errors.As(err, &notRegistered):
		text = "You must register with `" + b.cfg.CommandPrefix + "last register` first."
	case errors.Is(err, registry.ErrUnknownUsername):
		text = "User does not exist."
	case errors.As(err, &periodErr):
		text = "Unknown time-period. Possible values: all, 7d, 1m, 3m, 6m, 12m"
	case errors.Is(err, aggregator.ErrEmptyQuery):
		text = "Nothing is currently scrobbling, please supply a search query."
	case sources.IsNotFound(err):
		text = "No results found."
	case errors.As(err, &genErr):
		text = genErr.Message
	case errors.As(err, &srcErr):
		text = "There was an error while communicating with the " + srcErr.Service + " API, please try again later."
	default:
		log.Printf("[%s] Unhandled error during command %q: %v", inv.id, inv.command, err)
		text = "There was an unknown error, please contact the bot owner."
	}

	if _, err := b.reply(ctx, inv.msg, text); err != nil {
		log.Printf("[%s] Failed to send error reply: %v", inv.id, err)
	}
}
