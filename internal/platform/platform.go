// Package platform defines the chat-platform contracts the core packages
// consume: messages, reply-chain resolution, presence, and outbound
// replies. The Discord implementation lives alongside; everything else in
// the repository depends only on these interfaces.
package platform

import (
	"context"

	"github.com/scrypster/chorus/pkg/music"
)

// Message is the platform-neutral view of a chat message, carrying exactly
// what the core needs: identity, authorship, rendered text, and the reply
// reference.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string

	AuthorID   string
	AuthorName string // display name
	AuthorBot  bool

	// Content is the message text with user and role mentions already
	// resolved to display names.
	Content string

	// ReferenceID is the ID of the message this one replies to, empty when
	// the message is not a reply. Referenced carries the resolved parent
	// when the platform delivered it inline; nil means it must be fetched.
	ReferenceID string
	Referenced  *Message

	// CommandName is set when the message either invoked a named command
	// or is a bot reply tagged with the command that produced it.
	CommandName string
}

// Member is a user of a guild the bot shares, as much of it as the core
// needs for registry lookups and play-count comparisons.
type Member struct {
	UserID      string
	DisplayName string
}

// MessageFetcher resolves a message by ID, used when walking a reply chain
// whose parents are not resident.
type MessageFetcher interface {
	FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error)
}

// PresenceView exposes the live listening activity the platform reports
// for a user. Listening returns nil when the user has no music activity.
type PresenceView interface {
	Listening(userID string) *music.Track
}

// Replier sends bot output back to the platform.
type Replier interface {
	// Reply sends text to the channel as a reply to the given message and
	// returns the sent message's ID.
	Reply(ctx context.Context, channelID, messageID, text string) (string, error)

	// React adds an emoji reaction to a message.
	React(ctx context.Context, channelID, messageID, emoji string) error
}

// MemberLister enumerates the members of a guild, used for cross-user
// comparisons.
type MemberLister interface {
	GuildMembers(ctx context.Context, guildID string) ([]Member, error)
}
