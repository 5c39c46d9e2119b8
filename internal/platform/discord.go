package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DiscordConfig holds configuration for the Discord REST client.
type DiscordConfig struct {
	Token   string
	BaseURL string        // default: https://discord.com/api/v10
	Timeout time.Duration // default: 10s
}

// Discord talks to the Discord REST API. It implements MessageFetcher,
// Replier and MemberLister; the live event stream is the Gateway's job.
type Discord struct {
	cfg    DiscordConfig
	client *http.Client
}

var (
	_ MessageFetcher = (*Discord)(nil)
	_ Replier        = (*Discord)(nil)
	_ MemberLister   = (*Discord)(nil)
)

// NewDiscord creates a Discord REST client with defaults applied.
func NewDiscord(cfg DiscordConfig) *Discord {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://discord.com/api/v10"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Discord{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// discordUser is the author object attached to messages and members.
type discordUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Bot        bool   `json:"bot"`
}

func (u *discordUser) displayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// discordMessage is the wire shape of a message, limited to the fields the
// core consumes.
type discordMessage struct {
	ID        string      `json:"id"`
	ChannelID string      `json:"channel_id"`
	GuildID   string      `json:"guild_id"`
	Author    discordUser `json:"author"`
	Content   string      `json:"content"`

	Mentions []discordUser `json:"mentions"`

	MessageReference *struct {
		MessageID string `json:"message_id"`
	} `json:"message_reference"`
	ReferencedMessage *discordMessage `json:"referenced_message"`

	Interaction *struct {
		Name string `json:"name"`
	} `json:"interaction"`
}

// packMessage converts a wire message into the platform-neutral form,
// resolving user mentions in the content to display names.
func packMessage(m *discordMessage) *Message {
	if m == nil {
		return nil
	}
	out := &Message{
		ID:         m.ID,
		ChannelID:  m.ChannelID,
		GuildID:    m.GuildID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.displayName(),
		AuthorBot:  m.Author.Bot,
		Content:    resolveMentions(m.Content, m.Mentions),
		Referenced: packMessage(m.ReferencedMessage),
	}
	if m.MessageReference != nil {
		out.ReferenceID = m.MessageReference.MessageID
	}
	if out.ReferenceID == "" && out.Referenced != nil {
		out.ReferenceID = out.Referenced.ID
	}
	if m.Interaction != nil {
		out.CommandName = m.Interaction.Name
	}
	return out
}

// resolveMentions rewrites <@id> and <@!id> tokens to @DisplayName using
// the mention list the message carries. Unknown IDs are left as they are.
func resolveMentions(content string, mentions []discordUser) string {
	for i := range mentions {
		u := &mentions[i]
		name := "@" + u.displayName()
		content = strings.ReplaceAll(content, "<@"+u.ID+">", name)
		content = strings.ReplaceAll(content, "<@!"+u.ID+">", name)
	}
	return content
}

// do issues an authenticated request and decodes the JSON response into
// out when out is non-nil. Discord error bodies are surfaced verbatim.
func (d *Discord) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+d.cfg.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read discord response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("discord: %s (code %d, http %d)", apiErr.Message, apiErr.Code, resp.StatusCode)
		}
		return fmt.Errorf("discord: unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode discord response: %w", err)
	}
	return nil
}

// FetchMessage retrieves a single message by ID.
func (d *Discord) FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error) {
	var m discordMessage
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
	if err := d.do(ctx, http.MethodGet, path, nil, &m); err != nil {
		return nil, err
	}
	return packMessage(&m), nil
}

// Reply posts text to the channel as a reply to the given message and
// returns the new message's ID.
func (d *Discord) Reply(ctx context.Context, channelID, messageID, text string) (string, error) {
	payload := map[string]any{"content": text}
	if messageID != "" {
		payload["message_reference"] = map[string]any{"message_id": messageID}
	}
	var m discordMessage
	path := fmt.Sprintf("/channels/%s/messages", channelID)
	if err := d.do(ctx, http.MethodPost, path, payload, &m); err != nil {
		return "", err
	}
	return m.ID, nil
}

// React adds an emoji reaction to a message.
func (d *Discord) React(ctx context.Context, channelID, messageID, emoji string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s/reactions/%s/@me",
		channelID, messageID, url.PathEscape(emoji))
	return d.do(ctx, http.MethodPut, path, nil, nil)
}

// GuildMembers lists every member of a guild, paging through the API in
// chunks of 1000.
func (d *Discord) GuildMembers(ctx context.Context, guildID string) ([]Member, error) {
	var members []Member
	after := ""
	for {
		path := fmt.Sprintf("/guilds/%s/members?limit=1000", guildID)
		if after != "" {
			path += "&after=" + after
		}
		var page []struct {
			User discordUser `json:"user"`
			Nick string      `json:"nick"`
		}
		if err := d.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		for _, m := range page {
			name := m.Nick
			if name == "" {
				name = m.User.displayName()
			}
			members = append(members, Member{UserID: m.User.ID, DisplayName: name})
		}
		if len(page) < 1000 {
			return members, nil
		}
		after = page[len(page)-1].User.ID
	}
}
