package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/scrypster/chorus/internal/aggregator"
	"github.com/scrypster/chorus/internal/ai"
	"github.com/scrypster/chorus/internal/convo"
	"github.com/scrypster/chorus/internal/platform"
	"github.com/scrypster/chorus/internal/sources"
	"github.com/scrypster/chorus/pkg/music"
)

const chartLimit = 10

// handleLast routes the last.fm command group.
func (b *Bot) handleLast(ctx context.Context, inv *invocation) error {
	if len(inv.args) == 0 {
		_, err := b.reply(ctx, inv.msg, "Try `"+b.cfg.CommandPrefix+"help`")
		return err
	}

	sub := inv.args[0]
	rest := inv.args[1:]
	switch sub {
	case "register":
		return b.lastRegister(ctx, inv, rest)
	case "now":
		return b.lastNow(ctx, inv)
	case "recent":
		return b.lastRecent(ctx, inv)
	case "tracks", "albums", "artists":
		period := "all"
		if len(rest) > 0 {
			period = rest[0]
		}
		return b.lastChart(ctx, inv, sub, period)
	case "my":
		return b.lastMy(ctx, inv)
	default:
		_, err := b.reply(ctx, inv.msg, "Try `"+b.cfg.CommandPrefix+"help`")
		return err
	}
}

func (b *Bot) lastRegister(ctx context.Context, inv *invocation, args []string) error {
	if len(args) == 0 {
		_, err := b.reply(ctx, inv.msg, "Please supply your last.fm username.")
		return err
	}
	if err := b.reg.Register(ctx, inv.msg.AuthorID, args[0]); err != nil {
		return err
	}
	return b.replier.React(ctx, inv.msg.ChannelID, inv.msg.ID, reactDone)
}

func (b *Bot) lastNow(ctx context.Context, inv *invocation) error {
	result, err := b.agg.NowPlaying(ctx, inv.msg.AuthorID)
	if err != nil {
		if sources.IsNotFound(err) {
			_, err = b.reply(ctx, inv.msg, "Nothing is currently scrobbling on last.fm")
			return err
		}
		return err
	}

	track := result.Track
	var lines []string
	lines = append(lines, fmt.Sprintf("**%s - %s**", track.Artist.Name, track.Name))
	if track.Album.Present() {
		album := track.Album.Name
		if track.Album.Date != nil && len(*track.Album.Date) >= 4 {
			album += fmt.Sprintf(" (%s)", (*track.Album.Date)[:4])
		}
		lines = append(lines, album)
	}
	if track.URL != nil {
		lines = append(lines, *track.URL)
	}
	if result.Source == aggregator.BasePresence {
		lines = append(lines, "Now playing on Spotify")
	} else {
		lines = append(lines, "Now scrobbling on last.fm")
	}

	_, err = b.reply(ctx, inv.msg, strings.Join(lines, "\n"))
	return err
}

func (b *Bot) lastRecent(ctx context.Context, inv *invocation) error {
	scrobbles, err := b.agg.Recent(ctx, inv.msg.AuthorID, chartLimit)
	if err != nil {
		return err
	}

	lines := []string{"**Recent scrobbles**"}
	for i, s := range scrobbles {
		lines = append(lines, fmt.Sprintf("%d. %s - %s", i+1, s.Track.Artist.Name, s.Track.Name))
	}
	_, err = b.reply(ctx, inv.msg, strings.Join(lines, "\n"))
	return err
}

func (b *Bot) lastChart(ctx context.Context, inv *invocation, kind, period string) error {
	var (
		entries []music.ChartEntry
		err     error
	)
	switch kind {
	case "tracks":
		entries, err = b.agg.TopTracks(ctx, inv.msg.AuthorID, period, chartLimit)
	case "albums":
		entries, err = b.agg.TopAlbums(ctx, inv.msg.AuthorID, period, chartLimit)
	case "artists":
		entries, err = b.agg.TopArtists(ctx, inv.msg.AuthorID, period, chartLimit)
	}
	if err != nil {
		return err
	}

	var table string
	if kind == "artists" {
		rows := make([][]string, len(entries))
		for i, e := range entries {
			rows[i] = []string{strconv.Itoa(i + 1), e.Artist, strconv.Itoa(e.PlayCount)}
		}
		table = artistChartTable([]string{"No", "Artist", "Scr."}, rows)
	} else {
		nameCol := "Title"
		if kind == "albums" {
			nameCol = "Album"
		}
		rows := make([][]string, len(entries))
		for i, e := range entries {
			rows[i] = []string{strconv.Itoa(i + 1), e.Artist, e.Title, strconv.Itoa(e.PlayCount)}
		}
		table = chartTable([]string{"No", "Artist", nameCol, "Scr."}, rows)
	}

	title := fmt.Sprintf("**Top %s (%s)**\n", kind, period)
	_, err = b.reply(ctx, inv.msg, title+table)
	return err
}

func (b *Bot) lastMy(ctx context.Context, inv *invocation) error {
	username, err := b.reg.Resolve(inv.msg.AuthorID)
	if err != nil {
		return err
	}
	_, err = b.reply(ctx, inv.msg, "https://www.last.fm/user/"+username)
	return err
}

func (b *Bot) handleTrack(ctx context.Context, inv *invocation) error {
	if inv.query == "" {
		_, err := b.reply(ctx, inv.msg, "Please supply a search query.")
		return err
	}

	track, err := b.agg.SearchTrack(ctx, inv.query)
	if err != nil {
		return err
	}
	if track.URL != nil {
		_, err = b.reply(ctx, inv.msg, *track.URL)
	} else {
		_, err = b.reply(ctx, inv.msg, fmt.Sprintf("%s - %s", track.Artist.Name, track.Name))
	}
	return err
}

func (b *Bot) handleAlbum(ctx context.Context, inv *invocation) error {
	result, err := b.agg.SearchAlbum(ctx, inv.msg.AuthorID, inv.query)
	if err != nil {
		return err
	}
	album := result.Album

	metrics := ""
	if album.Date != nil && len(*album.Date) >= 4 && album.TrackCount != nil && album.LengthMs != nil {
		minutes := *album.LengthMs / 60_000
		metrics = fmt.Sprintf("\n%s • %d songs, %d min", (*album.Date)[:4], *album.TrackCount, minutes)
	}

	result.URLs["RYM"] = rymSearch(album.Name, "l")
	text := fmt.Sprintf("**%s**\n*%s*%s\n\n%s", album.Name, album.Artist.Name, metrics, mkLinks(result.URLs))

	_, err = b.reply(ctx, inv.msg, text)
	return err
}

func (b *Bot) handleArtist(ctx context.Context, inv *invocation) error {
	result, err := b.agg.SearchArtist(ctx, inv.msg.AuthorID, inv.query)
	if err != nil {
		if sources.IsNotFound(err) {
			_, err = b.reply(ctx, inv.msg, "No artist found.")
			return err
		}
		return err
	}
	artist := result.Artist

	result.URLs["RYM"] = rymSearch(artist.Name, "a")

	var parts []string
	parts = append(parts, "**"+artist.Name+"**")
	if artist.Bio != nil && *artist.Bio != "" {
		parts = append(parts, *artist.Bio)
	}
	if artist.Tags != nil && *artist.Tags != "" {
		parts = append(parts, "Top Tags: "+*artist.Tags)
	}
	parts = append(parts, mkLinks(result.URLs))

	_, err = b.reply(ctx, inv.msg, strings.Join(parts, "\n\n"))
	return err
}

func (b *Bot) handleLyrics(ctx context.Context, inv *invocation) error {
	song, err := b.agg.Lyrics(ctx, inv.msg.AuthorID, inv.query)
	if err != nil {
		if sources.IsNotFound(err) && inv.query != "" {
			_, err = b.reply(ctx, inv.msg, fmt.Sprintf("Could not find '%s' on Genius.", inv.query))
			return err
		}
		return err
	}

	_, err = b.reply(ctx, inv.msg, fmt.Sprintf("**%s**\n%s", song.Title, song.URL))
	return err
}

// aiOptions reads the runtime assistant settings from the "ai" document.
func (b *Bot) aiOptions(authorName string) (string, ai.Options) {
	primer := b.aiDoc.GetString("system_message", "You are a helpful assistant.")
	opts := ai.Options{
		Model:           b.aiDoc.GetString("chat_model", "gpt-3.5-turbo"),
		Temperature:     b.aiDoc.GetFloat("temperature", 0.1),
		PresencePenalty: b.aiDoc.GetFloat("presence_penalty", 0.5),
		User:            authorName,
	}
	return primer, opts
}

// handleChat starts a new conversation from a prompt. The invocation is
// recorded so replies to the answer can reconstruct the thread with the
// same primer.
func (b *Bot) handleChat(ctx context.Context, inv *invocation) error {
	if inv.query == "" {
		_, err := b.reply(ctx, inv.msg, "Please supply a prompt.")
		return err
	}

	primer, opts := b.aiOptions(inv.msg.AuthorName)
	turns := []ai.Turn{
		{Role: ai.RoleSystem, Content: primer},
		{Role: ai.RoleUser, Content: inv.query},
	}

	genCtx, cancel := context.WithTimeout(ctx, b.genTimeout)
	defer cancel()
	text, err := b.completer.Chat(genCtx, turns, opts)
	if err != nil {
		return err
	}

	sentID, err := b.reply(ctx, inv.msg, fmt.Sprintf("> %s\n\n%s", inv.query, text))
	if err != nil {
		return err
	}
	b.invocations.Record(inv.msg.ID, primer)
	b.invocations.Record(sentID, primer)
	return nil
}

// continueConversation handles a reply to one of the bot's messages. A
// reply that does not trace back to a chat invocation is ignored without
// comment.
func (b *Bot) continueConversation(ctx context.Context, msg *platform.Message) {
	// Replies to other users never continue a conversation, skip the
	// walk when the parent is resident and not ours.
	if ref := msg.Referenced; ref != nil && !ref.AuthorBot {
		return
	}

	turns, err := b.convo.Reconstruct(ctx, msg)
	if err != nil {
		if !errors.Is(err, convo.ErrInvalidConversation) {
			log.Printf("Conversation reconstruction failed for message %s: %v", msg.ID, err)
		}
		return
	}

	_, opts := b.aiOptions(msg.AuthorName)
	genCtx, cancel := context.WithTimeout(ctx, b.genTimeout)
	defer cancel()
	text, err := b.completer.Chat(genCtx, turns, opts)
	if err != nil {
		var genErr *ai.GenerationError
		if errors.As(err, &genErr) {
			if _, rerr := b.reply(ctx, msg, genErr.Message); rerr != nil {
				log.Printf("Failed to send generation error reply: %v", rerr)
			}
			return
		}
		log.Printf("Conversation completion failed for message %s: %v", msg.ID, err)
		return
	}

	if _, err := b.reply(ctx, msg, text); err != nil {
		log.Printf("Failed to send conversation reply: %v", err)
	}
}

// handlePlays answers "who here played my current track the most".
func (b *Bot) handlePlays(ctx context.Context, inv *invocation) error {
	result, err := b.agg.NowPlaying(ctx, inv.msg.AuthorID)
	if err != nil {
		if sources.IsNotFound(err) {
			_, err = b.reply(ctx, inv.msg, "Nothing is currently scrobbling on last.fm")
			return err
		}
		return err
	}
	track := result.Track

	members, err := b.members.GuildMembers(ctx, inv.msg.GuildID)
	if err != nil {
		return err
	}
	registered := b.reg.ListRegistered(members)
	counts := b.agg.MemberPlayCounts(ctx, track.Artist.Name, track.Name, registered)

	rows := make([][]string, len(counts))
	for i, c := range counts {
		rows[i] = []string{c.DisplayName, strconv.Itoa(c.Count)}
	}
	table := makeTable([]int{tblNameWidth, -5}, []string{"Name", "Plays"}, rows)

	title := fmt.Sprintf("**Plays of %s - %s**\n", track.Artist.Name, track.Name)
	_, err = b.reply(ctx, inv.msg, title+table)
	return err
}

// handleConfig exposes the document store to the bot owner.
// Usage: config get <doc> <key> | config set <doc> <key> <value>
func (b *Bot) handleConfig(ctx context.Context, inv *invocation) error {
	if b.cfg.OwnerID == "" || inv.msg.AuthorID != b.cfg.OwnerID {
		return nil
	}
	if len(inv.args) < 3 {
		_, err := b.reply(ctx, inv.msg, "Usage: config get <doc> <key> | config set <doc> <key> <value>")
		return err
	}

	doc, err := b.docs.Open(inv.args[1], nil)
	if err != nil {
		return err
	}
	key := inv.args[2]

	switch inv.args[0] {
	case "get":
		value, ok := doc.Get(key)
		if !ok {
			_, err = b.reply(ctx, inv.msg, fmt.Sprintf("%s has no key '%s'", inv.args[1], key))
			return err
		}
		_, err = b.reply(ctx, inv.msg, fmt.Sprintf("%s = %v", key, value))
		return err

	case "set":
		if len(inv.args) < 4 {
			_, err = b.reply(ctx, inv.msg, "Usage: config set <doc> <key> <value>")
			return err
		}
		raw := strings.Join(inv.args[3:], " ")
		var value interface{} = raw
		if f, perr := strconv.ParseFloat(raw, 64); perr == nil {
			value = f
		}
		if err := doc.Set(key, value); err != nil {
			return err
		}
		return b.replier.React(ctx, inv.msg.ChannelID, inv.msg.ID, reactDone)

	default:
		_, err = b.reply(ctx, inv.msg, "Usage: config get <doc> <key> | config set <doc> <key> <value>")
		return err
	}
}
