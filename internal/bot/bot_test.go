package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/chorus/internal/aggregator"
	"github.com/scrypster/chorus/internal/ai"
	"github.com/scrypster/chorus/internal/config"
	"github.com/scrypster/chorus/internal/convo"
	"github.com/scrypster/chorus/internal/platform"
	"github.com/scrypster/chorus/internal/registry"
	"github.com/scrypster/chorus/internal/sources"
	"github.com/scrypster/chorus/pkg/music"
)

// fakeScrobble serves canned scrobble-service answers.
type fakeScrobble struct {
	nowPlaying    *music.Track
	nowPlayingErr error
	topTracks     []music.ChartEntry
	playCounts    map[string]int
	knownUsers    map[string]bool
}

func (f *fakeScrobble) NowPlaying(_ context.Context, _ string) (*music.Track, error) {
	if f.nowPlayingErr != nil {
		return nil, f.nowPlayingErr
	}
	if f.nowPlaying == nil {
		return nil, sources.ErrNotFound
	}
	return f.nowPlaying, nil
}

func (f *fakeScrobble) RecentTracks(_ context.Context, _ string, _ int) ([]music.Scrobble, error) {
	return nil, nil
}

func (f *fakeScrobble) TopTracks(_ context.Context, _ string, _ music.Period, _ int) ([]music.ChartEntry, error) {
	return f.topTracks, nil
}

func (f *fakeScrobble) TopAlbums(_ context.Context, _ string, _ music.Period, _ int) ([]music.ChartEntry, error) {
	return nil, nil
}

func (f *fakeScrobble) TopArtists(_ context.Context, _ string, _ music.Period, _ int) ([]music.ChartEntry, error) {
	return nil, nil
}

func (f *fakeScrobble) TrackPlayCount(_ context.Context, user, _, _ string) (int, error) {
	return f.playCounts[user], nil
}

func (f *fakeScrobble) SearchAlbum(_ context.Context, _ string) (*music.Album, error) {
	return nil, sources.ErrNotFound
}

func (f *fakeScrobble) SearchArtist(_ context.Context, _ string, _ bool) (*music.Artist, error) {
	return nil, sources.ErrNotFound
}

func (f *fakeScrobble) UserExists(_ context.Context, user string) (bool, error) {
	return f.knownUsers[user], nil
}

// fakeCatalog answers every search with a fixed track.
type fakeCatalog struct {
	track *music.Track
}

func (f *fakeCatalog) SearchTrack(_ context.Context, _ string) (*music.Track, error) {
	if f.track == nil {
		return nil, sources.ErrNotFound
	}
	return f.track, nil
}

func (f *fakeCatalog) SearchAlbum(_ context.Context, _ string, _ bool) (*music.Album, error) {
	return nil, sources.ErrNotFound
}

func (f *fakeCatalog) SearchArtist(_ context.Context, _ string) (*music.Artist, error) {
	return nil, sources.ErrNotFound
}

type fakePresence struct {
	listening map[string]*music.Track
}

func (f *fakePresence) Listening(userID string) *music.Track { return f.listening[userID] }

// fakeReplier records outbound replies and reactions.
type fakeReplier struct {
	replies   []string
	reactions []string
	nextID    int
}

func (f *fakeReplier) Reply(_ context.Context, _, _ string, text string) (string, error) {
	f.replies = append(f.replies, text)
	f.nextID++
	return fmt.Sprintf("sent-%d", f.nextID), nil
}

func (f *fakeReplier) React(_ context.Context, _, _, emoji string) error {
	f.reactions = append(f.reactions, emoji)
	return nil
}

type fakeMembers struct {
	members []platform.Member
}

func (f *fakeMembers) GuildMembers(_ context.Context, _ string) ([]platform.Member, error) {
	return f.members, nil
}

// fakeCompleter records the last conversation and answers with one line.
type fakeCompleter struct {
	turns []ai.Turn
	opts  ai.Options
	text  string
	err   error
}

func (f *fakeCompleter) Chat(_ context.Context, turns []ai.Turn, opts ai.Options) (string, error) {
	f.turns = turns
	f.opts = opts
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeFetcher struct {
	messages map[string]*platform.Message
}

func (f *fakeFetcher) FetchMessage(_ context.Context, _, id string) (*platform.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("no such message %s", id)
	}
	return m, nil
}

// testBot wires a Bot over fakes with a real registry, aggregator and
// reconstructor.
type testBot struct {
	bot       *Bot
	scrobble  *fakeScrobble
	catalog   *fakeCatalog
	presence  *fakePresence
	replier   *fakeReplier
	members   *fakeMembers
	completer *fakeCompleter
	fetcher   *fakeFetcher
	log       *convo.InvocationLog
	reg       *registry.Registry
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()

	docs, err := config.NewDocStore(t.TempDir())
	require.NoError(t, err)
	musicDoc, err := docs.Open("music", map[string]interface{}{"names": map[string]interface{}{}})
	require.NoError(t, err)
	aiDoc, err := docs.Open("ai", map[string]interface{}{
		"chat_model":       "gpt-3.5-turbo",
		"system_message":   "You are a helpful assistant.",
		"temperature":      0.1,
		"presence_penalty": 0.5,
	})
	require.NoError(t, err)

	tb := &testBot{
		scrobble:  &fakeScrobble{knownUsers: map[string]bool{"alice_fm": true}},
		catalog:   &fakeCatalog{},
		presence:  &fakePresence{listening: map[string]*music.Track{}},
		replier:   &fakeReplier{},
		members:   &fakeMembers{},
		completer: &fakeCompleter{text: "generated"},
		fetcher:   &fakeFetcher{messages: map[string]*platform.Message{}},
		log:       convo.NewInvocationLog(10),
	}
	tb.reg = registry.New(musicDoc, tb.scrobble)

	agg := aggregator.New(aggregator.Deps{
		Scrobble: tb.scrobble,
		Catalog:  tb.catalog,
		Presence: tb.presence,
		Resolver: tb.reg,
	})
	recon := convo.New(convo.Config{
		BotUserID:     func() string { return "bot" },
		Prefix:        "!",
		Command:       "chat",
		DefaultPrimer: "You are a helpful assistant.",
	}, tb.fetcher, tb.log)

	tb.bot = New(Deps{
		Config:      config.BotConfig{CommandPrefix: "!", OwnerID: "owner"},
		Aggregator:  agg,
		Registry:    tb.reg,
		Convo:       recon,
		Invocations: tb.log,
		Completer:   tb.completer,
		Replier:     tb.replier,
		Members:     tb.members,
		Docs:        docs,
		AIDoc:       aiDoc,
	})
	return tb
}

func message(id, author, content string) *platform.Message {
	return &platform.Message{
		ID: id, ChannelID: "chan", GuildID: "guild",
		AuthorID: author, AuthorName: author, Content: content,
	}
}

func (tb *testBot) handle(msg *platform.Message) {
	tb.bot.HandleMessage(context.Background(), msg)
}

func TestRegisterReactsAndResolves(t *testing.T) {
	tb := newTestBot(t)
	tb.handle(message("1", "alice", "!last register alice_fm"))

	require.Equal(t, []string{reactDone}, tb.replier.reactions)
	username, err := tb.reg.Resolve("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice_fm", username)
}

func TestRegisterUnknownUser(t *testing.T) {
	tb := newTestBot(t)
	tb.handle(message("1", "alice", "!last register nobody"))

	require.Len(t, tb.replier.replies, 1)
	assert.Equal(t, "User does not exist.", tb.replier.replies[0])
	assert.Empty(t, tb.replier.reactions)
}

func TestNowFromPresence(t *testing.T) {
	tb := newTestBot(t)
	tb.presence.listening["alice"] = &music.Track{
		Name:   "Helicon 1",
		Artist: music.Artist{Name: "Mogwai"},
	}
	tb.handle(message("1", "alice", "!last now"))

	require.Len(t, tb.replier.replies, 1)
	reply := tb.replier.replies[0]
	assert.Contains(t, reply, "**Mogwai - Helicon 1**")
	assert.Contains(t, reply, "Now playing on Spotify")
}

func TestNowRequiresRegistrationWithoutPresence(t *testing.T) {
	tb := newTestBot(t)
	tb.handle(message("1", "alice", "!last now"))

	require.Len(t, tb.replier.replies, 1)
	assert.Equal(t, "You must register with `!last register` first.", tb.replier.replies[0])
}

func TestNowNothingScrobbling(t *testing.T) {
	tb := newTestBot(t)
	tb.handle(message("1", "alice", "!last register alice_fm"))
	tb.handle(message("2", "alice", "!last now"))

	require.Len(t, tb.replier.replies, 1)
	assert.Equal(t, "Nothing is currently scrobbling on last.fm", tb.replier.replies[0])
}

func TestUnknownChartPeriod(t *testing.T) {
	tb := newTestBot(t)
	tb.handle(message("1", "alice", "!last register alice_fm"))
	tb.handle(message("2", "alice", "!last tracks 2w"))

	require.Len(t, tb.replier.replies, 1)
	assert.Equal(t, "Unknown time-period. Possible values: all, 7d, 1m, 3m, 6m, 12m", tb.replier.replies[0])
}

func TestTopTracksTable(t *testing.T) {
	tb := newTestBot(t)
	tb.scrobble.topTracks = []music.ChartEntry{
		{Artist: "Mogwai", Title: "Mr Beast", PlayCount: 42},
	}
	tb.handle(message("1", "alice", "!last register alice_fm"))
	tb.handle(message("2", "alice", "!last tracks 7d"))

	require.Len(t, tb.replier.replies, 1)
	reply := tb.replier.replies[0]
	assert.Contains(t, reply, "**Top tracks (7d)**")
	assert.Contains(t, reply, "```")
	assert.Contains(t, reply, "Mogwai")
	assert.Contains(t, reply, "42")
}

func TestTrackRepliesWithURL(t *testing.T) {
	tb := newTestBot(t)
	tb.catalog.track = &music.Track{
		Name:   "Mr Beast",
		Artist: music.Artist{Name: "Mogwai"},
		URL:    music.Str("https://open.spotify.com/track/x"),
	}
	tb.handle(message("1", "alice", "!track Mr Beast"))

	require.Equal(t, []string{"https://open.spotify.com/track/x"}, tb.replier.replies)
}

func TestTrackNoResults(t *testing.T) {
	tb := newTestBot(t)
	tb.handle(message("1", "alice", "!track unfindable"))

	require.Equal(t, []string{"No results found."}, tb.replier.replies)
}

func TestSourceErrorMessage(t *testing.T) {
	tb := newTestBot(t)
	tb.scrobble.nowPlayingErr = &sources.SourceError{Service: "last.fm", Message: "HTTP 500"}
	tb.handle(message("1", "alice", "!last register alice_fm"))
	tb.handle(message("2", "alice", "!last now"))

	require.Len(t, tb.replier.replies, 1)
	assert.Equal(t,
		"There was an error while communicating with the last.fm API, please try again later.",
		tb.replier.replies[0])
}

func TestChatQuotesPromptAndRecordsInvocation(t *testing.T) {
	tb := newTestBot(t)
	tb.handle(message("1", "alice", "!chat what is post-rock"))

	require.Len(t, tb.replier.replies, 1)
	assert.Equal(t, "> what is post-rock\n\ngenerated", tb.replier.replies[0])

	require.Len(t, tb.completer.turns, 2)
	assert.Equal(t, ai.RoleSystem, tb.completer.turns[0].Role)
	assert.Equal(t, "what is post-rock", tb.completer.turns[1].Content)
	assert.Equal(t, "gpt-3.5-turbo", tb.completer.opts.Model)
	assert.Equal(t, "alice", tb.completer.opts.User)

	_, ok := tb.log.Lookup("1")
	assert.True(t, ok, "invocation recorded under the prompt message")
	_, ok = tb.log.Lookup("sent-1")
	assert.True(t, ok, "invocation recorded under the reply message")
}

func TestChatProviderErrorVerbatim(t *testing.T) {
	tb := newTestBot(t)
	tb.completer.err = &ai.GenerationError{Provider: "openai", Message: "Rate limit reached"}
	tb.handle(message("1", "alice", "!chat hi"))

	require.Equal(t, []string{"Rate limit reached"}, tb.replier.replies)
}

func TestReplyContinuesConversation(t *testing.T) {
	tb := newTestBot(t)
	tb.handle(message("1", "alice", "!chat hi"))
	tb.replier.replies = nil

	root := message("1", "alice", "!chat hi")
	botReply := &platform.Message{
		ID: "sent-1", ChannelID: "chan", AuthorID: "bot", AuthorBot: true,
		Content: "> hi\n\ngenerated", ReferenceID: "1", Referenced: root,
	}
	followUp := message("2", "alice", "tell me more")
	followUp.ReferenceID = "sent-1"
	followUp.Referenced = botReply

	tb.handle(followUp)

	require.Equal(t, []string{"generated"}, tb.replier.replies)
	require.Len(t, tb.completer.turns, 4)
	assert.Equal(t, ai.RoleAssistant, tb.completer.turns[2].Role)
	assert.Equal(t, "tell me more", tb.completer.turns[3].Content)
}

func TestReplyToForeignMessageIgnored(t *testing.T) {
	tb := newTestBot(t)
	parent := message("1", "bob", "nice weather")
	reply := message("2", "alice", "sure is")
	reply.ReferenceID = "1"
	reply.Referenced = parent

	tb.handle(reply)

	assert.Empty(t, tb.replier.replies)
	assert.Nil(t, tb.completer.turns)
}

func TestPlaysTable(t *testing.T) {
	tb := newTestBot(t)
	tb.presence.listening["alice"] = &music.Track{
		Name:   "Mr Beast",
		Artist: music.Artist{Name: "Mogwai"},
	}
	tb.scrobble.knownUsers["bob_fm"] = true
	tb.scrobble.playCounts = map[string]int{"alice_fm": 12, "bob_fm": 30}
	tb.members.members = []platform.Member{
		{UserID: "alice", DisplayName: "Alice"},
		{UserID: "bob", DisplayName: "Bob"},
		{UserID: "carol", DisplayName: "Carol"},
	}
	tb.handle(message("1", "alice", "!last register alice_fm"))
	tb.handle(message("2", "bob", "!last register bob_fm"))
	tb.handle(message("3", "alice", "!plays"))

	require.Len(t, tb.replier.replies, 1)
	reply := tb.replier.replies[0]
	assert.Contains(t, reply, "**Plays of Mogwai - Mr Beast**")
	assert.NotContains(t, reply, "Carol", "unregistered members excluded")
	bobRow := strings.Index(reply, "Bob")
	aliceRow := strings.Index(reply, "Alice")
	assert.Less(t, bobRow, aliceRow, "sorted by play count descending")
}

func TestConfigGatedOnOwner(t *testing.T) {
	tb := newTestBot(t)
	tb.handle(message("1", "alice", "!config get ai chat_model"))
	assert.Empty(t, tb.replier.replies, "non-owner gets no answer")

	tb.handle(message("2", "owner", "!config get ai chat_model"))
	require.Len(t, tb.replier.replies, 1)
	assert.Equal(t, "chat_model = gpt-3.5-turbo", tb.replier.replies[0])

	tb.handle(message("3", "owner", "!config set ai temperature 0.7"))
	require.Equal(t, []string{reactDone}, tb.replier.reactions)
}

func TestSplitMessage(t *testing.T) {
	long := strings.Repeat("line one\n", 300)
	chunks := splitMessage(long, 2000)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 2000)
	}
	assert.Equal(t, long, strings.Join(chunks, ""))

	assert.Equal(t, []string{"short"}, splitMessage("short", 2000))
}
