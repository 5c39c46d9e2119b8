package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/scrypster/chorus/internal/aggregator"
	"github.com/scrypster/chorus/internal/ai"
	"github.com/scrypster/chorus/internal/bot"
	"github.com/scrypster/chorus/internal/config"
	"github.com/scrypster/chorus/internal/convo"
	"github.com/scrypster/chorus/internal/platform"
	"github.com/scrypster/chorus/internal/registry"
	"github.com/scrypster/chorus/internal/scrobbled"
	"github.com/scrypster/chorus/internal/sources"
)

func main() {
	// A local .env is a convenience for development; absence is fine.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	docs, err := config.NewDocStore(cfg.Bot.DataDir)
	if err != nil {
		log.Fatalf("Failed to open document store: %v", err)
	}
	musicDoc, err := docs.Open("music", map[string]interface{}{
		"names": map[string]interface{}{},
	})
	if err != nil {
		log.Fatalf("Failed to open music document: %v", err)
	}
	aiDoc, err := docs.Open("ai", map[string]interface{}{
		"chat_model":       "gpt-3.5-turbo",
		"system_message":   "You are a helpful assistant.",
		"temperature":      0.1,
		"presence_penalty": 0.5,
	})
	if err != nil {
		log.Fatalf("Failed to open ai document: %v", err)
	}

	lastfm := sources.NewLastFM(sources.LastFMConfig{
		APIKey:  cfg.LastFM.APIKey,
		Timeout: cfg.Timeouts.BaseLookup,
	})

	var catalog sources.CatalogSource
	if cfg.Spotify.ClientID != "" {
		catalog = sources.NewSpotify(sources.SpotifyConfig{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Timeout:      cfg.Timeouts.Enrichment,
		})
	} else {
		log.Println("No Spotify credentials, catalog enrichment disabled")
	}

	var lyrics sources.LyricsSource
	if cfg.Genius.AccessToken != "" {
		lyrics = sources.NewGenius(sources.GeniusConfig{
			AccessToken: cfg.Genius.AccessToken,
			Timeout:     cfg.Timeouts.BaseLookup,
		})
	} else {
		log.Println("No Genius token, lyrics lookups disabled")
	}

	completer, err := ai.NewChatCompleter(cfg.AI, cfg.Timeouts.Generation)
	if err != nil {
		log.Fatalf("Failed to create AI client: %v", err)
	}

	reg := registry.New(musicDoc, lastfm)
	presence := platform.NewPresenceCache()
	agg := aggregator.New(aggregator.Deps{
		Scrobble: lastfm,
		Catalog:  catalog,
		Lyrics:   lyrics,
		Presence: presence,
		Resolver: reg,
		Timeouts: aggregator.Timeouts{
			Base:       cfg.Timeouts.BaseLookup,
			Enrichment: cfg.Timeouts.Enrichment,
		},
	})

	discord := platform.NewDiscord(platform.DiscordConfig{Token: cfg.Discord.Token})
	invocations := convo.NewInvocationLog(cfg.Bot.InvocationHistory)

	playLog, err := scrobbled.NewPlayLog(filepath.Join(cfg.Bot.DataDir, "plays.db"))
	if err != nil {
		log.Fatalf("Failed to open play log: %v", err)
	}
	defer playLog.Close()
	watcher := scrobbled.NewWatcher(playLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The gateway is constructed before the bot so the bot can read its
	// user ID lazily; the reconstructor needs it per message, after READY.
	var gateway *platform.Gateway
	var chorus *bot.Bot
	gateway = platform.NewGateway(platform.GatewayConfig{Token: cfg.Discord.Token}, presence,
		func(msg *platform.Message) {
			chorus.HandleMessage(ctx, msg)
		})

	recon := convo.New(convo.Config{
		BotUserID:     gateway.BotUserID,
		Prefix:        cfg.Bot.CommandPrefix,
		Command:       "chat",
		DefaultPrimer: aiDoc.GetString("system_message", "You are a helpful assistant."),
		MaxDepth:      cfg.Bot.ConversationDepth,
	}, discord, invocations)

	chorus = bot.New(bot.Deps{
		Config:            cfg.Bot,
		Aggregator:        agg,
		Registry:          reg,
		Convo:             recon,
		Invocations:       invocations,
		Completer:         completer,
		Replier:           discord,
		Members:           discord,
		Docs:              docs,
		AIDoc:             aiDoc,
		GenerationTimeout: cfg.Timeouts.Generation,
	})

	gateway.OnPresence(func(userID string, state *platform.ListeningState) {
		now := time.Now()
		var s *scrobbled.State
		if state != nil {
			s = &scrobbled.State{
				Track:     state.Track,
				Start:     state.Start,
				End:       state.End,
				CreatedAt: state.CreatedAt,
			}
		}
		watcher.Observe(ctx, userID, s, now)
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- gateway.Run(ctx)
	}()
	log.Println("Chorus is online.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
		log.Println("Shutting down gracefully...")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			log.Fatalf("Gateway failed: %v", err)
		}
	}
}
