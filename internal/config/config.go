// Package config provides configuration for Chorus. Bootstrap settings
// (API credentials, provider selection, tunables) come from environment
// variables with the CHORUS_ prefix, optionally seeded from a YAML file
// (environment wins). Runtime state that components mutate (registered
// usernames, assistant settings) lives in per-group JSON documents managed
// by the document store.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all bootstrap configuration for the bot.
type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Discord  DiscordConfig  `yaml:"discord"`
	LastFM   LastFMConfig   `yaml:"lastfm"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
	Genius   GeniusConfig   `yaml:"genius"`
	AI       AIConfig       `yaml:"ai"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// BotConfig contains command-surface settings.
type BotConfig struct {
	CommandPrefix string `yaml:"command_prefix"` // default: "!"
	DataDir       string `yaml:"data_dir"`       // default: ./data
	OwnerID       string `yaml:"owner_id"`       // platform user allowed to run admin commands

	// ConversationDepth caps how far a reply chain is walked before the
	// conversation is rejected. Default: 50.
	ConversationDepth int `yaml:"conversation_depth"`

	// InvocationHistory is the capacity of the invocation ring buffer.
	// Default: 100.
	InvocationHistory int `yaml:"invocation_history"`
}

// DiscordConfig contains chat-platform credentials.
type DiscordConfig struct {
	Token string `yaml:"token"`
}

// LastFMConfig contains scrobble-service credentials.
type LastFMConfig struct {
	APIKey string `yaml:"api_key"`
}

// SpotifyConfig contains streaming-catalog credentials.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// GeniusConfig contains lyrics-service credentials.
type GeniusConfig struct {
	AccessToken string `yaml:"access_token"`
}

// AIConfig contains chat-completion provider configuration. The model and
// sampling parameters live in the "ai" config document so they can change
// at runtime; only the provider wiring is bootstrap config.
type AIConfig struct {
	Provider string `yaml:"provider"` // openai or ollama (default: openai)
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// TimeoutsConfig bounds the external calls.
type TimeoutsConfig struct {
	BaseLookup time.Duration `yaml:"base_lookup"` // required/base source (default: 10s)
	Enrichment time.Duration `yaml:"enrichment"`  // enrichment sources (default: 5s)
	Generation time.Duration `yaml:"generation"`  // chat completion (default: 60s)
}

// Load builds the configuration: defaults, then the YAML file named by
// CHORUS_CONFIG (if set), then environment overrides.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CHORUS_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Bot: BotConfig{
			CommandPrefix:     "!",
			DataDir:           "./data",
			ConversationDepth: 50,
			InvocationHistory: 100,
		},
		AI: AIConfig{
			Provider: "openai",
		},
		Timeouts: TimeoutsConfig{
			BaseLookup: 10 * time.Second,
			Enrichment: 5 * time.Second,
			Generation: 60 * time.Second,
		},
	}
}

func applyEnv(cfg *Config) {
	setEnvStr(&cfg.Bot.CommandPrefix, "CHORUS_COMMAND_PREFIX")
	setEnvStr(&cfg.Bot.DataDir, "CHORUS_DATA_DIR")
	setEnvStr(&cfg.Bot.OwnerID, "CHORUS_OWNER_ID")
	setEnvInt(&cfg.Bot.ConversationDepth, "CHORUS_CONVERSATION_DEPTH")
	setEnvInt(&cfg.Bot.InvocationHistory, "CHORUS_INVOCATION_HISTORY")

	setEnvStr(&cfg.Discord.Token, "CHORUS_DISCORD_TOKEN")
	setEnvStr(&cfg.LastFM.APIKey, "CHORUS_LASTFM_API_KEY")
	setEnvStr(&cfg.Spotify.ClientID, "CHORUS_SPOTIFY_CLIENT_ID")
	setEnvStr(&cfg.Spotify.ClientSecret, "CHORUS_SPOTIFY_CLIENT_SECRET")
	setEnvStr(&cfg.Genius.AccessToken, "CHORUS_GENIUS_ACCESS_TOKEN")

	setEnvStr(&cfg.AI.Provider, "CHORUS_AI_PROVIDER")
	setEnvStr(&cfg.AI.APIKey, "CHORUS_AI_API_KEY")
	setEnvStr(&cfg.AI.BaseURL, "CHORUS_AI_BASE_URL")

	setEnvDuration(&cfg.Timeouts.BaseLookup, "CHORUS_TIMEOUT_BASE_LOOKUP")
	setEnvDuration(&cfg.Timeouts.Enrichment, "CHORUS_TIMEOUT_ENRICHMENT")
	setEnvDuration(&cfg.Timeouts.Generation, "CHORUS_TIMEOUT_GENERATION")
}

// Validate reports the first missing required credential.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("config: CHORUS_DISCORD_TOKEN is required")
	}
	if c.LastFM.APIKey == "" {
		return fmt.Errorf("config: CHORUS_LASTFM_API_KEY is required")
	}
	return nil
}

func setEnvStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setEnvInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setEnvDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
