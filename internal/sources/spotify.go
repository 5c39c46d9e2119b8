package sources

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/scrypster/chorus/pkg/music"
)

const serviceSpotify = "Spotify"

// Query assembles a catalog search in the service's field:value token
// syntax. Zero fields are omitted; Text is the free-text part of the query.
type Query struct {
	Text   string
	Track  string
	Artist string
	Album  string
	Year   string
	Genre  string
}

// String renders the query. https://developer.spotify.com/documentation/web-api/reference/search
func (q Query) String() string {
	parts := make([]string, 0, 6)
	if q.Text != "" {
		parts = append(parts, q.Text)
	}
	for _, f := range []struct{ field, value string }{
		{"track", q.Track},
		{"artist", q.Artist},
		{"album", q.Album},
		{"year", q.Year},
		{"genre", q.Genre},
	} {
		if f.value != "" {
			parts = append(parts, f.field+":"+f.value)
		}
	}
	return strings.Join(parts, " ")
}

// SpotifyConfig holds configuration for the Spotify client.
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string        // default: https://api.spotify.com
	TokenURL     string        // default: https://accounts.spotify.com/api/token
	Timeout      time.Duration // default: 10s
}

// Spotify implements CatalogSource using the Web API with the
// client-credentials flow. The access token is cached and refreshed
// shortly before expiry.
type Spotify struct {
	cfg     SpotifyConfig
	client  *http.Client
	breaker *Breaker

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewSpotify creates a Spotify client with defaults applied.
func NewSpotify(cfg SpotifyConfig) *Spotify {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.spotify.com"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://accounts.spotify.com/api/token"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Spotify{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: NewBreaker(serviceSpotify, BreakerConfig{}),
	}
}

// token returns a valid access token, requesting a fresh one when the
// cached token is missing or within 30 seconds of expiry.
func (c *Spotify) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > 30*time.Second {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", srcErr(serviceSpotify, "failed to create token request", err)
	}
	creds := base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID + ":" + c.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+creds)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", srcErr(serviceSpotify, "token request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", srcErr(serviceSpotify, fmt.Sprintf("token endpoint returned status %d: %s", resp.StatusCode, body), nil)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", srcErr(serviceSpotify, "failed to decode token response", err)
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

// get performs an authenticated GET against path with query params and
// decodes the response into out.
func (c *Spotify) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}

	u := c.cfg.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	err = c.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("spotify returned status %d: %s", resp.StatusCode, body)
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return srcErr(serviceSpotify, "too many recent failures", err)
		}
		return srcErr(serviceSpotify, "request failed", err)
	}
	return nil
}

type spImage struct {
	URL string `json:"url"`
}

type spArtistRef struct {
	Name string `json:"name"`
}

// joinArtists renders a multi-artist credit the way the service UI does.
func joinArtists(artists []spArtistRef) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

func firstImage(images []spImage) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}

type spAlbum struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Artists      []spArtistRef `json:"artists"`
	Images       []spImage   `json:"images"`
	ReleaseDate  string      `json:"release_date"`
	TotalTracks  int         `json:"total_tracks"`
	Popularity   int         `json:"popularity"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
	Tracks *struct {
		Items []struct {
			DurationMs int `json:"duration_ms"`
		} `json:"items"`
	} `json:"tracks"`
}

type spTrack struct {
	Name         string        `json:"name"`
	DurationMs   int           `json:"duration_ms"`
	Popularity   int           `json:"popularity"`
	Artists      []spArtistRef `json:"artists"`
	Album        spAlbum       `json:"album"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

type spArtist struct {
	Name         string    `json:"name"`
	Genres       []string  `json:"genres"`
	Popularity   int       `json:"popularity"`
	Images       []spImage `json:"images"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

// searchResponse covers all three search types; only the requested one is
// populated.
type searchResponse struct {
	Tracks *struct {
		Items []spTrack `json:"items"`
	} `json:"tracks"`
	Albums *struct {
		Items []spAlbum `json:"items"`
	} `json:"albums"`
	Artists *struct {
		Items []spArtist `json:"items"`
	} `json:"artists"`
}

// search performs /v1/search with limit 1. The aggregator always wants a
// single best answer, never a list.
func (c *Spotify) search(ctx context.Context, query, kind string) (*searchResponse, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", kind)
	params.Set("limit", "1")

	var resp searchResponse
	if err := c.get(ctx, "/v1/search", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchTrack returns the single best track match for the query.
func (c *Spotify) SearchTrack(ctx context.Context, query string) (*music.Track, error) {
	resp, err := c.search(ctx, query, "track")
	if err != nil {
		return nil, err
	}
	if resp.Tracks == nil || len(resp.Tracks.Items) == 0 {
		return nil, ErrNotFound
	}
	return packSpotifyTrack(resp.Tracks.Items[0]), nil
}

func packSpotifyTrack(data spTrack) *music.Track {
	t := &music.Track{
		Name:   data.Name,
		Artist: music.Artist{Name: joinArtists(data.Artists)},
		Album: music.Album{
			Name:     data.Album.Name,
			Artist:   music.Artist{Name: joinArtists(data.Album.Artists)},
			ImageURL: music.Str(firstImage(data.Album.Images)),
			Date:     music.Str(data.Album.ReleaseDate),
		},
		URL: music.Str(data.ExternalURLs.Spotify),
	}
	if data.DurationMs > 0 {
		t.LengthMs = music.Int(data.DurationMs)
	}
	if data.Popularity > 0 {
		t.Popularity = music.Int(data.Popularity)
	}
	return t
}

// SearchAlbum returns the best album match. With extended set it performs
// the follow-up full-album lookup for track count, total length and
// popularity.
func (c *Spotify) SearchAlbum(ctx context.Context, query string, extended bool) (*music.Album, error) {
	resp, err := c.search(ctx, query, "album")
	if err != nil {
		return nil, err
	}
	if resp.Albums == nil || len(resp.Albums.Items) == 0 {
		return nil, ErrNotFound
	}
	match := resp.Albums.Items[0]

	if extended && match.ID != "" {
		var full spAlbum
		if err := c.get(ctx, "/v1/albums/"+match.ID, nil, &full); err != nil {
			return nil, err
		}
		match = full
	}

	album := &music.Album{
		Name:     match.Name,
		Artist:   music.Artist{Name: joinArtists(match.Artists)},
		URL:      music.Str(match.ExternalURLs.Spotify),
		ImageURL: music.Str(firstImage(match.Images)),
		Date:     music.Str(match.ReleaseDate),
	}

	// The full-album response carries the track listing.
	if match.Tracks != nil {
		total := 0
		for _, t := range match.Tracks.Items {
			total += t.DurationMs
		}
		album.LengthMs = music.Int(total)
		album.TrackCount = music.Int(len(match.Tracks.Items))
		if match.Popularity > 0 {
			album.Popularity = music.Int(match.Popularity)
		}
	}
	return album, nil
}

// SearchArtist returns the best artist match.
func (c *Spotify) SearchArtist(ctx context.Context, query string) (*music.Artist, error) {
	resp, err := c.search(ctx, query, "artist")
	if err != nil {
		return nil, err
	}
	if resp.Artists == nil || len(resp.Artists.Items) == 0 {
		return nil, ErrNotFound
	}
	match := resp.Artists.Items[0]

	artist := &music.Artist{
		Name:     match.Name,
		Tags:     music.Str(strings.Join(match.Genres, ", ")),
		URL:      music.Str(match.ExternalURLs.Spotify),
		ImageURL: music.Str(firstImage(match.Images)),
	}
	if match.Popularity > 0 {
		artist.Popularity = music.Int(match.Popularity)
	}
	return artist, nil
}

// Compile-time assertion.
var _ CatalogSource = (*Spotify)(nil)
