package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const serviceGenius = "Genius"

// GeniusConfig holds configuration for the Genius client.
type GeniusConfig struct {
	AccessToken string
	BaseURL     string        // default: https://api.genius.com
	Timeout     time.Duration // default: 10s
}

// Genius implements LyricsSource against the Genius search API. Only the
// song page link and thumbnail are used; lyric text stays on their site.
type Genius struct {
	cfg     GeniusConfig
	client  *http.Client
	breaker *Breaker
}

// NewGenius creates a Genius client with defaults applied.
func NewGenius(cfg GeniusConfig) *Genius {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.genius.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Genius{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: NewBreaker(serviceGenius, BreakerConfig{}),
	}
}

// SearchSong returns the top search hit for the query, or ErrNotFound when
// the search comes back empty.
func (c *Genius) SearchSong(ctx context.Context, query string) (*Song, error) {
	params := url.Values{}
	params.Set("q", query)

	var resp struct {
		Response struct {
			Hits []struct {
				Result struct {
					FullTitle      string `json:"full_title"`
					URL            string `json:"url"`
					HeaderImageURL string `json:"header_image_url"`
				} `json:"result"`
			} `json:"hits"`
		} `json:"response"`
	}

	err := c.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/search?"+params.Encode(), nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

		httpResp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer func() { _ = httpResp.Body.Close() }()

		if httpResp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(httpResp.Body)
			return fmt.Errorf("genius returned status %d: %s", httpResp.StatusCode, body)
		}
		return json.NewDecoder(httpResp.Body).Decode(&resp)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, srcErr(serviceGenius, "too many recent failures", err)
		}
		return nil, srcErr(serviceGenius, "request failed", err)
	}

	if len(resp.Response.Hits) == 0 {
		return nil, ErrNotFound
	}
	hit := resp.Response.Hits[0].Result
	return &Song{
		Title:        hit.FullTitle,
		URL:          hit.URL,
		ThumbnailURL: hit.HeaderImageURL,
	}, nil
}

// Compile-time assertion.
var _ LyricsSource = (*Genius)(nil)
