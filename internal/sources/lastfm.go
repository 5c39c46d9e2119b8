package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/scrypster/chorus/pkg/music"
)

const serviceLastFM = "last.fm"

// lastfmErrUserNotFound is the API error code last.fm uses for "no such
// user / track / artist" answers. It is a no-match outcome, not a failure.
const lastfmErrNotFound = 6

// LastFMConfig holds configuration for the last.fm client.
type LastFMConfig struct {
	APIKey         string
	BaseURL        string        // default: https://ws.audioscrobbler.com/2.0/
	Timeout        time.Duration // default: 10s
	RequestsPerSec float64       // default: 4, per last.fm fair-use terms
}

// LastFM implements ScrobbleSource against the last.fm JSON API 2.0.
// All outbound calls pass through a rate limiter and a circuit breaker.
type LastFM struct {
	cfg     LastFMConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *Breaker
}

// NewLastFM creates a last.fm client with defaults applied.
func NewLastFM(cfg LastFMConfig) *LastFM {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://ws.audioscrobbler.com/2.0/"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSec == 0 {
		cfg.RequestsPerSec = 4
	}
	return &LastFM{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		breaker: NewBreaker(serviceLastFM, BreakerConfig{}),
	}
}

// lastfmError is the API-level error envelope.
type lastfmError struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

// lfmImage is one entry of the image arrays the API attaches to most
// entities, keyed by size.
type lfmImage struct {
	URL  string `json:"#text"`
	Size string `json:"size"`
}

// bestImage picks the extralarge rendition when present, else the last
// non-empty one. Missing images are fine; we leave the field unset.
func bestImage(images []lfmImage) string {
	var fallback string
	for _, img := range images {
		if img.URL == "" {
			continue
		}
		if img.Size == "extralarge" {
			return img.URL
		}
		fallback = img.URL
	}
	return fallback
}

// call performs one API method call and decodes the response into out.
// API error code 6 maps to ErrNotFound; everything else that goes wrong
// becomes a *SourceError.
func (c *LastFM) call(ctx context.Context, method string, params map[string]string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return srcErr(serviceLastFM, "rate limiter wait aborted", err)
	}

	q := url.Values{}
	q.Set("method", method)
	q.Set("api_key", c.cfg.APIKey)
	q.Set("format", "json")
	for k, v := range params {
		q.Set(k, v)
	}

	var body []byte
	err := c.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("last.fm returned status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return srcErr(serviceLastFM, "too many recent failures", err)
		}
		return srcErr(serviceLastFM, "request failed", err)
	}

	// last.fm reports API-level errors inside a 200/4xx body.
	var apiErr lastfmError
	if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Code != 0 {
		if apiErr.Code == lastfmErrNotFound {
			return ErrNotFound
		}
		return srcErr(serviceLastFM, apiErr.Message, nil)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return srcErr(serviceLastFM, "failed to decode response", err)
	}
	return nil
}

type lfmRecentTrack struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Artist struct {
		Name string `json:"#text"`
	} `json:"artist"`
	Album struct {
		Name string `json:"#text"`
	} `json:"album"`
	Image []lfmImage `json:"image"`
	Attr  *struct {
		NowPlaying string `json:"nowplaying"`
	} `json:"@attr"`
	Date *struct {
		UTS string `json:"uts"`
	} `json:"date"`
}

type lfmRecentTracksResponse struct {
	RecentTracks struct {
		Track []lfmRecentTrack `json:"track"`
	} `json:"recenttracks"`
}

func packRecentTrack(data lfmRecentTrack) music.Track {
	t := music.Track{
		Name:   data.Name,
		Artist: music.Artist{Name: data.Artist.Name},
		URL:    music.Str(data.URL),
	}
	if data.Album.Name != "" {
		t.Album = music.Album{
			Name:     data.Album.Name,
			Artist:   music.Artist{Name: data.Artist.Name},
			ImageURL: music.Str(bestImage(data.Image)),
		}
	}
	return t
}

// NowPlaying returns the user's in-progress scrobble, or ErrNotFound when
// nothing is playing right now.
func (c *LastFM) NowPlaying(ctx context.Context, user string) (*music.Track, error) {
	var resp lfmRecentTracksResponse
	err := c.call(ctx, "user.getRecentTracks", map[string]string{"user": user, "limit": "1"}, &resp)
	if err != nil {
		return nil, err
	}

	tracks := resp.RecentTracks.Track
	if len(tracks) == 0 || tracks[0].Attr == nil || tracks[0].Attr.NowPlaying != "true" {
		return nil, ErrNotFound
	}

	track := packRecentTrack(tracks[0])
	return &track, nil
}

// RecentTracks returns the user's latest scrobbles, newest first. The
// in-progress play, when present, is included with NowPlaying set.
func (c *LastFM) RecentTracks(ctx context.Context, user string, limit int) ([]music.Scrobble, error) {
	if limit <= 0 {
		limit = 10
	}
	var resp lfmRecentTracksResponse
	err := c.call(ctx, "user.getRecentTracks", map[string]string{"user": user, "limit": strconv.Itoa(limit)}, &resp)
	if err != nil {
		return nil, err
	}

	scrobbles := make([]music.Scrobble, 0, len(resp.RecentTracks.Track))
	for _, t := range resp.RecentTracks.Track {
		s := music.Scrobble{Track: packRecentTrack(t)}
		if t.Attr != nil && t.Attr.NowPlaying == "true" {
			s.NowPlaying = true
		} else if t.Date != nil {
			if uts, err := strconv.ParseInt(t.Date.UTS, 10, 64); err == nil {
				s.PlayedAt = time.Unix(uts, 0).UTC()
			}
		}
		scrobbles = append(scrobbles, s)
	}
	return scrobbles, nil
}

// chartPeriods maps our period names onto the API's.
var chartPeriods = map[music.Period]string{
	music.PeriodOverall: "overall",
	music.Period7Days:   "7day",
	music.Period1Month:  "1month",
	music.Period3Month:  "3month",
	music.Period6Month:  "6month",
	music.Period12Month: "12month",
}

func apiPeriod(p music.Period) (string, error) {
	v, ok := chartPeriods[p]
	if !ok {
		return "", fmt.Errorf("unknown chart period %q", p)
	}
	return v, nil
}

// TopTracks returns the user's most played tracks over the period.
func (c *LastFM) TopTracks(ctx context.Context, user string, period music.Period, limit int) ([]music.ChartEntry, error) {
	p, err := apiPeriod(period)
	if err != nil {
		return nil, err
	}
	var resp struct {
		TopTracks struct {
			Track []struct {
				Name      string `json:"name"`
				PlayCount string `json:"playcount"`
				Artist    struct {
					Name string `json:"name"`
				} `json:"artist"`
			} `json:"track"`
		} `json:"toptracks"`
	}
	err = c.call(ctx, "user.getTopTracks", map[string]string{
		"user": user, "period": p, "limit": strconv.Itoa(limit),
	}, &resp)
	if err != nil {
		return nil, err
	}

	entries := make([]music.ChartEntry, 0, len(resp.TopTracks.Track))
	for _, t := range resp.TopTracks.Track {
		count, _ := strconv.Atoi(t.PlayCount)
		entries = append(entries, music.ChartEntry{Artist: t.Artist.Name, Title: t.Name, PlayCount: count})
	}
	return entries, nil
}

// TopAlbums returns the user's most played albums over the period.
func (c *LastFM) TopAlbums(ctx context.Context, user string, period music.Period, limit int) ([]music.ChartEntry, error) {
	p, err := apiPeriod(period)
	if err != nil {
		return nil, err
	}
	var resp struct {
		TopAlbums struct {
			Album []struct {
				Name      string `json:"name"`
				PlayCount string `json:"playcount"`
				Artist    struct {
					Name string `json:"name"`
				} `json:"artist"`
			} `json:"album"`
		} `json:"topalbums"`
	}
	err = c.call(ctx, "user.getTopAlbums", map[string]string{
		"user": user, "period": p, "limit": strconv.Itoa(limit),
	}, &resp)
	if err != nil {
		return nil, err
	}

	entries := make([]music.ChartEntry, 0, len(resp.TopAlbums.Album))
	for _, a := range resp.TopAlbums.Album {
		count, _ := strconv.Atoi(a.PlayCount)
		entries = append(entries, music.ChartEntry{Artist: a.Artist.Name, Title: a.Name, PlayCount: count})
	}
	return entries, nil
}

// TopArtists returns the user's most played artists over the period.
func (c *LastFM) TopArtists(ctx context.Context, user string, period music.Period, limit int) ([]music.ChartEntry, error) {
	p, err := apiPeriod(period)
	if err != nil {
		return nil, err
	}
	var resp struct {
		TopArtists struct {
			Artist []struct {
				Name      string `json:"name"`
				PlayCount string `json:"playcount"`
			} `json:"artist"`
		} `json:"topartists"`
	}
	err = c.call(ctx, "user.getTopArtists", map[string]string{
		"user": user, "period": p, "limit": strconv.Itoa(limit),
	}, &resp)
	if err != nil {
		return nil, err
	}

	entries := make([]music.ChartEntry, 0, len(resp.TopArtists.Artist))
	for _, a := range resp.TopArtists.Artist {
		count, _ := strconv.Atoi(a.PlayCount)
		entries = append(entries, music.ChartEntry{Artist: a.Name, PlayCount: count})
	}
	return entries, nil
}

// TrackPlayCount returns how many times the user has scrobbled the track.
// An unknown track maps to ErrNotFound.
func (c *LastFM) TrackPlayCount(ctx context.Context, user, artist, title string) (int, error) {
	var resp struct {
		Track struct {
			UserPlayCount string `json:"userplaycount"`
		} `json:"track"`
	}
	err := c.call(ctx, "track.getInfo", map[string]string{
		"artist": artist, "track": title, "username": user,
	}, &resp)
	if err != nil {
		return 0, err
	}
	// A known track the user never played comes back without the field.
	if resp.Track.UserPlayCount == "" {
		return 0, nil
	}
	count, err := strconv.Atoi(resp.Track.UserPlayCount)
	if err != nil {
		return 0, srcErr(serviceLastFM, "unparseable play count", err)
	}
	return count, nil
}

// SearchAlbum returns the best album match for a free-text query.
func (c *LastFM) SearchAlbum(ctx context.Context, query string) (*music.Album, error) {
	var resp struct {
		Results struct {
			AlbumMatches struct {
				Album []struct {
					Name   string     `json:"name"`
					Artist string     `json:"artist"`
					URL    string     `json:"url"`
					Image  []lfmImage `json:"image"`
				} `json:"album"`
			} `json:"albummatches"`
		} `json:"results"`
	}
	err := c.call(ctx, "album.search", map[string]string{"album": query, "limit": "1"}, &resp)
	if err != nil {
		return nil, err
	}

	matches := resp.Results.AlbumMatches.Album
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	m := matches[0]
	return &music.Album{
		Name:     m.Name,
		Artist:   music.Artist{Name: m.Artist},
		URL:      music.Str(m.URL),
		ImageURL: music.Str(bestImage(m.Image)),
	}, nil
}

// SearchArtist returns the best artist match with bio and top tags. With
// exact set, the query is treated as the artist's literal name.
func (c *LastFM) SearchArtist(ctx context.Context, query string, exact bool) (*music.Artist, error) {
	name := query
	if !exact {
		var resp struct {
			Results struct {
				ArtistMatches struct {
					Artist []struct {
						Name string `json:"name"`
					} `json:"artist"`
				} `json:"artistmatches"`
			} `json:"results"`
		}
		err := c.call(ctx, "artist.search", map[string]string{"artist": query, "limit": "1"}, &resp)
		if err != nil {
			return nil, err
		}
		matches := resp.Results.ArtistMatches.Artist
		if len(matches) == 0 {
			return nil, ErrNotFound
		}
		name = matches[0].Name
	}

	var info struct {
		Artist struct {
			Name string `json:"name"`
			URL  string `json:"url"`
			Bio  struct {
				Summary string `json:"summary"`
			} `json:"bio"`
			Tags struct {
				Tag []struct {
					Name string `json:"name"`
				} `json:"tag"`
			} `json:"tags"`
		} `json:"artist"`
	}
	err := c.call(ctx, "artist.getInfo", map[string]string{"artist": name}, &info)
	if err != nil {
		return nil, err
	}

	tags := make([]string, 0, len(info.Artist.Tags.Tag))
	for _, t := range info.Artist.Tags.Tag {
		tags = append(tags, t.Name)
	}

	return &music.Artist{
		Name: info.Artist.Name,
		Bio:  music.Str(stripBioLink(info.Artist.Bio.Summary)),
		URL:  music.Str(info.Artist.URL),
		Tags: music.Str(strings.Join(tags, ", ")),
	}, nil
}

// stripBioLink drops the trailing "read more on last.fm" anchor the API
// appends to every bio summary.
func stripBioLink(bio string) string {
	if idx := strings.Index(bio, "<a href"); idx >= 0 {
		bio = bio[:idx]
	}
	return strings.TrimSpace(bio)
}

// UserExists reports whether the username is known to last.fm.
func (c *LastFM) UserExists(ctx context.Context, user string) (bool, error) {
	var resp struct {
		User struct {
			Name string `json:"name"`
		} `json:"user"`
	}
	err := c.call(ctx, "user.getInfo", map[string]string{"user": user}, &resp)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Compile-time assertion.
var _ ScrobbleSource = (*LastFM)(nil)
