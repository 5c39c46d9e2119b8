// Package aggregator answers "what is the best-known description of X" by
// combining a base lookup from the scrobble service (or the live presence
// signal) with an enrichment overlay from the streaming catalog. Enrichment
// is best-effort: its failures are logged and swallowed, never surfaced.
// Base failures and not-found outcomes propagate untouched.
package aggregator

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/scrypster/chorus/internal/platform"
	"github.com/scrypster/chorus/internal/sources"
	"github.com/scrypster/chorus/pkg/music"
)

// ErrEmptyQuery is returned when a search had no query and the fallback to
// the caller's current scrobble produced nothing to search for.
var ErrEmptyQuery = errors.New("aggregator: no search query and nothing scrobbling")

// BaseSource names where the base entity of an aggregation came from.
type BaseSource string

const (
	BasePresence BaseSource = "presence"
	BaseScrobble BaseSource = "scrobble"
)

// UsernameResolver maps a platform user to their scrobble-service
// username. Resolution failures (not registered) propagate to the caller.
type UsernameResolver interface {
	Resolve(userID string) (string, error)
}

// Timeouts bounds the external calls an aggregation makes. A base-source
// timeout fails the whole operation; an enrichment timeout only loses the
// enrichment.
type Timeouts struct {
	Base       time.Duration
	Enrichment time.Duration
}

// Aggregator orchestrates the source adapters for one logical query.
// Every adapter call happens at most once per invocation; there are no
// retries.
type Aggregator struct {
	scrobble sources.ScrobbleSource
	catalog  sources.CatalogSource
	lyrics   sources.LyricsSource
	presence platform.PresenceView
	resolver UsernameResolver
	timeouts Timeouts
}

// Deps collects the collaborators an Aggregator needs. Catalog, lyrics and
// presence are optional; a nil catalog simply means no enrichment.
type Deps struct {
	Scrobble sources.ScrobbleSource
	Catalog  sources.CatalogSource
	Lyrics   sources.LyricsSource
	Presence platform.PresenceView
	Resolver UsernameResolver
	Timeouts Timeouts
}

// New creates an Aggregator.
func New(deps Deps) *Aggregator {
	if deps.Timeouts.Base == 0 {
		deps.Timeouts.Base = 10 * time.Second
	}
	if deps.Timeouts.Enrichment == 0 {
		deps.Timeouts.Enrichment = 5 * time.Second
	}
	return &Aggregator{
		scrobble: deps.Scrobble,
		catalog:  deps.Catalog,
		lyrics:   deps.Lyrics,
		presence: deps.Presence,
		resolver: deps.Resolver,
		timeouts: deps.Timeouts,
	}
}

// NowPlayingResult is the merged answer to "what is this user playing".
type NowPlayingResult struct {
	Track  music.Track
	Source BaseSource
}

// NowPlaying resolves the user's current track. Precedence: the live
// presence signal is the base when present; otherwise the scrobble service
// is consulted (which needs a registered username). A resolved base is
// always handed to catalog enrichment; enrichment failure returns the base
// unmodified.
func (a *Aggregator) NowPlaying(ctx context.Context, userID string) (*NowPlayingResult, error) {
	result := &NowPlayingResult{}

	if a.presence != nil {
		if live := a.presence.Listening(userID); live.Present() {
			result.Track.Overlay(live)
			result.Source = BasePresence
		}
	}

	if result.Source == "" {
		username, err := a.resolver.Resolve(userID)
		if err != nil {
			return nil, err
		}

		baseCtx, cancel := context.WithTimeout(ctx, a.timeouts.Base)
		defer cancel()
		scrobbled, err := a.scrobble.NowPlaying(baseCtx, username)
		if err != nil {
			return nil, err
		}
		result.Track.Overlay(scrobbled)
		result.Source = BaseScrobble
	}

	a.enrichTrack(ctx, &result.Track)
	return result, nil
}

// enrichTrack overlays a catalog match built from the base track's fields.
// Failures only cost the enrichment.
func (a *Aggregator) enrichTrack(ctx context.Context, track *music.Track) {
	if a.catalog == nil || !track.Present() {
		return
	}

	query := sources.Query{Track: track.Name, Artist: track.Artist.Name}
	if track.Album.Present() {
		query.Album = track.Album.Name
	}

	enrichCtx, cancel := context.WithTimeout(ctx, a.timeouts.Enrichment)
	defer cancel()
	match, err := a.catalog.SearchTrack(enrichCtx, query.String())
	if err != nil {
		if !sources.IsNotFound(err) {
			log.Printf("Catalog enrichment failed for %q: %v", query.String(), err)
		}
		return
	}
	track.Overlay(match)
}

// SearchTrack returns the catalog's single best match for the query. With
// no catalog configured every query is a miss.
func (a *Aggregator) SearchTrack(ctx context.Context, query string) (*music.Track, error) {
	if a.catalog == nil {
		return nil, sources.ErrNotFound
	}
	baseCtx, cancel := context.WithTimeout(ctx, a.timeouts.Base)
	defer cancel()
	return a.catalog.SearchTrack(baseCtx, query)
}

// AlbumResult is a merged album plus the per-source links that survive the
// overlay (the overlay itself keeps only the richest source's URL).
type AlbumResult struct {
	Album music.Album
	URLs  map[string]string
}

// SearchAlbum merges the scrobble service's best album match with the
// catalog's extended album lookup. An empty query falls back to the album
// of the caller's current scrobble.
func (a *Aggregator) SearchAlbum(ctx context.Context, userID, query string) (*AlbumResult, error) {
	var album music.Album
	urls := make(map[string]string)

	base, query, err := a.albumBase(ctx, userID, query)
	if err != nil {
		return nil, err
	}
	album.Overlay(base)
	if base.URL != nil {
		urls["Last.fm"] = *base.URL
	}

	if a.catalog != nil {
		enrichCtx, cancel := context.WithTimeout(ctx, a.timeouts.Enrichment)
		defer cancel()
		match, err := a.catalog.SearchAlbum(enrichCtx, query, true)
		switch {
		case err == nil:
			album.Overlay(match)
			if match.URL != nil {
				urls["Spotify"] = *match.URL
			}
		case !sources.IsNotFound(err):
			log.Printf("Catalog album enrichment failed for %q: %v", query, err)
		}
	}

	return &AlbumResult{Album: album, URLs: urls}, nil
}

// albumBase resolves the base album and the effective query. With an empty
// query, the caller's current scrobble supplies both; otherwise the
// scrobble service's album search is the base.
func (a *Aggregator) albumBase(ctx context.Context, userID, query string) (*music.Album, string, error) {
	baseCtx, cancel := context.WithTimeout(ctx, a.timeouts.Base)
	defer cancel()

	if query == "" {
		username, err := a.resolver.Resolve(userID)
		if err != nil {
			return nil, "", err
		}
		scrobbled, err := a.scrobble.NowPlaying(baseCtx, username)
		if err != nil && !sources.IsNotFound(err) {
			return nil, "", err
		}
		if err != nil || !scrobbled.Album.Present() {
			return nil, "", ErrEmptyQuery
		}
		album := scrobbled.Album
		return &album, scrobbled.Artist.Name + " " + album.Name, nil
	}

	album, err := a.scrobble.SearchAlbum(baseCtx, query)
	if err != nil {
		return nil, "", err
	}
	return album, query, nil
}

// ArtistResult is a merged artist plus per-source links.
type ArtistResult struct {
	Artist music.Artist
	URLs   map[string]string
}

// SearchArtist merges the scrobble service's artist lookup with the
// catalog's. A query wrapped in matching quotes forces an exact-name
// lookup; an empty query falls back to the caller's current scrobble (and
// is then exact, since the name is authoritative).
func (a *Aggregator) SearchArtist(ctx context.Context, userID, query string) (*ArtistResult, error) {
	exact := false

	if query == "" {
		username, err := a.resolver.Resolve(userID)
		if err != nil {
			return nil, err
		}
		npCtx, cancel := context.WithTimeout(ctx, a.timeouts.Base)
		scrobbled, err := a.scrobble.NowPlaying(npCtx, username)
		cancel()
		if err != nil && !sources.IsNotFound(err) {
			return nil, err
		}
		if err != nil || !scrobbled.Artist.Present() {
			return nil, ErrEmptyQuery
		}
		query, exact = scrobbled.Artist.Name, true
	} else if unquoted, ok := stripQuotes(query); ok {
		query, exact = unquoted, true
	}

	baseCtx, cancel := context.WithTimeout(ctx, a.timeouts.Base)
	defer cancel()
	base, err := a.scrobble.SearchArtist(baseCtx, query, exact)
	if err != nil {
		return nil, err
	}

	var artist music.Artist
	artist.Overlay(base)
	urls := make(map[string]string)
	if base.URL != nil {
		urls["Last.fm"] = *base.URL
	}

	if a.catalog != nil {
		enrichCtx, cancel := context.WithTimeout(ctx, a.timeouts.Enrichment)
		defer cancel()
		match, err := a.catalog.SearchArtist(enrichCtx, base.Name)
		switch {
		case err == nil:
			artist.Overlay(match)
			if match.URL != nil {
				urls["Spotify"] = *match.URL
			}
		case !sources.IsNotFound(err):
			log.Printf("Catalog artist enrichment failed for %q: %v", base.Name, err)
		}
	}

	return &ArtistResult{Artist: artist, URLs: urls}, nil
}

// stripQuotes unwraps a "query in quotes" or 'in quotes', reporting
// whether it was quoted.
func stripQuotes(s string) (string, bool) {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], true
	}
	return s, false
}

// Lyrics looks up the lyrics page for the query. An empty query falls back
// to the caller's current scrobble.
func (a *Aggregator) Lyrics(ctx context.Context, userID, query string) (*sources.Song, error) {
	if a.lyrics == nil {
		return nil, sources.ErrNotFound
	}
	if query == "" {
		username, err := a.resolver.Resolve(userID)
		if err != nil {
			return nil, err
		}
		npCtx, cancel := context.WithTimeout(ctx, a.timeouts.Base)
		scrobbled, err := a.scrobble.NowPlaying(npCtx, username)
		cancel()
		if err != nil && !sources.IsNotFound(err) {
			return nil, err
		}
		if err != nil || !scrobbled.Present() {
			return nil, ErrEmptyQuery
		}
		query = strings.TrimSpace(scrobbled.Name + " " + scrobbled.Artist.Name)
	}

	baseCtx, cancel := context.WithTimeout(ctx, a.timeouts.Base)
	defer cancel()
	return a.lyrics.SearchSong(baseCtx, query)
}

// Recent returns the user's latest scrobbles.
func (a *Aggregator) Recent(ctx context.Context, userID string, limit int) ([]music.Scrobble, error) {
	username, err := a.resolver.Resolve(userID)
	if err != nil {
		return nil, err
	}
	baseCtx, cancel := context.WithTimeout(ctx, a.timeouts.Base)
	defer cancel()
	return a.scrobble.RecentTracks(baseCtx, username, limit)
}

// chart is the shared shape of the three top-N queries.
func (a *Aggregator) chart(
	ctx context.Context,
	userID, period string,
	fetch func(ctx context.Context, username string, p music.Period, limit int) ([]music.ChartEntry, error),
	limit int,
) ([]music.ChartEntry, error) {
	if !music.ValidPeriod(period) {
		return nil, &UnknownPeriodError{Period: period}
	}
	username, err := a.resolver.Resolve(userID)
	if err != nil {
		return nil, err
	}
	baseCtx, cancel := context.WithTimeout(ctx, a.timeouts.Base)
	defer cancel()
	return fetch(baseCtx, username, music.Period(period), limit)
}

// UnknownPeriodError reports an unrecognized chart timeframe.
type UnknownPeriodError struct {
	Period string
}

func (e *UnknownPeriodError) Error() string {
	return "aggregator: unknown chart period " + e.Period
}

// TopTracks returns the user's most played tracks over the period.
func (a *Aggregator) TopTracks(ctx context.Context, userID, period string, limit int) ([]music.ChartEntry, error) {
	return a.chart(ctx, userID, period, a.scrobble.TopTracks, limit)
}

// TopAlbums returns the user's most played albums over the period.
func (a *Aggregator) TopAlbums(ctx context.Context, userID, period string, limit int) ([]music.ChartEntry, error) {
	return a.chart(ctx, userID, period, a.scrobble.TopAlbums, limit)
}

// TopArtists returns the user's most played artists over the period.
func (a *Aggregator) TopArtists(ctx context.Context, userID, period string, limit int) ([]music.ChartEntry, error) {
	return a.chart(ctx, userID, period, a.scrobble.TopArtists, limit)
}
