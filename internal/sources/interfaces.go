package sources

import (
	"context"

	"github.com/scrypster/chorus/pkg/music"
)

// ScrobbleSource is the scrobble-service contract the aggregator and
// registry consume. Lookups return either a populated entity, ErrNotFound,
// or a *SourceError; never a half-built entity signaling failure.
type ScrobbleSource interface {
	// NowPlaying returns the track the user is scrobbling right now,
	// or ErrNotFound when nothing is playing.
	NowPlaying(ctx context.Context, user string) (*music.Track, error)

	// RecentTracks returns the user's latest scrobbles, newest first.
	RecentTracks(ctx context.Context, user string, limit int) ([]music.Scrobble, error)

	// TopTracks, TopAlbums and TopArtists return the user's most played
	// entries over the given chart period.
	TopTracks(ctx context.Context, user string, period music.Period, limit int) ([]music.ChartEntry, error)
	TopAlbums(ctx context.Context, user string, period music.Period, limit int) ([]music.ChartEntry, error)
	TopArtists(ctx context.Context, user string, period music.Period, limit int) ([]music.ChartEntry, error)

	// TrackPlayCount returns how many times the user has played the track.
	TrackPlayCount(ctx context.Context, user, artist, title string) (int, error)

	// SearchAlbum returns the single best album match for a free-text query.
	SearchAlbum(ctx context.Context, query string) (*music.Album, error)

	// SearchArtist returns the best artist match. With exact set, the query
	// is treated as the literal artist name instead of a search.
	SearchArtist(ctx context.Context, query string, exact bool) (*music.Artist, error)

	// UserExists reports whether the service knows the username.
	UserExists(ctx context.Context, user string) (bool, error)
}

// CatalogSource is the streaming-catalog contract used for enrichment and
// direct search. Queries use the service's field:value token syntax; the
// Query builder renders them.
type CatalogSource interface {
	SearchTrack(ctx context.Context, query string) (*music.Track, error)

	// SearchAlbum returns the best album match. With extended set, the
	// adapter performs the follow-up full-album lookup to fill in track
	// count, total length and popularity.
	SearchAlbum(ctx context.Context, query string, extended bool) (*music.Album, error)

	SearchArtist(ctx context.Context, query string) (*music.Artist, error)
}

// Song is a lyrics-page hit. The lyrics service is link-only: we never
// fetch or store lyric text.
type Song struct {
	Title        string
	URL          string
	ThumbnailURL string
}

// LyricsSource looks up the lyrics page for a song title.
type LyricsSource interface {
	SearchSong(ctx context.Context, query string) (*Song, error)
}
