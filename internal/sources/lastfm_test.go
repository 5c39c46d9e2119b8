package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/chorus/pkg/music"
)

// newLastFMServer serves canned JSON keyed by the API method parameter.
func newLastFMServer(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Query().Get("method")
		body, ok := responses[method]
		if !ok {
			t.Errorf("unexpected API method %q", method)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func newTestLastFM(baseURL string) *LastFM {
	return NewLastFM(LastFMConfig{APIKey: "test-key", BaseURL: baseURL, RequestsPerSec: 1000})
}

func TestLastFMNowPlaying(t *testing.T) {
	srv := newLastFMServer(t, map[string]string{
		"user.getRecentTracks": `{"recenttracks":{"track":[{
			"name":"Auto Rock",
			"url":"https://www.last.fm/music/Mogwai/_/Auto+Rock",
			"artist":{"#text":"Mogwai"},
			"album":{"#text":"Mr Beast"},
			"image":[{"#text":"http://img/small","size":"small"},{"#text":"http://img/xl","size":"extralarge"}],
			"@attr":{"nowplaying":"true"}
		}]}}`,
	})
	defer srv.Close()

	track, err := newTestLastFM(srv.URL).NowPlaying(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "Auto Rock", track.Name)
	assert.Equal(t, "Mogwai", track.Artist.Name)
	assert.Equal(t, "Mr Beast", track.Album.Name)
	require.NotNil(t, track.Album.ImageURL)
	assert.Equal(t, "http://img/xl", *track.Album.ImageURL, "extralarge rendition preferred")
}

func TestLastFMNowPlayingNothingScrobbling(t *testing.T) {
	// Latest track has a date instead of a nowplaying marker.
	srv := newLastFMServer(t, map[string]string{
		"user.getRecentTracks": `{"recenttracks":{"track":[{
			"name":"Auto Rock","artist":{"#text":"Mogwai"},"album":{"#text":""},
			"date":{"uts":"1680000000"}
		}]}}`,
	})
	defer srv.Close()

	_, err := newTestLastFM(srv.URL).NowPlaying(context.Background(), "alice")
	assert.True(t, IsNotFound(err))
}

func TestLastFMUserNotFoundMapsToNotFound(t *testing.T) {
	srv := newLastFMServer(t, map[string]string{
		"user.getInfo": `{"error":6,"message":"User not found"}`,
	})
	defer srv.Close()

	exists, err := newTestLastFM(srv.URL).UserExists(context.Background(), "doesNotExist123")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLastFMServerErrorIsSourceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestLastFM(srv.URL).NowPlaying(context.Background(), "alice")
	var srcError *SourceError
	require.ErrorAs(t, err, &srcError)
	assert.Equal(t, "last.fm", srcError.Service)
}

func TestLastFMAuthErrorIsSourceError(t *testing.T) {
	srv := newLastFMServer(t, map[string]string{
		"user.getRecentTracks": `{"error":10,"message":"Invalid API key"}`,
	})
	defer srv.Close()

	_, err := newTestLastFM(srv.URL).NowPlaying(context.Background(), "alice")
	var srcError *SourceError
	require.ErrorAs(t, err, &srcError)
	assert.Contains(t, srcError.Message, "Invalid API key")
}

func TestLastFMTrackPlayCount(t *testing.T) {
	srv := newLastFMServer(t, map[string]string{
		"track.getInfo": `{"track":{"name":"Auto Rock","userplaycount":"42"}}`,
	})
	defer srv.Close()

	count, err := newTestLastFM(srv.URL).TrackPlayCount(context.Background(), "alice", "Mogwai", "Auto Rock")
	require.NoError(t, err)
	assert.Equal(t, 42, count)
}

func TestLastFMTrackPlayCountNeverPlayed(t *testing.T) {
	srv := newLastFMServer(t, map[string]string{
		"track.getInfo": `{"track":{"name":"Auto Rock"}}`,
	})
	defer srv.Close()

	count, err := newTestLastFM(srv.URL).TrackPlayCount(context.Background(), "alice", "Mogwai", "Auto Rock")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestLastFMTopTracks(t *testing.T) {
	srv := newLastFMServer(t, map[string]string{
		"user.getTopTracks": `{"toptracks":{"track":[
			{"name":"Auto Rock","playcount":"120","artist":{"name":"Mogwai"}},
			{"name":"Breathe","playcount":"80","artist":{"name":"Pink Floyd"}}
		]}}`,
	})
	defer srv.Close()

	entries, err := newTestLastFM(srv.URL).TopTracks(context.Background(), "alice", music.Period7Days, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, music.ChartEntry{Artist: "Mogwai", Title: "Auto Rock", PlayCount: 120}, entries[0])
}

func TestLastFMTopTracksRejectsUnknownPeriod(t *testing.T) {
	_, err := newTestLastFM("http://unused").TopTracks(context.Background(), "alice", music.Period("2w"), 10)
	require.Error(t, err)
}

func TestLastFMSearchArtistResolvesThenFetchesInfo(t *testing.T) {
	srv := newLastFMServer(t, map[string]string{
		"artist.search": `{"results":{"artistmatches":{"artist":[{"name":"Mogwai"}]}}}`,
		"artist.getInfo": `{"artist":{
			"name":"Mogwai",
			"url":"https://www.last.fm/music/Mogwai",
			"bio":{"summary":"Mogwai are a Scottish band. <a href=\"https://last.fm\">Read more</a>"},
			"tags":{"tag":[{"name":"post-rock"},{"name":"instrumental"}]}
		}}`,
	})
	defer srv.Close()

	artist, err := newTestLastFM(srv.URL).SearchArtist(context.Background(), "mogwai", false)
	require.NoError(t, err)
	assert.Equal(t, "Mogwai", artist.Name)
	require.NotNil(t, artist.Bio)
	assert.Equal(t, "Mogwai are a Scottish band.", *artist.Bio, "trailing read-more anchor stripped")
	require.NotNil(t, artist.Tags)
	assert.Equal(t, "post-rock, instrumental", *artist.Tags)
}

func TestLastFMRecentTracksMarksNowPlaying(t *testing.T) {
	srv := newLastFMServer(t, map[string]string{
		"user.getRecentTracks": `{"recenttracks":{"track":[
			{"name":"Auto Rock","artist":{"#text":"Mogwai"},"album":{"#text":""},"@attr":{"nowplaying":"true"}},
			{"name":"Travel Is Dangerous","artist":{"#text":"Mogwai"},"album":{"#text":"Mr Beast"},"date":{"uts":"1680000000"}}
		]}}`,
	})
	defer srv.Close()

	scrobbles, err := newTestLastFM(srv.URL).RecentTracks(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, scrobbles, 2)
	assert.True(t, scrobbles[0].NowPlaying)
	assert.True(t, scrobbles[0].PlayedAt.IsZero())
	assert.False(t, scrobbles[1].NowPlaying)
	assert.Equal(t, int64(1680000000), scrobbles[1].PlayedAt.Unix())
}
