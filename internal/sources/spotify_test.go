package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryString(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{
			name:  "empty query",
			query: Query{},
			want:  "",
		},
		{
			name:  "free text only",
			query: Query{Text: "dark side"},
			want:  "dark side",
		},
		{
			name:  "track and artist",
			query: Query{Track: "Breathe", Artist: "Pink Floyd"},
			want:  "track:Breathe artist:Pink Floyd",
		},
		{
			name:  "all fields",
			query: Query{Text: "x", Track: "t", Artist: "a", Album: "b", Year: "1973", Genre: "rock"},
			want:  "x track:t artist:a album:b year:1973 genre:rock",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.query.String())
		})
	}
}

// newSpotifyServer fakes the token endpoint and the API under one server.
func newSpotifyServer(t *testing.T, tokenRequests *atomic.Int32, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		if tokenRequests != nil {
			tokenRequests.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"test-token","expires_in":3600}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		handler(w, r)
	})
	return httptest.NewServer(mux)
}

func newTestSpotify(baseURL string) *Spotify {
	return NewSpotify(SpotifyConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		BaseURL:      baseURL,
		TokenURL:     baseURL + "/api/token",
	})
}

func TestSpotifySearchTrack(t *testing.T) {
	srv := newSpotifyServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "track", r.URL.Query().Get("type"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"), "search always requests a single result")
		_, _ = w.Write([]byte(`{"tracks":{"items":[{
			"name":"What I've Done",
			"duration_ms":205000,
			"popularity":77,
			"artists":[{"name":"Linkin Park"}],
			"external_urls":{"spotify":"https://open.spotify.com/track/x"},
			"album":{
				"name":"Minutes to Midnight",
				"artists":[{"name":"Linkin Park"}],
				"images":[{"url":"http://img/cover"}],
				"release_date":"2007-05-14"
			}
		}]}}`))
	})
	defer srv.Close()

	track, err := newTestSpotify(srv.URL).SearchTrack(context.Background(), "track:What I've Done artist:Linkin Park")
	require.NoError(t, err)
	assert.Equal(t, "What I've Done", track.Name)
	assert.Equal(t, "Linkin Park", track.Artist.Name)
	assert.Equal(t, "Minutes to Midnight", track.Album.Name)
	require.NotNil(t, track.Album.Date)
	assert.Equal(t, "2007-05-14", *track.Album.Date)
	require.NotNil(t, track.LengthMs)
	assert.Equal(t, 205000, *track.LengthMs)
}

func TestSpotifySearchTrackNotFound(t *testing.T) {
	srv := newSpotifyServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tracks":{"items":[]}}`))
	})
	defer srv.Close()

	_, err := newTestSpotify(srv.URL).SearchTrack(context.Background(), "track:zzzzz")
	assert.True(t, IsNotFound(err))
}

func TestSpotifyTokenIsCached(t *testing.T) {
	var tokenRequests atomic.Int32
	srv := newSpotifyServer(t, &tokenRequests, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tracks":{"items":[]}}`))
	})
	defer srv.Close()

	client := newTestSpotify(srv.URL)
	for i := 0; i < 3; i++ {
		_, _ = client.SearchTrack(context.Background(), "q")
	}
	assert.Equal(t, int32(1), tokenRequests.Load(), "token fetched once and reused until expiry")
}

func TestSpotifySearchAlbumExtendedFetchesFullAlbum(t *testing.T) {
	srv := newSpotifyServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/search":
			_, _ = w.Write([]byte(`{"albums":{"items":[{
				"id":"abc123",
				"name":"Mr Beast",
				"artists":[{"name":"Mogwai"}],
				"images":[{"url":"http://img/beast"}],
				"release_date":"2006-03-06",
				"external_urls":{"spotify":"https://open.spotify.com/album/abc123"}
			}]}}`))
		case "/v1/albums/abc123":
			_, _ = w.Write([]byte(`{
				"id":"abc123",
				"name":"Mr Beast",
				"artists":[{"name":"Mogwai"}],
				"images":[{"url":"http://img/beast"}],
				"release_date":"2006-03-06",
				"popularity":55,
				"external_urls":{"spotify":"https://open.spotify.com/album/abc123"},
				"tracks":{"items":[{"duration_ms":240000},{"duration_ms":180000}]}
			}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	defer srv.Close()

	album, err := newTestSpotify(srv.URL).SearchAlbum(context.Background(), "album:Mr Beast", true)
	require.NoError(t, err)
	assert.Equal(t, "Mr Beast", album.Name)
	require.NotNil(t, album.TrackCount)
	assert.Equal(t, 2, *album.TrackCount)
	require.NotNil(t, album.LengthMs)
	assert.Equal(t, 420000, *album.LengthMs)
	require.NotNil(t, album.Popularity)
	assert.Equal(t, 55, *album.Popularity)
}

func TestSpotifySearchArtistJoinsGenres(t *testing.T) {
	srv := newSpotifyServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"artists":{"items":[{
			"name":"Mogwai",
			"genres":["post-rock","instrumental rock"],
			"popularity":60,
			"images":[{"url":"http://img/mogwai"}],
			"external_urls":{"spotify":"https://open.spotify.com/artist/x"}
		}]}}`))
	})
	defer srv.Close()

	artist, err := newTestSpotify(srv.URL).SearchArtist(context.Background(), "mogwai")
	require.NoError(t, err)
	require.NotNil(t, artist.Tags)
	assert.Equal(t, "post-rock, instrumental rock", *artist.Tags)
	require.NotNil(t, artist.Popularity)
	assert.Equal(t, 60, *artist.Popularity)
}

func TestSpotifyAPIFailureIsSourceError(t *testing.T) {
	srv := newSpotifyServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer srv.Close()

	_, err := newTestSpotify(srv.URL).SearchTrack(context.Background(), "q")
	var srcError *SourceError
	require.ErrorAs(t, err, &srcError)
	assert.Equal(t, "Spotify", srcError.Service)
}
