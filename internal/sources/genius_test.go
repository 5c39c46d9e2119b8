package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeniusSearchSong(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"response":{"hits":[{"result":{
			"full_title":"What I’ve Done by Linkin Park",
			"url":"https://genius.com/Linkin-park-what-ive-done-lyrics",
			"header_image_url":"http://img/header"
		}}]}}`))
	}))
	defer srv.Close()

	client := NewGenius(GeniusConfig{AccessToken: "tok", BaseURL: srv.URL})
	song, err := client.SearchSong(context.Background(), "What I've Done Linkin Park")
	require.NoError(t, err)
	assert.Equal(t, "https://genius.com/Linkin-park-what-ive-done-lyrics", song.URL)
	assert.Equal(t, "http://img/header", song.ThumbnailURL)
}

func TestGeniusSearchSongNoHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":{"hits":[]}}`))
	}))
	defer srv.Close()

	client := NewGenius(GeniusConfig{AccessToken: "tok", BaseURL: srv.URL})
	_, err := client.SearchSong(context.Background(), "zzzzz")
	assert.True(t, IsNotFound(err))
}

func TestGeniusFailureIsSourceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewGenius(GeniusConfig{AccessToken: "bad", BaseURL: srv.URL})
	_, err := client.SearchSong(context.Background(), "q")
	var srcError *SourceError
	require.ErrorAs(t, err, &srcError)
	assert.Equal(t, "Genius", srcError.Service)
}
