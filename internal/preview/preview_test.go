package preview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVideoThumbnail(t *testing.T) {
	cases := []struct {
		url   string
		image string
	}{
		{"https://www.youtube.com/watch?v=abc123", "https://img.youtube.com/vi/abc123/hqdefault.jpg"},
		{"https://youtu.be/abc123", "https://img.youtube.com/vi/abc123/hqdefault.jpg"},
		{"https://youtube.com/shorts/xyz/", "https://img.youtube.com/vi/xyz/hqdefault.jpg"},
		{"https://m.youtube.com/watch?v=abc", "https://img.youtube.com/vi/abc/hqdefault.jpg"},
	}
	for _, tc := range cases {
		p := videoThumbnail(tc.url)
		require.NotNil(t, p, tc.url)
		assert.Equal(t, tc.image, p.ImageURL, tc.url)
	}

	assert.Nil(t, videoThumbnail("https://example.com/watch?v=abc"))
	assert.Nil(t, videoThumbnail("https://youtube.com/"))
}

func TestFetchReadsTitleAndOpenGraph(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head>
			<title>Fallback title</title>
			<meta property="og:title" content="OG title">
			<meta property="og:description" content="OG description">
			<meta property="og:image" content="https://cdn/img.png">
		</head><body></body></html>`))
	}))
	defer srv.Close()

	p := NewFetcher().Fetch(context.Background(), srv.URL)
	require.NotNil(t, p)
	assert.Equal(t, "OG title", p.Title)
	assert.Equal(t, "OG description", p.Description)
	assert.Equal(t, "https://cdn/img.png", p.ImageURL)
	assert.Equal(t, srv.URL, p.URL)
}

func TestFetchFallsBackToTitleTag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title> Plain title </title></head></html>`))
	}))
	defer srv.Close()

	p := NewFetcher().Fetch(context.Background(), srv.URL)
	require.NotNil(t, p)
	assert.Equal(t, "Plain title", p.Title)
}

func TestFetchReturnsNilOnFailure(t *testing.T) {
	errSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer errSrv.Close()
	assert.Nil(t, NewFetcher().Fetch(context.Background(), errSrv.URL))

	binSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{0x00, 0x01})
	}))
	defer binSrv.Close()
	assert.Nil(t, NewFetcher().Fetch(context.Background(), binSrv.URL))

	assert.Nil(t, NewFetcher().Fetch(context.Background(), "://bad"))
}

func TestFetchReturnsNilWhenPageHasNoMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>nothing here</body></html>`))
	}))
	defer srv.Close()

	assert.Nil(t, NewFetcher().Fetch(context.Background(), srv.URL))
}
