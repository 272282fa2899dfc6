package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Home</title>
<link rel="stylesheet" href="/main.css"></head>
<body><a href="/about">About</a><div style="color:#ff0000">hi</div></body></html>`))
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>About</title>
<style>p { color: #fe0000; font-family: "Open Sans", sans-serif; }</style></head>
<body><img src="/team.jpg"></body></html>`))
	})
	mux.HandleFunc("/main.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		w.Write([]byte(`body { background: #0000ff; }`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestScrapeCrawlsSameHost(t *testing.T) {
	srv := testSite(t)
	s := New()

	var mu sync.Mutex
	var pages []string
	result, err := s.Scrape(context.Background(), srv.URL, func(page int, url string) {
		mu.Lock()
		pages = append(pages, url)
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Equal(t, "Home", result.Title)
	assert.Equal(t, 2, result.Pages)
	assert.Len(t, pages, 2)

	// #ff0000 and #fe0000 are near-identical and merge into one entry
	assert.Len(t, result.Colors, 2)
	assert.Contains(t, result.Colors, "#ff0000")
	assert.Contains(t, result.Colors, "#0000ff")
	assert.Equal(t, []string{"Open Sans"}, result.Fonts)
	assert.Equal(t, []string{srv.URL + "/team.jpg"}, result.Images)
}

func TestDownloadAssets(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/team.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg-bytes"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := New()
	dir := t.TempDir()
	result := &Result{Images: []string{srv.URL + "/team.jpg", srv.URL + "/missing.png"}}

	saved, err := s.DownloadAssets(context.Background(), result, dir)
	require.NoError(t, err)
	require.Len(t, saved, 1, "missing asset is skipped, not fatal")
	assert.Equal(t, filepath.Join(dir, "team.jpg"), saved[0])

	data, err := os.ReadFile(saved[0])
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}

func TestScrapeUnreachableSite(t *testing.T) {
	srv := testSite(t)
	srv.Close()

	s := New()
	_, err := s.Scrape(context.Background(), srv.URL, nil)
	assert.Error(t, err)
}

func TestScrapeHonorsContext(t *testing.T) {
	srv := testSite(t)
	s := New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Scrape(ctx, srv.URL, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCacheRoundTrip(t *testing.T) {
	c := NewCache(t.TempDir())
	url := "https://example.com"

	_, ok := c.Get(url)
	assert.False(t, ok)

	want := &Result{URL: url, Title: "Example", Colors: []string{"#fff"}, Scraped: time.Now().UTC()}
	require.NoError(t, c.Put(url, want))

	got, ok := c.Get(url)
	require.True(t, ok)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.Colors, got.Colors)

	_, ok = c.Get("https://example.com/other")
	assert.False(t, ok, "cache keys are exact URLs")

	require.NoError(t, c.Invalidate(url))
	_, ok = c.Get(url)
	assert.False(t, ok)
	assert.NoError(t, c.Invalidate(url), "double invalidate is fine")
}
