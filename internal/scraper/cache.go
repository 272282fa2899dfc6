package scraper

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/forgeapp/forge/internal/utils"
)

// cacheTTL is how long a scrape result stays fresh.
const cacheTTL = 7 * 24 * time.Hour

// Cache stores scrape results as JSON files keyed by the URL's hash.
type Cache struct {
	dir string
}

func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

type cacheEntry struct {
	URL     string    `json:"url"`
	SavedAt time.Time `json:"savedAt"`
	Result  *Result   `json:"result"`
}

func (c *Cache) path(url string) string {
	return filepath.Join(c.dir, utils.HashBytes([]byte(url))+".json")
}

// Get returns the cached result for the URL if it exists and is still
// fresh.
func (c *Cache) Get(url string) (*Result, bool) {
	data, err := os.ReadFile(c.path(url))
	if err != nil {
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		slog.Warn("corrupt scrape cache entry", "url", url, "error", err)
		return nil, false
	}
	if entry.URL != url || time.Since(entry.SavedAt) > cacheTTL {
		return nil, false
	}
	return entry.Result, true
}

// Put stores a result, replacing any previous entry for the URL.
func (c *Cache) Put(url string, result *Result) error {
	entry := cacheEntry{URL: url, SavedAt: time.Now().UTC(), Result: result}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(c.dir); err != nil {
		return err
	}
	return os.WriteFile(c.path(url), data, 0644)
}

// Invalidate removes the entry for the URL if present.
func (c *Cache) Invalidate(url string) error {
	err := os.Remove(c.path(url))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
