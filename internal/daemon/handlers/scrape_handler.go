package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgeapp/forge/internal/scraper"
)

type ScrapeHandler struct {
	scraper *scraper.Scraper
	cache   *scraper.Cache
}

func NewScrapeHandler(s *scraper.Scraper, cache *scraper.Cache) *ScrapeHandler {
	return &ScrapeHandler{scraper: s, cache: cache}
}

// Scrape crawls a site and returns its palette, fonts and images. Results
// are served from cache unless refresh=true.
func (h *ScrapeHandler) Scrape(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, errors.New("url is required"))
		return
	}
	refresh := c.Query("refresh") == "true"

	if !refresh {
		if result, ok := h.cache.Get(url); ok {
			c.JSON(http.StatusOK, gin.H{"cached": true, "result": result})
			return
		}
	}

	result, err := h.scraper.Scrape(c.Request.Context(), url, nil)
	if err != nil {
		AbortWithError(c, http.StatusBadGateway, ErrCodeUnknownError, err)
		return
	}
	if err := h.cache.Put(url, result); err != nil {
		c.Error(err)
	}

	c.JSON(http.StatusOK, gin.H{"cached": false, "result": result})
}

type scrapeEvent struct {
	Page   int             `json:"page,omitempty"`
	URL    string          `json:"url,omitempty"`
	Error  string          `json:"error,omitempty"`
	Result *scraper.Result `json:"result,omitempty"`
}

// Events crawls a site and streams per-page progress as server-sent
// events, ending with a "result" or "error" event. Always crawls fresh;
// the result is written to the cache on success.
func (h *ScrapeHandler) Events(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, errors.New("url is required"))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// The request context ends when the client disconnects; every send
	// selects on it so the crawl can never block on an abandoned stream.
	ctx := c.Request.Context()
	events := make(chan scrapeEvent, 8)
	go func() {
		defer close(events)
		send := func(ev scrapeEvent) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		result, err := h.scraper.Scrape(ctx, url, func(page int, pageURL string) {
			send(scrapeEvent{Page: page, URL: pageURL})
		})
		if err != nil {
			send(scrapeEvent{Error: err.Error()})
			return
		}
		if err := h.cache.Put(url, result); err != nil {
			slog.Warn("scrape cache write failed", "url", url, "error", err)
		}
		send(scrapeEvent{Result: result})
	}()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			switch {
			case ev.Error != "":
				c.SSEvent("error", ev)
			case ev.Result != nil:
				c.SSEvent("result", ev)
			default:
				c.SSEvent("page", ev)
			}
			return true
		}
	})
}
