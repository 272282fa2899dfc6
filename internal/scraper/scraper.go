// Package scraper crawls a site to extract its visual identity: the color
// palette and typography of its pages. Crawls stay on the starting host and
// results are cached on disk.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/imroc/req/v3"

	"github.com/forgeapp/forge/internal/palette"
	"github.com/forgeapp/forge/internal/utils"
	"github.com/forgeapp/forge/internal/version"
)

// maxPages bounds a crawl so large sites don't run away.
const maxPages = 50

// Result is everything a crawl learned about a site.
type Result struct {
	URL     string    `json:"url"`
	Title   string    `json:"title"`
	Pages   int       `json:"pages"`
	Colors  []string  `json:"colors"`
	Fonts   []string  `json:"fonts"`
	Images  []string  `json:"images"`
	Scraped time.Time `json:"scraped"`
}

// ProgressFunc reports each fetched page during a crawl.
type ProgressFunc func(page int, url string)

// Scraper crawls sites over HTTP.
type Scraper struct {
	client *req.Client
	log    *slog.Logger
}

func New() *Scraper {
	client := req.C().
		SetTimeout(20 * time.Second).
		SetUserAgent(version.ShortWithApp()).
		SetCommonRetryCount(1)

	return &Scraper{
		client: client,
		log:    slog.Default().With("component", "scraper"),
	}
}

// Scrape crawls the site breadth-first from rawURL, staying on the same
// host, and merges the colors it finds into a deduplicated palette sorted
// by hue. The context is honored between page fetches.
func (s *Scraper) Scrape(ctx context.Context, rawURL string, onProgress ProgressFunc) (*Result, error) {
	start, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if start.Scheme == "" {
		start.Scheme = "https"
	}
	if start.Scheme != "http" && start.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", start.Scheme)
	}

	result := &Result{URL: start.String(), Scraped: time.Now().UTC()}

	var rawColors []string
	colorSeen := make(map[string]struct{})
	fontSeen := make(map[string]struct{})
	imageSeen := make(map[string]struct{})
	visited := make(map[string]struct{})
	sheetsSeen := make(map[string]struct{})
	queue := []string{start.String()}

	addColors := func(css string) {
		for _, c := range ExtractColors(css) {
			if _, ok := colorSeen[c]; ok {
				continue
			}
			colorSeen[c] = struct{}{}
			rawColors = append(rawColors, c)
		}
		for _, f := range ExtractFonts(css) {
			key := strings.ToLower(f)
			if _, ok := fontSeen[key]; ok {
				continue
			}
			fontSeen[key] = struct{}{}
			result.Fonts = append(result.Fonts, f)
		}
	}

	for len(queue) > 0 && result.Pages < maxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageURL := queue[0]
		queue = queue[1:]
		if _, ok := visited[pageURL]; ok {
			continue
		}
		visited[pageURL] = struct{}{}

		body, err := s.fetch(ctx, pageURL)
		if err != nil {
			if result.Pages == 0 {
				return nil, err
			}
			s.log.Warn("page fetch failed", "url", pageURL, "error", err)
			continue
		}

		base, err := url.Parse(pageURL)
		if err != nil {
			continue
		}
		page, err := ParsePage(base, strings.NewReader(body))
		if err != nil {
			s.log.Warn("page parse failed", "url", pageURL, "error", err)
			continue
		}

		result.Pages++
		if result.Title == "" {
			result.Title = page.Title
		}
		if onProgress != nil {
			onProgress(result.Pages, pageURL)
		}

		addColors(page.CSS)
		for _, img := range page.Images {
			if _, ok := imageSeen[img]; ok {
				continue
			}
			imageSeen[img] = struct{}{}
			result.Images = append(result.Images, img)
		}

		for _, sheet := range page.Stylesheets {
			if _, ok := sheetsSeen[sheet]; ok {
				continue
			}
			sheetsSeen[sheet] = struct{}{}
			css, err := s.fetch(ctx, sheet)
			if err != nil {
				s.log.Warn("stylesheet fetch failed", "url", sheet, "error", err)
				continue
			}
			addColors(css)
		}

		queue = append(queue, page.Links...)
	}

	result.Colors = palette.SortByHue(palette.MergeSimilar(rawColors, palette.DefaultMergeThreshold))

	s.log.Info("scrape finished",
		"url", result.URL, "pages", result.Pages,
		"colors", len(result.Colors), "fonts", len(result.Fonts))
	return result, nil
}

// DownloadAssets fetches the images a crawl found into destDir and returns
// the local paths written. Files are named after the URL path's final
// segment; a name collision gets the URL hash prepended. Individual
// download failures are logged and skipped.
func (s *Scraper) DownloadAssets(ctx context.Context, result *Result, destDir string) ([]string, error) {
	if err := utils.EnsureDir(destDir); err != nil {
		return nil, err
	}

	var saved []string
	taken := make(map[string]struct{})
	for _, asset := range result.Images {
		if err := ctx.Err(); err != nil {
			return saved, err
		}

		name := path.Base(strings.TrimSuffix(asset, "/"))
		if u, err := url.Parse(asset); err == nil && u.Path != "" {
			name = path.Base(u.Path)
		}
		if name == "" || name == "." || name == "/" {
			name = utils.HashBytes([]byte(asset))[:12]
		}
		if _, ok := taken[name]; ok {
			name = utils.HashBytes([]byte(asset))[:12] + "-" + name
		}
		taken[name] = struct{}{}

		dst := filepath.Join(destDir, name)
		resp, err := s.client.R().SetContext(ctx).SetOutputFile(dst).Get(asset)
		if err == nil && !resp.IsSuccessState() {
			err = fmt.Errorf("status %s", resp.Status)
		}
		if err != nil {
			s.log.Warn("asset download failed", "url", asset, "error", err)
			continue
		}
		saved = append(saved, dst)
	}
	return saved, nil
}

func (s *Scraper) fetch(ctx context.Context, u string) (string, error) {
	resp, err := s.client.R().SetContext(ctx).Get(u)
	if err != nil {
		return "", err
	}
	if !resp.IsSuccessState() {
		return "", fmt.Errorf("fetch %s: status %s", u, resp.Status)
	}
	return resp.String(), nil
}
