package scraper

import (
	"io"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	hexColorPattern   = regexp.MustCompile(`#(?:[0-9a-fA-F]{6}|[0-9a-fA-F]{3})\b`)
	fontFamilyPattern = regexp.MustCompile(`(?i)font-family\s*:\s*([^;}{]+)`)
)

// genericFonts never identify a site's typography.
var genericFonts = map[string]struct{}{
	"serif": {}, "sans-serif": {}, "monospace": {}, "cursive": {},
	"fantasy": {}, "system-ui": {}, "inherit": {}, "initial": {},
	"unset": {}, "revert": {},
}

// ExtractColors pulls hex color literals out of CSS text, lowercased and
// deduplicated in order of first appearance.
func ExtractColors(css string) []string {
	var colors []string
	seen := make(map[string]struct{})
	for _, m := range hexColorPattern.FindAllString(css, -1) {
		c := strings.ToLower(m)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		colors = append(colors, c)
	}
	return colors
}

// ExtractFonts pulls named font families out of CSS text, skipping generic
// keywords and CSS variables.
func ExtractFonts(css string) []string {
	var fonts []string
	seen := make(map[string]struct{})
	for _, m := range fontFamilyPattern.FindAllStringSubmatch(css, -1) {
		for _, raw := range strings.Split(m[1], ",") {
			name := strings.Trim(strings.TrimSpace(raw), `'"`)
			if name == "" || strings.HasPrefix(name, "var(") {
				continue
			}
			key := strings.ToLower(name)
			if _, ok := genericFonts[key]; ok {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			fonts = append(fonts, name)
		}
	}
	return fonts
}

// Page is the extraction result of a single HTML document.
type Page struct {
	Title       string
	Links       []string
	Stylesheets []string
	Images      []string
	// CSS collects <style> blocks and inline style attributes.
	CSS string
}

// ParsePage walks the document, resolving links, stylesheet and image URLs
// against base. Only http(s) links on the same host are kept.
func ParsePage(base *url.URL, body io.Reader) (*Page, error) {
	doc, err := html.Parse(body)
	if err != nil {
		return nil, err
	}

	page := &Page{}
	var css strings.Builder
	seenLinks := make(map[string]struct{})

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if page.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					page.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "a":
				if href := attr(n, "href"); href != "" {
					if u := resolveSameHost(base, href); u != "" {
						if _, ok := seenLinks[u]; !ok {
							seenLinks[u] = struct{}{}
							page.Links = append(page.Links, u)
						}
					}
				}
			case "link":
				if strings.EqualFold(attr(n, "rel"), "stylesheet") {
					if href := attr(n, "href"); href != "" {
						if u := resolve(base, href); u != "" {
							page.Stylesheets = append(page.Stylesheets, u)
						}
					}
				}
			case "img":
				if src := attr(n, "src"); src != "" {
					if u := resolve(base, src); u != "" {
						page.Images = append(page.Images, u)
					}
				}
			case "style":
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					css.WriteString(n.FirstChild.Data)
					css.WriteString("\n")
				}
			}
			if style := attr(n, "style"); style != "" {
				css.WriteString(style)
				css.WriteString(";\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	page.CSS = css.String()
	return page, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(u)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

func resolveSameHost(base *url.URL, ref string) string {
	abs := resolve(base, ref)
	if abs == "" {
		return ""
	}
	u, err := url.Parse(abs)
	if err != nil || u.Host != base.Host {
		return ""
	}
	return abs
}
