// Package directory resolves the set of city slugs from the upstream listing page.
package directory

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// deniedExtensions mark links to assets and feeds rather than city pages.
var deniedExtensions = map[string]struct{}{
	".xml": {}, ".rss": {}, ".atom": {}, ".json": {}, ".txt": {}, ".pdf": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".ico": {}, ".webp": {},
	".css": {}, ".js": {},
}

// Config tunes slug filtering.
type Config struct {
	// ExcludeSlugs lists same-host single-segment pages that are not cities.
	ExcludeSlugs []string
}

// Resolver extracts city slugs from anchors on the listing page.
type Resolver struct {
	exclude map[string]struct{}
}

// New constructs a Resolver.
func New(cfg Config) *Resolver {
	exclude := make(map[string]struct{}, len(cfg.ExcludeSlugs))
	for _, s := range cfg.ExcludeSlugs {
		s = strings.ToLower(strings.Trim(strings.TrimSpace(s), "/"))
		if s != "" {
			exclude[s] = struct{}{}
		}
	}
	return &Resolver{exclude: exclude}
}

// Resolve returns the deduplicated, sorted slugs linked from body. Only anchors
// that point at a single path segment on the listing page's own host count.
func (r *Resolver) Resolve(listingURL string, body []byte) ([]crawler.CityID, error) {
	base, err := url.Parse(listingURL)
	if err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("listing url %q must be absolute", listingURL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	seen := make(map[crawler.CityID]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if slug, ok := r.slugFor(base, href); ok {
			seen[slug] = struct{}{}
		}
	})

	cities := make([]crawler.CityID, 0, len(seen))
	for slug := range seen {
		cities = append(cities, slug)
	}
	sort.Slice(cities, func(i, j int) bool { return cities[i] < cities[j] })
	return cities, nil
}

func (r *Resolver) slugFor(base *url.URL, href string) (crawler.CityID, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if !strings.EqualFold(u.Hostname(), base.Hostname()) {
		return "", false
	}

	p := strings.Trim(u.Path, "/")
	if p == "" || strings.Contains(p, "/") {
		return "", false
	}
	p = strings.ToLower(p)
	if _, denied := deniedExtensions[path.Ext(p)]; denied {
		return "", false
	}
	if !slugPattern.MatchString(p) {
		return "", false
	}
	if _, excluded := r.exclude[p]; excluded {
		return "", false
	}
	return crawler.CityID(p), true
}
