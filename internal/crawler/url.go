package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeBaseURL standardizes the upstream base URL.
// It lowercases the scheme and host, removes default ports, fragments, queries,
// and any trailing slash.
func NormalizeBaseURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base url %q must be absolute", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawQuery = ""
	u.Path = strings.TrimRight(u.Path, "/")

	return u.String(), nil
}

// ListingURL joins the base URL with the listing page path.
func ListingURL(base, listingPath string) string {
	p := strings.Trim(listingPath, "/")
	if p == "" {
		return base + "/"
	}
	return base + "/" + p
}

// CityURL builds the page URL for one city and period.
func CityURL(base string, city CityID, p Period) string {
	q := url.Values{}
	q.Set("month", fmt.Sprintf("%02d", int(p.Month)))
	q.Set("year", fmt.Sprintf("%04d", p.Year))
	return fmt.Sprintf("%s/%s?%s", base, url.PathEscape(string(city)), q.Encode())
}
