package crawler

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
)

var sourceIDPattern = regexp.MustCompile(`~(\w+)`)

// SourceID derives the site-native identifier from a posting URL: the "~id"
// fragment when present, else the last path segment, else "unknown".
func SourceID(rawURL string) string {
	if m := sourceIDPattern.FindStringSubmatch(rawURL); len(m) == 2 {
		return m[1]
	}
	trimmed := rawURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	idx := strings.LastIndex(trimmed, "/")
	last := trimmed[idx+1:]
	if last == "" {
		return "unknown"
	}
	return last
}

// PostingKey reduces a URL to scheme+host+path for dedup comparison.
func PostingKey(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	return u.String(), nil
}

// SearchURL builds the search results URL for one page.
func SearchURL(baseURL, searchPath, query string, page, perPage int) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("page", strconv.Itoa(page))
	v.Set("per_page", strconv.Itoa(perPage))
	base := strings.TrimRight(baseURL, "/")
	p := searchPath
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return base + p + "?" + v.Encode()
}

// PagesFor returns how many listing pages cover maxItems.
func PagesFor(maxItems, perPage int) int {
	if maxItems <= 0 || perPage <= 0 {
		return 0
	}
	return (maxItems + perPage - 1) / perPage
}

func archivePath(prefix, sourceID string, unix int64) string {
	name := fmt.Sprintf("%d.html", unix)
	return path.Join(strings.Trim(prefix, "/"), sourceID, name)
}
