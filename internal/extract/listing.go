package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ZIEDSAGGUEM/upwork-project-scrapping/internal/crawler"
)

// ListingConfig describes which links on a results page are postings.
type ListingConfig struct {
	BaseURL        string
	PostingPrefix  string
	SearchPrefixes []string
}

// DefaultListingConfig matches the Upwork job search layout.
func DefaultListingConfig() ListingConfig {
	return ListingConfig{
		BaseURL:        "https://www.upwork.com",
		PostingPrefix:  "/jobs/",
		SearchPrefixes: []string{"/nx/search", "/search"},
	}
}

// ListingExtractor implements crawler.ListingParser.
type ListingExtractor struct {
	base          *url.URL
	postingPrefix string
	searchPrefix  []string
}

// NewListingExtractor validates cfg and builds an extractor.
func NewListingExtractor(cfg ListingConfig) (*ListingExtractor, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("listing base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.PostingPrefix == "" {
		return nil, fmt.Errorf("listing posting prefix is required")
	}
	return &ListingExtractor{
		base:          base,
		postingPrefix: cfg.PostingPrefix,
		searchPrefix:  cfg.SearchPrefixes,
	}, nil
}

// ParseListing returns posting URLs in order of first appearance, each once.
// Query strings and fragments are dropped.
func (e *ListingExtractor) ParseListing(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}
	var (
		out  []string
		seen = make(map[string]struct{})
	)
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		link, ok := e.postingURL(href)
		if !ok {
			return
		}
		key, err := crawler.PostingKey(link)
		if err != nil {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, key)
	})
	return out, nil
}

func (e *ListingExtractor) postingURL(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := e.base.ResolveReference(ref)
	if !strings.EqualFold(abs.Host, e.base.Host) {
		return "", false
	}
	for _, prefix := range e.searchPrefix {
		if strings.HasPrefix(abs.Path, prefix) {
			return "", false
		}
	}
	if !strings.HasPrefix(abs.Path, e.postingPrefix) {
		return "", false
	}
	return abs.String(), true
}
