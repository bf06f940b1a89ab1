// Package extract turns raw listing and posting pages into structured data.
//
// Every field is resolved by an ordered chain of named rules. The first rule
// that yields a value wins; a chain with no match leaves the field empty, which
// is an extraction gap rather than an error. Scoped, labeled lookups always
// come before unscoped text fallbacks so unrelated page text cannot leak into
// a field.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Rule extracts one value from a parsed page. ok=false passes to the next rule.
type Rule[T any] struct {
	Name    string
	Extract func(doc *goquery.Document) (value T, ok bool)
}

// Trace records which rule produced each field.
type Trace map[string]string

func firstMatch[T any](doc *goquery.Document, rules []Rule[T]) (T, string) {
	for _, r := range rules {
		if v, ok := r.Extract(doc); ok {
			return v, r.Name
		}
	}
	var zero T
	return zero, ""
}

// optionalMatch is firstMatch for fields where a matched zero must stay
// distinct from no match.
func optionalMatch[T any](doc *goquery.Document, rules []Rule[T]) (*T, string) {
	for _, r := range rules {
		if v, ok := r.Extract(doc); ok {
			return &v, r.Name
		}
	}
	return nil, ""
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

func collapseSpace(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(tagPattern.ReplaceAllString(s, ""), " "))
}

func textLen(s string) int {
	return utf8.RuneCountInString(s)
}

// parseAmount reads "1,234.50" style numbers.
func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// sectionByHeading returns the first container element holding a heading
// whose text contains label.
func sectionByHeading(doc *goquery.Document, container, heading, label string) *goquery.Selection {
	return doc.Find(container).FilterFunction(func(_ int, s *goquery.Selection) bool {
		found := false
		s.Find(heading).EachWithBreak(func(_ int, h *goquery.Selection) bool {
			if strings.Contains(h.Text(), label) {
				found = true
				return false
			}
			return true
		})
		return found
	}).First()
}
