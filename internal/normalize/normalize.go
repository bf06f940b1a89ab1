// Package normalize turns scraped descriptions into embedding-ready text and
// detects well-known skill names in free text.
package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxTextLen is the rune budget of a cleaned description before truncation.
const MaxTextLen = 5000

const truncationSuffix = "..."

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	entityReplacer    = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&apos;", "'",
	)
)

// Clean strips markup, decodes the common entities, collapses whitespace and
// truncates to MaxTextLen runes with a "..." suffix.
func Clean(description string) string {
	if description == "" {
		return ""
	}
	cleaned := tagPattern.ReplaceAllString(description, "")
	cleaned = entityReplacer.Replace(cleaned)
	cleaned = strings.TrimSpace(whitespacePattern.ReplaceAllString(cleaned, " "))
	if utf8.RuneCountInString(cleaned) > MaxTextLen {
		cleaned = string([]rune(cleaned)[:MaxTextLen]) + truncationSuffix
	}
	return cleaned
}
