// Package textutil normalises free-form user text before it is validated or stored.
package textutil

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	folder       = cases.Fold()
	lower        = cases.Lower(language.Und)
)

// NormalizeText trims surrounding space, applies NFC and drops control characters other
// than newlines and tabs.
func NormalizeText(value string) string {
	value = norm.NFC.String(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
}

// PlainText strips every HTML element from value and unescapes entities, returning normalised text.
func PlainText(value string) string {
	if value == "" {
		return ""
	}
	return NormalizeText(html.UnescapeString(strictPolicy.Sanitize(value)))
}

// NormalizeTag produces the canonical stored form of a tag: NFKC, lower-cased, inner
// whitespace collapsed to single hyphens.
func NormalizeTag(tag string) string {
	tag = norm.NFKC.String(strings.TrimSpace(tag))
	tag = lower.String(tag)
	return strings.Join(strings.Fields(tag), "-")
}

// NormalizeTags normalises and de-duplicates tags, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		normalized := NormalizeTag(tag)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Fold returns the case-folded form used for case-insensitive search matching.
func Fold(value string) string {
	return folder.String(norm.NFKC.String(strings.TrimSpace(value)))
}

// ContainsFold reports whether needle occurs in haystack ignoring case and width.
func ContainsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(Fold(haystack), Fold(needle))
}

// RuneLen counts characters rather than bytes.
func RuneLen(value string) int {
	return utf8.RuneCountInString(value)
}
