// Package util provides small string helpers shared by the transports.
package util

import (
	"regexp"
	"strings"
)

var (
	wordSeparatorRe   = regexp.MustCompile(`[\s_/]+`)
	nonAlphanumericRe = regexp.MustCompile(`[^a-z0-9-]`)
	multipleDashRe    = regexp.MustCompile(`-+`)
)

// Slug converts a title to a lower-case, dash-separated file name stem.
// Characters outside a-z, 0-9 and dashes are dropped.
//
//	"Calendar Events"  → "calendar-events"
//	"My_Personal/2026" → "my-personal-2026"
//	"🎉 Holidays!"      → "holidays"
func Slug(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	s = wordSeparatorRe.ReplaceAllString(s, "-")
	s = nonAlphanumericRe.ReplaceAllString(s, "")
	s = multipleDashRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// SlugOr returns Slug(input), or fallback when the slug is empty.
func SlugOr(input, fallback string) string {
	if s := Slug(input); s != "" {
		return s
	}
	return fallback
}
