// Package filter derives the views clients render from an aggregated event
// collection. Every function here is pure: no I/O, no clock reads, and the
// input slice is never modified.
package filter

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/calendararchive/calendar-server/internal/domain"
)

// Criteria narrows an event collection. Zero values match everything.
type Criteria struct {
	SearchTerm string `json:"search,omitempty"`
	Country    string `json:"country,omitempty"`
	Category   string `json:"category,omitempty"`
	// Strict stops events with an empty country or category from passing
	// a non-empty country or category filter.
	Strict bool `json:"strict,omitempty"`
}

// IsZero reports whether c filters nothing.
func (c Criteria) IsZero() bool {
	return c.SearchTerm == "" && c.Country == "" && c.Category == ""
}

var folder = cases.Fold()

func fold(s string) string {
	return folder.String(s)
}

// MatchesSearch reports whether term is empty or occurs, ignoring case, in
// the event's title or description.
func MatchesSearch(ev *domain.Event, term string) bool {
	if term == "" {
		return true
	}
	needle := fold(term)
	if strings.Contains(fold(ev.Title), needle) {
		return true
	}
	return ev.Description != "" && strings.Contains(fold(ev.Description), needle)
}

// MatchesCountry reports whether the event passes a country filter. An
// event without a country passes any filter unless strict is set.
func MatchesCountry(ev *domain.Event, country string, strict bool) bool {
	return matchesExact(ev.Country, country, strict)
}

// MatchesCategory is MatchesCountry for categories.
func MatchesCategory(ev *domain.Event, category string, strict bool) bool {
	return matchesExact(ev.Category, category, strict)
}

func matchesExact(value, want string, strict bool) bool {
	switch {
	case want == "":
		return true
	case value == want:
		return true
	default:
		return value == "" && !strict
	}
}

// Matches is the conjunction of the three predicates.
func (c Criteria) Matches(ev *domain.Event) bool {
	return MatchesSearch(ev, c.SearchTerm) &&
		MatchesCountry(ev, c.Country, c.Strict) &&
		MatchesCategory(ev, c.Category, c.Strict)
}

// Apply returns the events matching c, in input order.
func Apply(events []domain.Event, c Criteria) []domain.Event {
	out := make([]domain.Event, 0, len(events))
	for i := range events {
		if c.Matches(&events[i]) {
			out = append(out, events[i])
		}
	}
	return out
}
