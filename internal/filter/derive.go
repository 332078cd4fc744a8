package filter

import (
	"cmp"
	"slices"
	"time"

	"github.com/calendararchive/calendar-server/internal/domain"
)

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Today returns the events whose calendar date equals now's calendar date
// in now's location, in input order.
func Today(events []domain.Event, now time.Time) []domain.Event {
	return onDay(events, now)
}

func onDay(events []domain.Event, day time.Time) []domain.Event {
	out := make([]domain.Event, 0)
	for _, ev := range events {
		if SameDay(ev.Date, day, day.Location()) {
			out = append(out, ev)
		}
	}
	return out
}

// Upcoming returns the events strictly after now, earliest first, keeping
// input order for equal dates. limit <= 0 returns all of them.
func Upcoming(events []domain.Event, now time.Time, limit int) []domain.Event {
	out := make([]domain.Event, 0)
	for _, ev := range events {
		if ev.Date.After(now) {
			out = append(out, ev)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Event) int {
		return a.Date.Compare(b.Date)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// DayCell is one calendar-grid cell. Events holds at most the display cap;
// Overflow counts the rest.
type DayCell struct {
	Date     time.Time      `json:"date"`
	Events   []domain.Event `json:"events"`
	Total    int            `json:"total"`
	Overflow int            `json:"overflow"`
	InMonth  bool           `json:"in_month"`
	IsToday  bool           `json:"is_today"`
}

// OnDay returns the events on day's calendar date, earliest first, capped
// for display. maxShown <= 0 means no cap.
func OnDay(events []domain.Event, day time.Time, maxShown int) DayCell {
	matched := onDay(events, day)
	slices.SortStableFunc(matched, func(a, b domain.Event) int {
		return a.Date.Compare(b.Date)
	})

	cell := DayCell{Date: StartOfDay(day), Total: len(matched), Events: matched}
	if maxShown > 0 && len(matched) > maxShown {
		cell.Events = matched[:maxShown]
		cell.Overflow = len(matched) - maxShown
	}
	return cell
}

// MonthGrid lays out a month as whole weeks. The grid starts on weekStart
// on or before the 1st and ends on the day before weekStart after the last
// day of the month. month may be any instant within the month; its
// location is the calendar's.
func MonthGrid(month time.Time, weekStart time.Weekday, events []domain.Event, maxShown int, now time.Time) [][]DayCell {
	loc := month.Location()
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1)

	start := first.AddDate(0, 0, -daysBack(first.Weekday(), weekStart))
	end := last.AddDate(0, 0, 6-daysBack(last.Weekday(), weekStart))

	// Bucket once so each cell does not rescan every event.
	byDay := make(map[string][]domain.Event)
	for _, ev := range events {
		key := ev.Date.In(loc).Format(time.DateOnly)
		byDay[key] = append(byDay[key], ev)
	}

	var weeks [][]DayCell
	for day := start; !day.After(end); day = day.AddDate(0, 0, 7) {
		week := make([]DayCell, 0, 7)
		for i := range 7 {
			d := day.AddDate(0, 0, i)
			cell := OnDay(byDay[d.Format(time.DateOnly)], d, maxShown)
			cell.InMonth = d.Month() == first.Month()
			cell.IsToday = SameDay(d, now, loc)
			week = append(week, cell)
		}
		weeks = append(weeks, week)
	}
	return weeks
}

// daysBack counts days from the most recent weekStart to wd.
func daysBack(wd, weekStart time.Weekday) int {
	return (int(wd) - int(weekStart) + 7) % 7
}

// Count is a value and how many events carry it.
type Count struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Summary describes an event collection for the admin dashboard.
type Summary struct {
	TopCountries  []Count `json:"top_countries"`
	TopCategories []Count `json:"top_categories"`
	Total         int     `json:"total"`
	Global        int     `json:"global"`
	Personal      int     `json:"personal"`
	Countries     int     `json:"countries"`
	Categories    int     `json:"categories"`
	ThisMonth     int     `json:"this_month"`
	Upcoming      int     `json:"upcoming"`
}

// Summarize counts events by provenance, country and category. Empty
// countries are not counted as a country.
func Summarize(events []domain.Event, now time.Time, topN int) Summary {
	s := Summary{Total: len(events)}
	countries := make(map[string]int)
	categories := make(map[string]int)

	for _, ev := range events {
		if ev.IsPersonal {
			s.Personal++
		} else {
			s.Global++
		}
		if ev.Country != "" {
			countries[ev.Country]++
		}
		if ev.Category != "" {
			categories[ev.Category]++
		}
		d := ev.Date.In(now.Location())
		if d.Year() == now.Year() && d.Month() == now.Month() {
			s.ThisMonth++
		}
		if ev.Date.After(now) {
			s.Upcoming++
		}
	}

	s.Countries = len(countries)
	s.Categories = len(categories)
	s.TopCountries = top(countries, topN)
	s.TopCategories = top(categories, topN)
	return s
}

// top returns the n most frequent values, ties broken alphabetically.
func top(counts map[string]int, n int) []Count {
	out := make([]Count, 0, len(counts))
	for v, c := range counts {
		out = append(out, Count{Value: v, Count: c})
	}
	slices.SortFunc(out, func(a, b Count) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Value, b.Value)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
