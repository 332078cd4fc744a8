package service

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
)

// A recurring VEVENT becomes one row per occurrence that starts within
// recurrenceHorizon of DTSTART, capped at maxOccurrences.
const (
	recurrenceHorizon = 2 * 366 * 24 * time.Hour
	maxOccurrences    = 400
)

// icsStartTime parses DTSTART. Date-only values are all-day and fall at
// midnight in the service location.
func (s *ImportService) icsStartTime(ve *ical.VEvent) (time.Time, bool, bool) {
	raw := propValue(ve, ical.ComponentPropertyDtStart)
	if raw == "" {
		return time.Time{}, false, false
	}
	if !strings.Contains(raw, "T") {
		t, err := time.ParseInLocation("20060102", raw, s.location)
		return t, true, err == nil
	}
	t, err := ve.GetStartAt()
	return t, false, err == nil
}

// icsStart renders DTSTART as text for the shared date parser.
func (s *ImportService) icsStart(ve *ical.VEvent) string {
	t, allDay, ok := s.icsStartTime(ve)
	if !ok {
		return propValue(ve, ical.ComponentPropertyDtStart)
	}
	return formatStart(t, allDay)
}

func formatStart(t time.Time, allDay bool) string {
	if allDay {
		return t.Format(time.RFC3339)
	}
	return t.Format(time.RFC3339Nano)
}

// occurrences expands RRULE and EXDATE into start dates. It returns nil
// when the event does not recur or the rule cannot be used, in which case
// the event is imported once.
func (s *ImportService) occurrences(ve *ical.VEvent) []string {
	rule := propValue(ve, ical.ComponentPropertyRrule)
	if rule == "" {
		return nil
	}
	start, allDay, ok := s.icsStartTime(ve)
	if !ok {
		return nil
	}

	r, err := rrule.StrToRRule(rule)
	if err != nil {
		s.logger.Warn("ignoring unparseable RRULE",
			"uid", propValue(ve, ical.ComponentPropertyUniqueId),
			"rrule", rule,
			"error", err)
		return nil
	}
	r.DTStart(start)

	var set rrule.Set
	set.RRule(r)
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for part := range strings.SplitSeq(p.Value, ",") {
			if ex, ok := s.parseICSTime(strings.TrimSpace(part)); ok {
				set.ExDate(ex.In(start.Location()))
			}
		}
	}

	times := set.Between(start, start.Add(recurrenceHorizon), true)
	if len(times) > maxOccurrences {
		times = times[:maxOccurrences]
	}
	out := make([]string, 0, len(times))
	for _, t := range times {
		out = append(out, formatStart(t, allDay))
	}
	return out
}

// parseICSTime reads the basic DATE and DATE-TIME forms used by EXDATE.
func (s *ImportService) parseICSTime(v string) (time.Time, bool) {
	var (
		t   time.Time
		err error
	)
	switch {
	case v == "":
		return time.Time{}, false
	case strings.HasSuffix(v, "Z"):
		t, err = time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		t, err = time.ParseInLocation("20060102T150405", v, s.location)
	default:
		t, err = time.ParseInLocation("20060102", v, s.location)
	}
	return t, err == nil
}
