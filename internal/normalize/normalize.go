// Package normalize turns raw, loosely typed event records into
// domain.Event values. Every optional field has exactly one default,
// decided here and nowhere else.
package normalize

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/calendararchive/calendar-server/internal/domain"
	"github.com/calendararchive/calendar-server/internal/store"
)

// Fallback field names accepted from older records.
const (
	fieldName  = "name"
	fieldEvent = "event"
	fieldType  = "type"
	fieldNote  = "note"
)

// Event normalizes a raw record read from partition p.
//
// Date-only values are interpreted in now's location, and now is used for
// any timestamp that is missing or unparseable. The record's isPersonal
// flag is ignored: provenance always comes from the partition.
func Event(doc store.Document, p store.Partition, now time.Time) domain.Event {
	prov := p.Provenance()
	loc := now.Location()

	ev := domain.Event{
		ID:          text(doc[store.FieldID]),
		IsPersonal:  p.Personal,
		Title:       firstText(doc, store.FieldTitle),
		Description: firstText(doc, store.FieldDescription, fieldNote),
		Category:    firstText(doc, store.FieldCategory),
		Country:     text(doc[store.FieldCountry]),
		Color:       text(doc[store.FieldColor]),
	}

	if p.Personal {
		ev.UserID = text(doc[store.FieldUserID])
		if ev.UserID == "" {
			ev.UserID = p.UserID
		}
	} else {
		if ev.Title == "" {
			ev.Title = firstText(doc, fieldName, fieldEvent)
		}
		if ev.Category == "" {
			ev.Category = firstText(doc, fieldType)
		}
	}

	if ev.Title == "" {
		ev.Title = prov.DefaultTitle()
	}
	if ev.Category == "" {
		ev.Category = prov.DefaultCategory()
	}
	if ev.Color == "" {
		ev.Color = prov.DefaultColor()
	}

	ev.Date = timeOr(doc[store.FieldDate], loc, now)
	ev.CreatedAt = timeOr(doc[store.FieldCreatedAt], loc, now)
	ev.UpdatedAt = timeOr(doc[store.FieldUpdatedAt], loc, now)
	return ev
}

// Events normalizes every record of one partition snapshot.
func Events(docs []store.Document, p store.Partition, now time.Time) []domain.Event {
	out := make([]domain.Event, 0, len(docs))
	for _, doc := range docs {
		out = append(out, Event(doc, p, now))
	}
	return out
}

// Time interprets v as a point in time. Accepted forms are a time.Time,
// an RFC 3339 or free-form date string, Unix milliseconds, and a
// {seconds, nanoseconds} timestamp object. Strings without a zone are
// read in loc.
func Time(v any, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}

	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		return parseString(t, loc)
	case float64:
		return fromMillis(t)
	case int64:
		return time.UnixMilli(t), true
	case int:
		return time.UnixMilli(int64(t)), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromMillis(f)
	case map[string]any:
		return fromTimestampObject(t)
	default:
		return time.Time{}, false
	}
}

func parseString(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(sanitize(s))
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if !strings.ContainsAny(s, "0123456789") {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func fromMillis(ms float64) (time.Time, bool) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)), true
}

// fromTimestampObject accepts both {seconds, nanoseconds} and the
// underscore-prefixed wire form {_seconds, _nanoseconds}.
func fromTimestampObject(m map[string]any) (time.Time, bool) {
	sec, ok := number(m["seconds"])
	if !ok {
		sec, ok = number(m["_seconds"])
	}
	if !ok {
		return time.Time{}, false
	}
	nsec, ok := number(m["nanoseconds"])
	if !ok {
		nsec, _ = number(m["_nanoseconds"])
	}
	return time.Unix(int64(sec), int64(nsec)), true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func timeOr(v any, loc *time.Location, fallback time.Time) time.Time {
	if t, ok := Time(v, loc); ok {
		return t
	}
	return fallback
}

// text returns v when it is a non-blank string.
func text(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(sanitize(s))
}

func firstText(doc store.Document, keys ...string) string {
	for _, k := range keys {
		if s := text(doc[k]); s != "" {
			return s
		}
	}
	return ""
}

// sanitize removes null bytes, which some spreadsheet exports leave behind.
func sanitize(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
