package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calendararchive/calendar-server/internal/domain"
	"github.com/calendararchive/calendar-server/internal/store"
)

var testNow = time.Date(2026, 5, 10, 15, 30, 0, 0, time.UTC)

func TestEvent_GlobalDefaults(t *testing.T) {
	ev := Event(store.Document{"id": "gev-1"}, store.Global(), testNow)

	assert.Equal(t, "gev-1", ev.ID)
	assert.Equal(t, domain.DefaultGlobalTitle, ev.Title)
	assert.Equal(t, domain.DefaultGlobalCategory, ev.Category)
	assert.Equal(t, domain.DefaultGlobalColor, ev.Color)
	assert.Empty(t, ev.Description)
	assert.Empty(t, ev.Country)
	assert.Empty(t, ev.UserID)
	assert.False(t, ev.IsPersonal)
	assert.Equal(t, testNow, ev.Date)
	assert.Equal(t, testNow, ev.CreatedAt)
	assert.Equal(t, testNow, ev.UpdatedAt)
}

func TestEvent_PersonalDefaults(t *testing.T) {
	ev := Event(store.Document{"id": "pev-1", "isPersonal": false}, store.Personal("usr-1"), testNow)

	assert.True(t, ev.IsPersonal, "provenance comes from the partition")
	assert.Equal(t, "usr-1", ev.UserID)
	assert.Equal(t, domain.DefaultPersonalTitle, ev.Title)
	assert.Equal(t, domain.DefaultPersonalCategory, ev.Category)
	assert.Equal(t, domain.DefaultPersonalColor, ev.Color)
}

func TestEvent_LegacyGlobalFields(t *testing.T) {
	ev := Event(store.Document{
		"name": "Diwali",
		"type": "religious",
		"note": "Festival of lights",
	}, store.Global(), testNow)

	assert.Equal(t, "Diwali", ev.Title)
	assert.Equal(t, "religious", ev.Category)
	assert.Equal(t, "Festival of lights", ev.Description)

	// title wins over the legacy names
	ev = Event(store.Document{"title": "A", "name": "B", "event": "C"}, store.Global(), testNow)
	assert.Equal(t, "A", ev.Title)

	ev = Event(store.Document{"event": "C"}, store.Global(), testNow)
	assert.Equal(t, "C", ev.Title)
}

func TestEvent_LegacyFieldsIgnoredForPersonal(t *testing.T) {
	ev := Event(store.Document{"name": "Diwali", "type": "religious"}, store.Personal("usr-1"), testNow)

	assert.Equal(t, domain.DefaultPersonalTitle, ev.Title)
	assert.Equal(t, domain.DefaultPersonalCategory, ev.Category)
}

func TestEvent_BlankStringsUseDefaults(t *testing.T) {
	ev := Event(store.Document{"title": "   ", "category": "", "color": 42}, store.Global(), testNow)

	assert.Equal(t, domain.DefaultGlobalTitle, ev.Title)
	assert.Equal(t, domain.DefaultGlobalCategory, ev.Category)
	assert.Equal(t, domain.DefaultGlobalColor, ev.Color)
}

func TestTime_Forms(t *testing.T) {
	want := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
	}{
		{"time", want},
		{"rfc3339", "2026-03-01T09:00:00Z"},
		{"free form", "2026-03-01 09:00:00"},
		{"unix millis", float64(want.UnixMilli())},
		{"int millis", want.UnixMilli()},
		{"timestamp object", map[string]any{"seconds": float64(want.Unix()), "nanoseconds": float64(0)}},
		{"wire timestamp object", map[string]any{"_seconds": float64(want.Unix())}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Time(tt.in, time.UTC)
			require.True(t, ok)
			assert.True(t, want.Equal(got), "got %s", got)
		})
	}
}

func TestTime_DateOnlyUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*60*60)

	got, ok := Time("2026-03-01", loc)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, loc).Unix(), got.Unix())
}

func TestTime_Rejects(t *testing.T) {
	for _, v := range []any{nil, "", "not-a-date", true, map[string]any{"x": 1.0}, time.Time{}} {
		_, ok := Time(v, time.UTC)
		assert.False(t, ok, "%v", v)
	}
}

func TestEvent_UnparseableDateFallsBackToNow(t *testing.T) {
	ev := Event(store.Document{"date": "not-a-date", "createdAt": "2026-01-01T00:00:00Z"}, store.Global(), testNow)

	assert.Equal(t, testNow, ev.Date)
	assert.True(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Equal(ev.CreatedAt))
}

func TestEvents_KeepsOrder(t *testing.T) {
	docs := []store.Document{{"id": "a"}, {"id": "b"}}
	got := Events(docs, store.Global(), testNow)

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}
