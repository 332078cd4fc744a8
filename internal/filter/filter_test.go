package filter

import (
	"net/url"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calendararchive/calendar-server/internal/domain"
)

func TestCriteria_HarvestFestivalExample(t *testing.T) {
	ev := domain.Event{Title: "Harvest Festival", Category: "holiday", Country: ""}
	c := Criteria{SearchTerm: "fest", Category: "holiday"}

	assert.True(t, c.Matches(&ev))
	assert.Len(t, Apply([]domain.Event{ev}, c), 1)
}

func TestMatchesSearch(t *testing.T) {
	ev := domain.Event{Title: "Harvest Festival", Description: "Bring a PIE"}

	tests := []struct {
		term string
		want bool
	}{
		{"", true},
		{"harvest", true},
		{"FEST", true},
		{"pie", true},
		{"parade", false},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesSearch(&ev, tt.term))
		})
	}

	assert.True(t, MatchesSearch(&domain.Event{Title: "FÊTE DE LA MUSIQUE"}, "fête"))
}

func TestMatchesCountry_PermissiveEmptyField(t *testing.T) {
	noCountry := domain.Event{Title: "Leap Day"}
	germany := domain.Event{Country: "Germany"}
	france := domain.Event{Country: "France"}

	assert.True(t, MatchesCountry(&noCountry, "Germany", false))
	assert.True(t, MatchesCountry(&germany, "Germany", false))
	assert.False(t, MatchesCountry(&france, "Germany", false))
	assert.True(t, MatchesCountry(&france, "", false))

	// exact match only, no case folding for names
	assert.False(t, MatchesCountry(&germany, "germany", false))
}

func TestMatches_StrictOptIn(t *testing.T) {
	noCountry := domain.Event{Title: "Leap Day", Category: ""}

	assert.False(t, MatchesCountry(&noCountry, "Germany", true))
	assert.False(t, MatchesCategory(&noCountry, "holiday", true))
	assert.True(t, MatchesCountry(&noCountry, "", true), "empty filter still passes")

	c := Criteria{Country: "Germany", Strict: true}
	assert.Empty(t, Apply([]domain.Event{noCountry}, c))
}

func TestApply_KeepsOrderAndInput(t *testing.T) {
	events := []domain.Event{
		{ID: "1", Title: "Alpha", Category: "work"},
		{ID: "2", Title: "Beta", Category: "holiday"},
		{ID: "3", Title: "Gamma", Category: ""},
	}
	got := Apply(events, Criteria{Category: "holiday"})

	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
	assert.Len(t, events, 3)
	assert.True(t, Criteria{}.IsZero())
}

func TestProperty_FilterConjunction(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	values := gen.OneConstOf("", "Germany", "France", "holiday", "fest", "Harvest Festival")

	properties.Property("an event is included iff all three predicates hold", prop.ForAll(
		func(title, country, category, term, fCountry, fCategory string, strict bool) bool {
			ev := domain.Event{Title: title, Country: country, Category: category}
			c := Criteria{SearchTerm: term, Country: fCountry, Category: fCategory, Strict: strict}

			want := MatchesSearch(&ev, term) &&
				MatchesCountry(&ev, fCountry, strict) &&
				MatchesCategory(&ev, fCategory, strict)
			return (len(Apply([]domain.Event{ev}, c)) == 1) == want
		},
		values, values, values, values, values, values, gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestTodayAndUpcoming(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	events := []domain.Event{
		{ID: "yesterday", Date: now.AddDate(0, 0, -1)},
		{ID: "today", Date: now.Add(-2 * time.Hour)},
		{ID: "in3days", Date: now.AddDate(0, 0, 3)},
	}

	today := Today(events, now)
	require.Len(t, today, 1)
	assert.Equal(t, "today", today[0].ID)

	upcoming := Upcoming(events, now, 5)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "in3days", upcoming[0].ID)
}

func TestUpcoming_SortsStableAndLimits(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	later := now.Add(48 * time.Hour)
	events := []domain.Event{
		{ID: "c", Date: later},
		{ID: "a", Date: now.Add(time.Hour)},
		{ID: "exact", Date: now},
		{ID: "d", Date: later},
		{ID: "b", Date: now.Add(2 * time.Hour)},
	}

	got := Upcoming(events, now, 0)
	ids := make([]string, 0, len(got))
	for _, ev := range got {
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids, "strictly after now, ties keep input order")

	assert.Len(t, Upcoming(events, now, 2), 2)
	assert.Empty(t, Upcoming(nil, now, 5))
}

func TestToday_UsesNowLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, tokyo)
	// 2026-06-14 23:30 UTC is 2026-06-15 08:30 in Tokyo.
	ev := domain.Event{Date: time.Date(2026, 6, 14, 23, 30, 0, 0, time.UTC)}

	assert.Len(t, Today([]domain.Event{ev}, now), 1)
	assert.Empty(t, Today([]domain.Event{ev}, now.In(time.UTC)))
}

func TestOnDay_CapsAndCountsOverflow(t *testing.T) {
	day := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	events := []domain.Event{
		{ID: "3", Date: day.Add(15 * time.Hour)},
		{ID: "1", Date: day.Add(9 * time.Hour)},
		{ID: "other", Date: day.AddDate(0, 0, 1)},
		{ID: "2", Date: day.Add(10 * time.Hour)},
	}

	cell := OnDay(events, day.Add(13*time.Hour), 2)
	assert.Equal(t, day, cell.Date)
	assert.Equal(t, 3, cell.Total)
	assert.Equal(t, 1, cell.Overflow)
	require.Len(t, cell.Events, 2)
	assert.Equal(t, "1", cell.Events[0].ID)
	assert.Equal(t, "2", cell.Events[1].ID)

	uncapped := OnDay(events, day, 0)
	assert.Len(t, uncapped.Events, 3)
	assert.Zero(t, uncapped.Overflow)
}

func TestMonthGrid(t *testing.T) {
	// June 2026 starts on a Monday and ends on a Tuesday.
	month := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)
	events := []domain.Event{
		{ID: "solstice", Date: time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)},
		{ID: "may", Date: time.Date(2026, 5, 31, 12, 0, 0, 0, time.UTC)},
	}

	t.Run("sunday start", func(t *testing.T) {
		weeks := MonthGrid(month, time.Sunday, events, 3, now)
		require.Len(t, weeks, 5)

		first := weeks[0][0]
		assert.Equal(t, time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC), first.Date)
		assert.False(t, first.InMonth)
		assert.Equal(t, 1, first.Total, "leading days show their events")

		lastWeek := weeks[len(weeks)-1]
		assert.Equal(t, time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC), lastWeek[6].Date)

		var today, solstice DayCell
		for _, week := range weeks {
			require.Len(t, week, 7)
			for _, cell := range week {
				if cell.IsToday {
					today = cell
				}
				if cell.Total > 0 && cell.InMonth {
					solstice = cell
				}
			}
		}
		assert.Equal(t, 15, today.Date.Day())
		assert.Equal(t, 21, solstice.Date.Day())
	})

	t.Run("monday start", func(t *testing.T) {
		weeks := MonthGrid(month, time.Monday, events, 3, now)
		require.Len(t, weeks, 5)
		assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), weeks[0][0].Date)
		assert.Equal(t, time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC), weeks[4][6].Date)
	})
}

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	events := []domain.Event{
		{Country: "India", Category: "holiday", Date: now.AddDate(0, 0, 2)},
		{Country: "India", Category: "religious", Date: now.AddDate(0, -1, 0)},
		{Country: "Japan", Category: "holiday", Date: now.AddDate(0, 0, -3)},
		{Country: "", Category: "personal", IsPersonal: true, Date: now.AddDate(1, 0, 0)},
	}

	s := Summarize(events, now, 1)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 3, s.Global)
	assert.Equal(t, 1, s.Personal)
	assert.Equal(t, 2, s.Countries)
	assert.Equal(t, 3, s.Categories)
	assert.Equal(t, 2, s.ThisMonth)
	assert.Equal(t, 2, s.Upcoming)
	assert.Equal(t, []Count{{Value: "India", Count: 2}}, s.TopCountries)
	assert.Equal(t, []Count{{Value: "holiday", Count: 2}}, s.TopCategories)
}

func TestFromQuery(t *testing.T) {
	q := url.Values{
		"search":   {"  fest "},
		"country":  {"Germany"},
		"category": {"holiday"},
		"strict":   {"true"},
	}
	assert.Equal(t, Criteria{SearchTerm: "fest", Country: "Germany", Category: "holiday", Strict: true}, FromQuery(q))

	assert.True(t, FromQuery(url.Values{"strict": {"maybe"}}).IsZero())
	assert.False(t, FromQuery(url.Values{"strict": {"maybe"}}).Strict)
}
