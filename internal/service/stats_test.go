package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calendararchive/calendar-server/internal/domain"
	domainerrors "github.com/calendararchive/calendar-server/internal/errors"
	"github.com/calendararchive/calendar-server/internal/filter"
	"github.com/calendararchive/calendar-server/internal/store"
)

func TestStatsService_Get(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	seed(t, st, store.Global(), "Diwali", calendarNow.AddDate(0, 0, 2), store.Document{store.FieldCountry: "India", store.FieldCategory: "holiday"})
	seed(t, st, store.Global(), "Holi", calendarNow.AddDate(0, -3, 0), store.Document{store.FieldCountry: "India", store.FieldCategory: "religious"})
	seed(t, st, store.Personal("usr-alice"), "Dentist", calendarNow.AddDate(0, 0, 1), nil)
	seed(t, st, store.Personal("usr-bob"), "Party", calendarNow.AddDate(0, 0, -1), nil)

	for _, u := range []*domain.User{
		{ID: "usr-admin", Email: "admin@example.com", Role: domain.RoleAdmin},
		{ID: "usr-alice", Email: "alice@example.com", Role: domain.RoleUser},
	} {
		require.NoError(t, st.CreateUser(ctx, u))
	}

	svc := NewStatsService(st, time.UTC, nil)
	svc.now = func() time.Time { return calendarNow }

	stats, err := svc.Get(ctx, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Global)
	assert.Equal(t, 2, stats.Personal)
	assert.Equal(t, 1, stats.Countries)
	assert.Equal(t, 2, stats.Upcoming)
	assert.Equal(t, 3, stats.ThisMonth)
	assert.Equal(t, []filter.Count{{Value: "India", Count: 2}}, stats.TopCountries)
	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 1, stats.Admins)
	assert.Equal(t, 2, stats.Calendars)
	assert.Equal(t, calendarNow, stats.GeneratedAt)
}

func TestStatsService_AdminOnly(t *testing.T) {
	svc := NewStatsService(setupStore(t), time.UTC, nil)

	_, err := svc.Get(context.Background(), alice)
	requireCode(t, err, domainerrors.CodeForbidden)

	_, err = svc.Get(context.Background(), guest)
	requireCode(t, err, domainerrors.CodeUnauthorized)
}
