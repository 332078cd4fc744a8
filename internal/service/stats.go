package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/calendararchive/calendar-server/internal/aggregator"
	"github.com/calendararchive/calendar-server/internal/domain"
	domainerrors "github.com/calendararchive/calendar-server/internal/errors"
	"github.com/calendararchive/calendar-server/internal/filter"
	"github.com/calendararchive/calendar-server/internal/store"
)

const statsTopN = 5

// StatsService computes the admin dashboard figures.
type StatsService struct {
	store    store.Store
	location *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// NewStatsService creates a stats service.
func NewStatsService(st store.Store, loc *time.Location, logger *slog.Logger) *StatsService {
	if loc == nil {
		loc = time.Local
	}
	return &StatsService{store: st, location: loc, logger: orDiscard(logger), now: time.Now}
}

// Stats is the admin dashboard payload.
type Stats struct {
	GeneratedAt time.Time `json:"generated_at"`
	filter.Summary
	Users     int `json:"users"`
	Admins    int `json:"admins"`
	Calendars int `json:"personal_calendars"`
}

// Get summarizes every partition. Admin only.
func (s *StatsService) Get(ctx context.Context, actor *domain.Actor) (*Stats, error) {
	if err := requireAdmin(actor, "view statistics"); err != nil {
		return nil, err
	}

	now := s.now().In(s.location)
	state, err := aggregator.LoadAll(ctx, s.store, now)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "load events")
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "list users")
	}

	out := &Stats{
		GeneratedAt: now,
		Summary:     filter.Summarize(state.Events(), now, statsTopN),
		Users:       len(users),
	}
	for _, u := range users {
		if u.IsAdmin() {
			out.Admins++
		}
	}

	calendars := make(map[string]struct{})
	for _, ev := range state.Personal() {
		calendars[ev.UserID] = struct{}{}
	}
	out.Calendars = len(calendars)

	s.logger.Debug("stats computed", "events", out.Total, "users", out.Users)
	return out, nil
}
