package service

import (
	"context"
	"slices"
	"time"

	"github.com/calendararchive/calendar-server/internal/aggregator"
	"github.com/calendararchive/calendar-server/internal/domain"
	domainerrors "github.com/calendararchive/calendar-server/internal/errors"
	"github.com/calendararchive/calendar-server/internal/filter"
	"github.com/calendararchive/calendar-server/internal/store"
)

// CalendarOptions are the display defaults for derived views.
type CalendarOptions struct {
	Location      *time.Location
	UpcomingLimit int
	DayCellCap    int
	WeekStart     time.Weekday
}

// CalendarService answers one-shot read requests over the aggregated view
// of the global partition and the actor's personal partition. Live clients
// use the stream transports instead.
type CalendarService struct {
	store store.Store
	opts  CalendarOptions
	now   func() time.Time
}

// NewCalendarService creates a read service.
func NewCalendarService(st store.Store, opts CalendarOptions) *CalendarService {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.UpcomingLimit <= 0 {
		opts.UpcomingLimit = 5
	}
	if opts.DayCellCap <= 0 {
		opts.DayCellCap = 3
	}
	return &CalendarService{store: st, opts: opts, now: time.Now}
}

// Location returns the calendar time zone.
func (s *CalendarService) Location() *time.Location {
	return s.opts.Location
}

// Now returns the current time in the calendar time zone.
func (s *CalendarService) Now() time.Time {
	return s.now().In(s.opts.Location)
}

func (s *CalendarService) load(ctx context.Context, actor *domain.Actor) ([]domain.Event, error) {
	st, err := aggregator.Load(ctx, s.store, actor.ID(), s.Now())
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "load events")
	}
	return st.Events(), nil
}

// Events returns the actor's view filtered by c. Guests see global events.
func (s *CalendarService) Events(ctx context.Context, actor *domain.Actor, c filter.Criteria) ([]domain.Event, error) {
	events, err := s.load(ctx, actor)
	if err != nil {
		return nil, err
	}
	return filter.Apply(events, c), nil
}

// Today returns today's events in the calendar time zone.
func (s *CalendarService) Today(ctx context.Context, actor *domain.Actor, c filter.Criteria) ([]domain.Event, error) {
	events, err := s.Events(ctx, actor, c)
	if err != nil {
		return nil, err
	}
	return filter.Today(events, s.Now()), nil
}

// Upcoming returns events after now, earliest first. limit <= 0 uses the
// configured default.
func (s *CalendarService) Upcoming(ctx context.Context, actor *domain.Actor, c filter.Criteria, limit int) ([]domain.Event, error) {
	events, err := s.Events(ctx, actor, c)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.opts.UpcomingLimit
	}
	return filter.Upcoming(events, s.Now(), limit), nil
}

// Day returns one calendar cell. maxShown <= 0 uses the configured cap.
func (s *CalendarService) Day(ctx context.Context, actor *domain.Actor, c filter.Criteria, day time.Time, maxShown int) (filter.DayCell, error) {
	events, err := s.Events(ctx, actor, c)
	if err != nil {
		return filter.DayCell{}, err
	}
	if maxShown <= 0 {
		maxShown = s.opts.DayCellCap
	}
	cell := filter.OnDay(events, day.In(s.opts.Location), maxShown)
	cell.InMonth = true
	cell.IsToday = filter.SameDay(cell.Date, s.Now(), s.opts.Location)
	return cell, nil
}

// Month returns the grid for month. weekStart nil uses the configured
// first weekday.
func (s *CalendarService) Month(ctx context.Context, actor *domain.Actor, c filter.Criteria, month time.Time, weekStart *time.Weekday, maxShown int) ([][]filter.DayCell, error) {
	events, err := s.Events(ctx, actor, c)
	if err != nil {
		return nil, err
	}
	ws := s.opts.WeekStart
	if weekStart != nil {
		ws = *weekStart
	}
	if maxShown <= 0 {
		maxShown = s.opts.DayCellCap
	}
	return filter.MonthGrid(month.In(s.opts.Location), ws, events, maxShown, s.Now()), nil
}

// PersonalEvents returns the actor's own events for export, earliest first.
func (s *CalendarService) PersonalEvents(ctx context.Context, actor *domain.Actor) ([]domain.Event, error) {
	if actor.IsGuest() {
		return nil, domainerrors.Unauthorized("sign in to export your events")
	}
	events, err := s.load(ctx, actor)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(events))
	for _, ev := range events {
		if ev.IsPersonal {
			out = append(out, ev)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Event) int { return a.Date.Compare(b.Date) })
	return out, nil
}
