package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/calendararchive/calendar-server/internal/config"
	"github.com/calendararchive/calendar-server/internal/domain"
	domainerrors "github.com/calendararchive/calendar-server/internal/errors"
	"github.com/calendararchive/calendar-server/internal/filter"
	"github.com/calendararchive/calendar-server/internal/service"
)

func (s *Server) registerEventRoutes() {
	security := []map[string][]string{{"bearer": {}}, {}}

	huma.Register(s.api, huma.Operation{
		OperationID: "listEvents",
		Method:      http.MethodGet,
		Path:        "/api/v1/events",
		Summary:     "List events",
		Description: "Returns global events plus the caller's personal events, filtered by the query criteria",
		Tags:        []string{"Events"},
		Security:    security,
	}, s.handleListEvents)

	huma.Register(s.api, huma.Operation{
		OperationID: "listTodayEvents",
		Method:      http.MethodGet,
		Path:        "/api/v1/events/today",
		Summary:     "Today's events",
		Tags:        []string{"Events"},
		Security:    security,
	}, s.handleTodayEvents)

	huma.Register(s.api, huma.Operation{
		OperationID: "listUpcomingEvents",
		Method:      http.MethodGet,
		Path:        "/api/v1/events/upcoming",
		Summary:     "Upcoming events",
		Description: "Returns events strictly after now, earliest first",
		Tags:        []string{"Events"},
		Security:    security,
	}, s.handleUpcomingEvents)

	huma.Register(s.api, huma.Operation{
		OperationID: "getDayEvents",
		Method:      http.MethodGet,
		Path:        "/api/v1/events/day/{date}",
		Summary:     "Events on a day",
		Tags:        []string{"Events"},
		Security:    security,
	}, s.handleDayEvents)

	huma.Register(s.api, huma.Operation{
		OperationID: "getMonthGrid",
		Method:      http.MethodGet,
		Path:        "/api/v1/events/month/{month}",
		Summary:     "Month grid",
		Description: "Returns full weeks covering the month, each day with its capped event list",
		Tags:        []string{"Events"},
		Security:    security,
	}, s.handleMonthGrid)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createEvent",
		Method:        http.MethodPost,
		Path:          "/api/v1/events",
		Summary:       "Add event",
		Description:   "Adds a personal event for the caller, or a global event (admin only)",
		Tags:          []string{"Events"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateEvent)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateEvent",
		Method:      http.MethodPatch,
		Path:        "/api/v1/events/{id}",
		Summary:     "Edit personal event",
		Tags:        []string{"Events"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateEvent)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteEvent",
		Method:        http.MethodDelete,
		Path:          "/api/v1/events/{id}",
		Summary:       "Delete event",
		Description:   "Deletes a personal event of the caller, or a global event (admin only)",
		Tags:          []string{"Events"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteEvent)
}

// === DTOs ===

// CriteriaParams are the filter query parameters shared by the read
// endpoints.
type CriteriaParams struct {
	Authorization string `header:"Authorization"`
	Search        string `query:"search" maxLength:"200" doc:"Case-insensitive substring of title or description"`
	Country       string `query:"country" maxLength:"64" doc:"Exact country; events without one also match unless strict"`
	Category      string `query:"category" maxLength:"64" doc:"Exact category; events without one also match unless strict"`
	Strict        bool   `query:"strict" doc:"Exclude events whose country or category is empty"`
}

func (p CriteriaParams) criteria() filter.Criteria {
	return filter.Criteria{
		SearchTerm: strings.TrimSpace(p.Search),
		Country:    strings.TrimSpace(p.Country),
		Category:   strings.TrimSpace(p.Category),
		Strict:     p.Strict,
	}
}

// ListEventsInput contains parameters for listing events.
type ListEventsInput struct {
	CriteriaParams
}

// UpcomingEventsInput adds a result limit.
type UpcomingEventsInput struct {
	CriteriaParams
	Limit int `query:"limit" minimum:"0" maximum:"100" doc:"Maximum events (0 uses the server default)"`
}

// DayEventsInput selects one day.
type DayEventsInput struct {
	CriteriaParams
	Date string `path:"date" doc:"Day as YYYY-MM-DD in the calendar time zone"`
	Cap  int    `query:"cap" minimum:"0" maximum:"50" doc:"Events shown before overflow (0 uses the server default)"`
}

// MonthGridInput selects one month.
type MonthGridInput struct {
	CriteriaParams
	Month     string `path:"month" doc:"Month as YYYY-MM"`
	WeekStart string `query:"week_start" doc:"First day of the week, e.g. sunday or mon"`
	Cap       int    `query:"cap" minimum:"0" maximum:"50" doc:"Events shown per day before overflow"`
}

// EventListResponse is a list of events.
type EventListResponse struct {
	Events []domain.Event `json:"events" doc:"Events, earliest first"`
	Total  int            `json:"total" doc:"Number of events returned"`
}

// EventListOutput wraps an event list for Huma.
type EventListOutput struct {
	Body EventListResponse
}

// DayOutput wraps one day cell for Huma.
type DayOutput struct {
	Body filter.DayCell
}

// MonthGridResponse is a month view.
type MonthGridResponse struct {
	Month string             `json:"month" doc:"Month as YYYY-MM"`
	Weeks [][]filter.DayCell `json:"weeks" doc:"Full weeks covering the month"`
}

// MonthGridOutput wraps the month grid for Huma.
type MonthGridOutput struct {
	Body MonthGridResponse
}

// CreateEventInput wraps the add request for Huma.
type CreateEventInput struct {
	Authorization string `header:"Authorization"`
	Body          service.AddEventRequest
}

// UpdateEventInput wraps the edit request for Huma.
type UpdateEventInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Event ID"`
	Body          service.UpdateEventRequest
}

// DeleteEventInput selects the event to delete.
type DeleteEventInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Event ID"`
	Personal      bool   `query:"personal" doc:"Delete from the caller's personal calendar instead of the global one"`
}

// EventOutput wraps a single event for Huma.
type EventOutput struct {
	Body *domain.Event
}

// === Handlers ===

func eventList(events []domain.Event) *EventListOutput {
	if events == nil {
		events = []domain.Event{}
	}
	return &EventListOutput{Body: EventListResponse{Events: events, Total: len(events)}}
}

func (s *Server) handleListEvents(ctx context.Context, input *ListEventsInput) (*EventListOutput, error) {
	actor, err := s.actor(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	events, err := s.services.Calendar.Events(ctx, actor, input.criteria())
	if err != nil {
		return nil, err
	}
	return eventList(events), nil
}

func (s *Server) handleTodayEvents(ctx context.Context, input *ListEventsInput) (*EventListOutput, error) {
	actor, err := s.actor(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	events, err := s.services.Calendar.Today(ctx, actor, input.criteria())
	if err != nil {
		return nil, err
	}
	return eventList(events), nil
}

func (s *Server) handleUpcomingEvents(ctx context.Context, input *UpcomingEventsInput) (*EventListOutput, error) {
	actor, err := s.actor(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	events, err := s.services.Calendar.Upcoming(ctx, actor, input.criteria(), input.Limit)
	if err != nil {
		return nil, err
	}
	return eventList(events), nil
}

func (s *Server) handleDayEvents(ctx context.Context, input *DayEventsInput) (*DayOutput, error) {
	actor, err := s.actor(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	day, err := time.ParseInLocation(time.DateOnly, input.Date, s.services.Calendar.Location())
	if err != nil {
		return nil, domainerrors.Validationf("invalid date %q, expected YYYY-MM-DD", input.Date)
	}
	cell, err := s.services.Calendar.Day(ctx, actor, input.criteria(), day, input.Cap)
	if err != nil {
		return nil, err
	}
	return &DayOutput{Body: cell}, nil
}

func (s *Server) handleMonthGrid(ctx context.Context, input *MonthGridInput) (*MonthGridOutput, error) {
	actor, err := s.actor(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	month, err := time.ParseInLocation("2006-01", input.Month, s.services.Calendar.Location())
	if err != nil {
		return nil, domainerrors.Validationf("invalid month %q, expected YYYY-MM", input.Month)
	}

	var weekStart *time.Weekday
	if input.WeekStart != "" {
		ws, err := config.ParseWeekday(input.WeekStart)
		if err != nil {
			return nil, domainerrors.Validation(err.Error())
		}
		weekStart = &ws
	}

	weeks, err := s.services.Calendar.Month(ctx, actor, input.criteria(), month, weekStart, input.Cap)
	if err != nil {
		return nil, err
	}
	return &MonthGridOutput{Body: MonthGridResponse{Month: input.Month, Weeks: weeks}}, nil
}

func (s *Server) handleCreateEvent(ctx context.Context, input *CreateEventInput) (*EventOutput, error) {
	actor, err := s.actor(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	ev, err := s.services.Events.Add(ctx, actor, input.Body)
	if err != nil {
		return nil, err
	}
	return &EventOutput{Body: ev}, nil
}

func (s *Server) handleUpdateEvent(ctx context.Context, input *UpdateEventInput) (*EventOutput, error) {
	actor, err := s.actor(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	ev, err := s.services.Events.Update(ctx, actor, input.ID, input.Body)
	if err != nil {
		return nil, err
	}
	return &EventOutput{Body: ev}, nil
}

func (s *Server) handleDeleteEvent(ctx context.Context, input *DeleteEventInput) (*struct{}, error) {
	actor, err := s.actor(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	if err := s.services.Events.Delete(ctx, actor, input.ID, input.Personal); err != nil {
		return nil, err
	}
	return nil, nil
}
