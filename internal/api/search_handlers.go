package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/calendararchive/calendar-server/internal/errors"
	"github.com/calendararchive/calendar-server/internal/search"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchEvents",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search events",
		Description: "Full-text search over global events and the caller's personal events",
		Tags:        []string{"Search"},
		Security:    []map[string][]string{{"bearer": {}}, {}},
	}, s.handleSearch)
}

// SearchInput contains search parameters.
type SearchInput struct {
	Authorization string `header:"Authorization"`
	Query         string `query:"q" required:"true" minLength:"1" maxLength:"200" doc:"Search text"`
	Country       string `query:"country" maxLength:"64" doc:"Exact country"`
	Category      string `query:"category" maxLength:"64" doc:"Exact category"`
	From          string `query:"from" doc:"Earliest date, YYYY-MM-DD"`
	To            string `query:"to" doc:"Latest date, YYYY-MM-DD (inclusive)"`
	Sort          string `query:"sort" enum:"relevance,date" doc:"Result order (default relevance)"`
	Limit         int    `query:"limit" minimum:"0" maximum:"100" doc:"Page size (0 uses the default)"`
	Offset        int    `query:"offset" minimum:"0" doc:"Results to skip"`
}

// SearchOutput wraps search results for Huma.
type SearchOutput struct {
	Body *search.Result
}

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	if s.services.Search == nil {
		return nil, huma.Error503ServiceUnavailable("search is not available")
	}
	actor, err := s.actor(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	params := search.DefaultParams()
	params.Query = strings.TrimSpace(input.Query)
	params.Country = input.Country
	params.Category = input.Category
	params.UserID = actor.ID()
	params.Offset = input.Offset
	if input.Limit > 0 {
		params.Limit = input.Limit
	}
	if input.Sort != "" {
		params.SortBy = input.Sort
	}

	loc := s.services.Calendar.Location()
	if params.From, err = parseDay(input.From, loc); err != nil {
		return nil, err
	}
	to, err := parseDay(input.To, loc)
	if err != nil {
		return nil, err
	}
	if !to.IsZero() {
		// Inclusive of the whole last day.
		params.To = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	result, err := s.services.Search.Search(ctx, params)
	if err != nil {
		return nil, err
	}
	return &SearchOutput{Body: result}, nil
}

func parseDay(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, domainerrors.Validationf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}
