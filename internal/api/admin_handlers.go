package api

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/calendararchive/calendar-server/internal/domain"
	"github.com/calendararchive/calendar-server/internal/service"
)

func (s *Server) registerAdminRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:  "importEvents",
		Method:       http.MethodPost,
		Path:         PathImport,
		Summary:      "Import global events",
		Description:  "Imports a CSV (title,date,description,category,country) or ICS body into the global calendar. Rows without a usable date are skipped and reported.",
		Tags:         []string{"Admin"},
		Security:     []map[string][]string{{"bearer": {}}},
		MaxBodyBytes: service.MaxImportBytes,
	}, s.handleImportEvents)

	huma.Register(s.api, huma.Operation{
		OperationID: "getStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/stats",
		Summary:     "Dashboard statistics",
		Description: "Counts events across every calendar, plus users",
		Tags:        []string{"Admin"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetStats)

	huma.Register(s.api, huma.Operation{
		OperationID:   "broadcastNotification",
		Method:        http.MethodPost,
		Path:          "/api/v1/admin/notifications",
		Summary:       "Broadcast notification",
		Description:   "Stores a notification and pushes it to connected clients",
		Tags:          []string{"Admin"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusCreated,
	}, s.handleBroadcast)
}

// ImportInput carries a raw CSV or ICS payload.
type ImportInput struct {
	Authorization string `header:"Authorization"`
	ContentType   string `header:"Content-Type"`
	Filename      string `query:"filename" maxLength:"255" doc:"Original file name, used for format detection and reports"`
	Format        string `query:"format" enum:"csv,ics" doc:"Payload format; detected from Content-Type or filename when omitted"`
	RawBody       []byte
}

// ImportOutput wraps the import report for Huma.
type ImportOutput struct {
	Body *service.ImportReport
}

// AdminInput carries the bearer token.
type AdminInput struct {
	Authorization string `header:"Authorization"`
}

// StatsOutput wraps the dashboard figures for Huma.
type StatsOutput struct {
	Body *service.Stats
}

// BroadcastInput wraps a broadcast for Huma.
type BroadcastInput struct {
	Authorization string `header:"Authorization"`
	Body          service.BroadcastRequest
}

// NotificationOutput wraps a notification for Huma.
type NotificationOutput struct {
	Body *domain.Notification
}

func (s *Server) handleImportEvents(ctx context.Context, input *ImportInput) (*ImportOutput, error) {
	actor, err := s.actor(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	format := service.ImportFormat(strings.ToLower(input.Format))
	if format == "" {
		format, err = service.DetectFormat(input.Filename, input.ContentType)
		if err != nil {
			return nil, err
		}
	}

	report, err := s.services.Import.Import(ctx, actor, service.ImportRequest{
		Data:   bytes.NewReader(input.RawBody),
		Format: format,
		Source: input.Filename,
	})
	if err != nil {
		return nil, err
	}
	return &ImportOutput{Body: report}, nil
}

func (s *Server) handleGetStats(ctx context.Context, input *AdminInput) (*StatsOutput, error) {
	actor, err := s.actor(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	stats, err := s.services.Stats.Get(ctx, actor)
	if err != nil {
		return nil, err
	}
	return &StatsOutput{Body: stats}, nil
}

func (s *Server) handleBroadcast(ctx context.Context, input *BroadcastInput) (*NotificationOutput, error) {
	actor, err := s.actor(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	n, err := s.services.Notifications.Broadcast(ctx, actor, input.Body)
	if err != nil {
		return nil, err
	}
	return &NotificationOutput{Body: n}, nil
}
