package api

import (
	"context"

	"github.com/calendararchive/calendar-server/internal/backup"
	"github.com/calendararchive/calendar-server/internal/search"
	"github.com/calendararchive/calendar-server/internal/service"
)

// Searcher is the full-text index behind /api/v1/search.
type Searcher interface {
	Search(ctx context.Context, params search.Params) (*search.Result, error)
	DocumentCount() (uint64, error)
}

// Services groups the use cases the API exposes. Search and Backup are
// optional; when nil their endpoints answer 503.
type Services struct {
	Auth          *service.AuthService
	Events        *service.EventService
	Calendar      *service.CalendarService
	Import        *service.ImportService
	Notifications *service.NotificationService
	Stats         *service.StatsService
	Search        Searcher
	Backup        *backup.Service
}
