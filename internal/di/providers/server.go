package providers

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"github.com/calendararchive/calendar-server/internal/api"
	"github.com/calendararchive/calendar-server/internal/config"
	"github.com/calendararchive/calendar-server/internal/feed"
	"github.com/calendararchive/calendar-server/internal/logger"
	"github.com/calendararchive/calendar-server/internal/metrics"
	"github.com/calendararchive/calendar-server/internal/service"
	"github.com/calendararchive/calendar-server/internal/sse"
	"github.com/calendararchive/calendar-server/internal/ws"
)

// Version is reported in the OpenAPI document. Set at build time with
// -ldflags "-X .../providers.Version=...".
var Version = "dev"

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	api           *api.Server
	shutdownAfter time.Duration
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), cmp.Or(h.shutdownAfter, shutdownTimeout))
	defer cancel()
	err := h.Server.Shutdown(ctx)
	h.api.Close()
	return err
}

// ProvideHTTPServer builds the API router and starts serving.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	hub := do.MustInvoke[*feed.Hub](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)

	authService := do.MustInvoke[*service.AuthService](i)
	notificationHandle := do.MustInvoke[*NotificationServiceHandle](i)
	backupHandle := do.MustInvoke[*BackupServiceHandle](i)

	services := &api.Services{
		Auth:          authService,
		Events:        do.MustInvoke[*service.EventService](i),
		Calendar:      do.MustInvoke[*service.CalendarService](i),
		Import:        do.MustInvoke[*service.ImportService](i),
		Notifications: notificationHandle.NotificationService,
		Stats:         do.MustInvoke[*service.StatsService](i),
		Search:        indexHandle.SearchIndex,
		Backup:        backupHandle.Service,
	}

	streams := api.Streams{
		SSE: sse.NewHandler(sseHandle.Manager, hub, authService, cfg.Events.Location, log.Logger),
		WS:  ws.NewHandler(hub, authService, cfg.Events.Location, cfg.Server.CORSOrigins, log.Logger),
	}

	handler := api.NewServer(storeHandle.Store, services, sseHandle.Manager, streams, api.Options{
		Version:     Version,
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     do.MustInvoke[*metrics.Metrics](i),
	}, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, api: handler, shutdownAfter: cfg.Server.ShutdownTimeout}, nil
}
