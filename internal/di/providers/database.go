package providers

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/calendararchive/calendar-server/internal/config"
	"github.com/calendararchive/calendar-server/internal/feed"
	"github.com/calendararchive/calendar-server/internal/logger"
	"github.com/calendararchive/calendar-server/internal/metrics"
	"github.com/calendararchive/calendar-server/internal/sse"
	"github.com/calendararchive/calendar-server/internal/store"
	"github.com/calendararchive/calendar-server/internal/store/sqlite"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// ProvideFeedHub provides the change feed that turns store writes into
// partition snapshots.
func ProvideFeedHub(i do.Injector) (*feed.Hub, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return feed.NewHub(log.Logger), nil
}

// ProvideMetrics provides the Prometheus collectors.
func ProvideMetrics(i do.Injector) (*metrics.Metrics, error) {
	return metrics.New(), nil
}

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the configured backend and binds the change feed to it.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	hub := do.MustInvoke[*feed.Hub](i)
	emitter := do.MustInvoke[*metrics.Metrics](i).ObserveChanges(hub)

	var (
		st     store.Store
		dbPath string
		err    error
	)
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		dbPath = filepath.Join(cfg.Storage.DataPath, "calendar.db")
		st, err = sqlite.Open(dbPath, log.Logger, emitter)
	case config.BackendBadger:
		dbPath = filepath.Join(cfg.Storage.DataPath, "db")
		st, err = store.New(dbPath, log.Logger, emitter)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, err
	}

	hub.Bind(st)

	log.Info("Database initialized", "backend", cfg.Storage.Backend, "path", dbPath)

	return &StoreHandle{Store: st}, nil
}
