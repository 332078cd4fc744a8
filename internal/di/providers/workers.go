package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/calendararchive/calendar-server/internal/config"
	"github.com/calendararchive/calendar-server/internal/logger"
	"github.com/calendararchive/calendar-server/internal/service"
	"github.com/calendararchive/calendar-server/internal/watcher"
)

// InboxHandle wraps the import inbox with shutdown capability. Inbox is nil
// when no inbox directory is configured.
type InboxHandle struct {
	*watcher.Inbox
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *InboxHandle) Shutdown() error {
	if h.Inbox == nil {
		return nil
	}
	h.cancel()
	return h.Inbox.Stop()
}

// ProvideInbox starts the import inbox watcher. Files dropped into the
// directory are imported as the system actor.
func ProvideInbox(i do.Injector) (*InboxHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Import.InboxDir == "" {
		log.Info("Import inbox disabled")
		return &InboxHandle{}, nil
	}

	importService := do.MustInvoke[*service.ImportService](i)
	actor := service.SystemActor(cfg.Import.SystemEmail)

	inbox, err := watcher.NewInbox(cfg.Import.InboxDir, importService, actor, log.Logger, watcher.Options{IgnoreHidden: true})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := inbox.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("Import inbox stopped", "error", err)
		}
	}()

	log.Info("Import inbox started", "dir", cfg.Import.InboxDir, "actor", actor.Email)

	return &InboxHandle{Inbox: inbox, cancel: cancel}, nil
}
