// Package di provides dependency injection configuration for the calendar server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/calendararchive/calendar-server/internal/auth"
	"github.com/calendararchive/calendar-server/internal/config"
	"github.com/calendararchive/calendar-server/internal/di/providers"
	"github.com/calendararchive/calendar-server/internal/feed"
	"github.com/calendararchive/calendar-server/internal/logger"
	"github.com/calendararchive/calendar-server/internal/metrics"
	"github.com/calendararchive/calendar-server/internal/service"
	"github.com/calendararchive/calendar-server/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideAuthKey)
	do.Provide(injector, providers.ProvideValidator)

	// Database layer
	do.Provide(injector, providers.ProvideMetrics)
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideFeedHub)
	do.Provide(injector, providers.ProvideStore)

	// Search layer
	do.Provide(injector, providers.ProvideSearchIndex)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)

	// Business services
	do.Provide(injector, providers.ProvideAuthService)
	do.Provide(injector, providers.ProvideEventService)
	do.Provide(injector, providers.ProvideCalendarService)
	do.Provide(injector, providers.ProvideImportService)
	do.Provide(injector, providers.ProvideNotificationService)
	do.Provide(injector, providers.ProvideStatsService)
	do.Provide(injector, providers.ProvideBackupService)

	// Workers
	do.Provide(injector, providers.ProvideInbox)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and starts the server and workers.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[*validation.Validator](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*feed.Hub](injector)
	_ = do.MustInvoke[*metrics.Metrics](injector)
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.SearchIndexHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*auth.TokenService](injector)

	// Business services
	_ = do.MustInvoke[*service.AuthService](injector)
	_ = do.MustInvoke[*service.EventService](injector)
	_ = do.MustInvoke[*service.CalendarService](injector)
	_ = do.MustInvoke[*service.ImportService](injector)
	if _, err := do.Invoke[*providers.NotificationServiceHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*service.StatsService](injector)
	if _, err := do.Invoke[*providers.BackupServiceHandle](injector); err != nil {
		return err
	}

	// Workers
	if _, err := do.Invoke[*providers.InboxHandle](injector); err != nil {
		return err
	}

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	providers.TriggerSearchReindexIfNeeded(injector)

	return nil
}
