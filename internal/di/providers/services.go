package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/calendararchive/calendar-server/internal/auth"
	"github.com/calendararchive/calendar-server/internal/backup"
	"github.com/calendararchive/calendar-server/internal/config"
	"github.com/calendararchive/calendar-server/internal/logger"
	"github.com/calendararchive/calendar-server/internal/metrics"
	"github.com/calendararchive/calendar-server/internal/service"
	"github.com/calendararchive/calendar-server/internal/validation"
)

// ProvideValidator provides the shared request validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideAuthService provides the authentication service.
func ProvideAuthService(i do.Injector) (*service.AuthService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokenService := do.MustInvoke[*auth.TokenService](i)
	v := do.MustInvoke[*validation.Validator](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAuthService(storeHandle.Store, tokenService, v, sseHandle.Manager, cfg.Auth.AdminEmails, log.Logger), nil
}

// ProvideEventService provides the event mutation service.
func ProvideEventService(i do.Injector) (*service.EventService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	v := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewEventService(storeHandle.Store, v, cfg.Events.Location, log.Logger), nil
}

// ProvideCalendarService provides the read service behind the event endpoints.
func ProvideCalendarService(i do.Injector) (*service.CalendarService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	return service.NewCalendarService(storeHandle.Store, service.CalendarOptions{
		Location:      cfg.Events.Location,
		UpcomingLimit: cfg.Events.UpcomingLimit,
		DayCellCap:    cfg.Events.DayCellCap,
		WeekStart:     cfg.Events.WeekStart,
	}), nil
}

// ProvideImportService provides the bulk import service.
func ProvideImportService(i do.Injector) (*service.ImportService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	m := do.MustInvoke[*metrics.Metrics](i)

	svc := service.NewImportService(storeHandle.Store, sseHandle.Manager, cfg.Events.Location, cfg.Import.Concurrency, log.Logger)
	svc.SetReportHook(func(r *service.ImportReport) {
		m.ObserveImport(r.Imported, len(r.Skipped), len(r.Failed))
	})
	return svc, nil
}

// NotificationServiceHandle stops the purge schedule on shutdown.
type NotificationServiceHandle struct {
	*service.NotificationService
}

// Shutdown implements do.Shutdownable.
func (h *NotificationServiceHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.NotificationService.Shutdown(ctx)
}

// ProvideNotificationService provides the broadcast service and starts its
// purge schedule.
func ProvideNotificationService(i do.Injector) (*NotificationServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	v := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	svc := service.NewNotificationService(storeHandle.Store, sseHandle.Manager, v, cfg.Notifications.Retention, log.Logger)
	if cfg.Notifications.PurgeSchedule != "" {
		if err := svc.StartPurgeSchedule(cfg.Notifications.PurgeSchedule, cfg.Events.Location); err != nil {
			return nil, err
		}
		log.Info("Notification purge scheduled",
			"schedule", cfg.Notifications.PurgeSchedule,
			"retention", cfg.Notifications.Retention,
		)
	}

	return &NotificationServiceHandle{NotificationService: svc}, nil
}

// ProvideStatsService provides the admin statistics service.
func ProvideStatsService(i do.Injector) (*service.StatsService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewStatsService(storeHandle.Store, cfg.Events.Location, log.Logger), nil
}

// BackupServiceHandle stops the backup schedule on shutdown.
type BackupServiceHandle struct {
	*backup.Service
}

// Shutdown implements do.Shutdownable.
func (h *BackupServiceHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Service.Shutdown(ctx)
}

// ProvideBackupService provides the backup service and starts its schedule.
func ProvideBackupService(i do.Injector) (*BackupServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	svc := backup.NewService(storeHandle.Store, cfg.Backup.Dir, Version, log.Logger)
	svc.SetCreateHook(do.MustInvoke[*metrics.Metrics](i).ObserveBackup)
	if cfg.Backup.S3Bucket != "" {
		uploader, err := backup.NewS3Uploader(context.Background(), backup.S3Config{
			Bucket:   cfg.Backup.S3Bucket,
			Region:   cfg.Backup.S3Region,
			Endpoint: cfg.Backup.S3Endpoint,
			Prefix:   cfg.Backup.S3Prefix,
		})
		if err != nil {
			return nil, err
		}
		svc.SetUploader(uploader)
		log.Info("Backups copied to S3", "bucket", cfg.Backup.S3Bucket, "prefix", cfg.Backup.S3Prefix)
	}
	if cfg.Backup.Schedule != "" {
		if err := svc.StartSchedule(cfg.Backup.Schedule, cfg.Backup.Keep, cfg.Events.Location); err != nil {
			return nil, err
		}
		log.Info("Backups scheduled",
			"schedule", cfg.Backup.Schedule,
			"dir", cfg.Backup.Dir,
			"keep", cfg.Backup.Keep,
		)
	}

	return &BackupServiceHandle{Service: svc}, nil
}
