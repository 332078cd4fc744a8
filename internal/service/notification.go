package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/calendararchive/calendar-server/internal/domain"
	domainerrors "github.com/calendararchive/calendar-server/internal/errors"
	"github.com/calendararchive/calendar-server/internal/id"
	"github.com/calendararchive/calendar-server/internal/sse"
	"github.com/calendararchive/calendar-server/internal/store"
	"github.com/calendararchive/calendar-server/internal/validation"
)

// Notification list bounds.
const (
	DefaultNotificationLimit = 20
	MaxNotificationLimit     = 100
)

// NotificationService persists admin broadcasts, pushes them to live
// streams and purges old ones on a schedule.
type NotificationService struct {
	store      store.Store
	sseManager *sse.Manager
	validator  *validation.Validator
	logger     *slog.Logger
	now        func() time.Time
	cron       *cron.Cron
	retention  time.Duration
}

// NewNotificationService creates a notification service. retention <= 0
// disables purging.
func NewNotificationService(st store.Store, sseManager *sse.Manager, v *validation.Validator, retention time.Duration, logger *slog.Logger) *NotificationService {
	return &NotificationService{
		store:      st,
		sseManager: sseManager,
		validator:  v,
		logger:     orDiscard(logger),
		now:        time.Now,
		retention:  retention,
	}
}

// BroadcastRequest is an admin notification.
type BroadcastRequest struct {
	Message  string          `json:"message" validate:"notblank,max=1000"`
	Audience domain.Audience `json:"audience,omitempty" validate:"omitempty,oneof=all users"`
}

// Broadcast stores a notification and sends it to every connected client
// in its audience. Admin only.
func (s *NotificationService) Broadcast(ctx context.Context, actor *domain.Actor, req BroadcastRequest) (*domain.Notification, error) {
	if err := requireAdmin(actor, "broadcast notifications"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	notifID, err := id.Generate(id.PrefixNotification)
	if err != nil {
		return nil, fmt.Errorf("generate notification ID: %w", err)
	}
	audience := req.Audience
	if audience == "" {
		audience = domain.AudienceAll
	}

	n := &domain.Notification{
		CreatedAt: s.now(),
		ID:        notifID,
		Message:   strings.TrimSpace(req.Message),
		Audience:  audience,
		CreatedBy: actor.ID(),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "save notification")
	}

	if s.sseManager != nil {
		s.sseManager.Emit(sse.NewNotificationEvent(n))
	}
	s.logger.Info("notification broadcast",
		"notification_id", n.ID,
		"audience", n.Audience,
		"actor", actor.ID())
	return n, nil
}

// List returns the newest notifications visible to actor. Guests do not
// see notifications addressed to signed-in users.
func (s *NotificationService) List(ctx context.Context, actor *domain.Actor, limit int) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	limit = min(limit, MaxNotificationLimit)

	all, err := s.store.ListNotifications(ctx, 0)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "list notifications")
	}

	out := make([]*domain.Notification, 0, min(limit, len(all)))
	for _, n := range all {
		if !n.Reaches(actor.ID()) {
			continue
		}
		out = append(out, n)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Purge deletes notifications created before now minus retention.
func (s *NotificationService) Purge(ctx context.Context) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.retention)
	n, err := s.store.DeleteNotificationsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	if n > 0 {
		s.logger.Info("purged notifications", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// StartPurgeSchedule runs Purge on a standard five-field cron schedule.
// An empty schedule or zero retention leaves purging off.
func (s *NotificationService) StartPurgeSchedule(schedule string, loc *time.Location) error {
	if schedule == "" || s.retention <= 0 {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(schedule, func() {
		if _, err := s.Purge(context.Background()); err != nil {
			s.logger.Error("notification purge failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("notification purge scheduled", "schedule", schedule, "retention", s.retention)
	return nil
}

// Shutdown stops the purge schedule and waits for a running purge.
func (s *NotificationService) Shutdown(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
