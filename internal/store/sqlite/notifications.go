package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/calendararchive/calendar-server/internal/domain"
	"github.com/calendararchive/calendar-server/internal/store"
)

// CreateNotification inserts a broadcast notification.
func (s *Store) CreateNotification(ctx context.Context, n *domain.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, created_at, message, audience, created_by)
		VALUES (?, ?, ?, ?, ?)`,
		n.ID, formatTime(n.CreatedAt), n.Message, string(n.Audience), n.CreatedBy,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// ListNotifications returns notifications newest first. limit <= 0 means all.
func (s *Store) ListNotifications(ctx context.Context, limit int) ([]*domain.Notification, error) {
	query := `SELECT id, created_at, message, audience, created_by
		FROM notifications ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		var (
			n         domain.Notification
			createdAt string
			audience  string
		)
		if err := rows.Scan(&n.ID, &createdAt, &n.Message, &audience, &n.CreatedBy); err != nil {
			return nil, err
		}
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		n.Audience = domain.Audience(audience)
		out = append(out, &n)
	}
	return out, rows.Err()
}

// DeleteNotificationsBefore removes notifications created before cutoff.
func (s *Store) DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
