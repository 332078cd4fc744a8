package sqlite

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calendararchive/calendar-server/internal/domain"
	"github.com/calendararchive/calendar-server/internal/store"
)

type changeLog struct {
	changes []store.Change
}

func (c *changeLog) Emit(event any) {
	if ch, ok := event.(store.Change); ok {
		c.changes = append(c.changes, ch)
	}
}

func newTestStore(t *testing.T) (*Store, *changeLog) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	log := &changeLog{}
	s, err := Open(dbPath, logger, log)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, log
}

func TestOpen(t *testing.T) {
	s, _ := newTestStore(t)

	var journalMode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	require.NoError(t, s.Ping(context.Background()))
}

func TestEvents_Lifecycle(t *testing.T) {
	s, log := newTestStore(t)
	ctx := context.Background()
	p := store.Personal("usr-1")

	created, err := s.CreateEvent(ctx, p, store.Document{"title": "Dentist", "date": "2026-03-01"})
	require.NoError(t, err)
	assert.Regexp(t, `^pev-`, created.ID())
	assert.Equal(t, "usr-1", created[store.FieldUserID])

	got, err := s.GetEvent(ctx, p, created.ID())
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = s.GetEvent(ctx, store.Personal("usr-2"), created.ID())
	assert.ErrorIs(t, err, store.ErrNotFound)

	updated, err := s.ReplaceEvent(ctx, p, created.ID(), store.Document{"title": "Orthodontist", "isPersonal": false})
	require.NoError(t, err)
	assert.Equal(t, true, updated[store.FieldIsPersonal])
	assert.Equal(t, "Orthodontist", updated.String("title"))

	require.NoError(t, s.DeleteEvent(ctx, p, created.ID()))
	assert.ErrorIs(t, s.DeleteEvent(ctx, p, created.ID()), store.ErrNotFound)

	ops := make([]store.ChangeOp, 0, len(log.changes))
	for _, c := range log.changes {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []store.ChangeOp{store.ChangeCreated, store.ChangeUpdated, store.ChangeDeleted}, ops)
}

func TestEvents_ListAndPartitions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, p := range []store.Partition{store.Global(), store.Global(), store.Personal("usr-1")} {
		_, err := s.CreateEvent(ctx, p, store.Document{"title": "x"})
		require.NoError(t, err)
	}

	global, err := s.ListEvents(ctx, store.Global())
	require.NoError(t, err)
	assert.Len(t, global, 2)

	none, err := s.ListEvents(ctx, store.Personal("usr-9"))
	require.NoError(t, err)
	assert.Empty(t, none)

	parts, err := s.ListPartitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.Partition{store.Global(), store.Personal("usr-1")}, parts)
}

func TestUsers(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	u := &domain.User{
		ID: "usr-1", Email: "Ada@Example.com", DisplayName: "Ada",
		PasswordHash: "hash", Role: domain.RoleAdmin, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.ErrorIs(t, s.CreateUser(ctx, &domain.User{ID: "usr-2", Email: "ada@example.com", CreatedAt: now, UpdatedAt: now}), store.ErrAlreadyExists)

	got, err := s.GetUserByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, domain.RoleAdmin, got.Role)
	assert.True(t, got.CreatedAt.Equal(now))
	assert.True(t, got.LastLoginAt.IsZero())

	got.LastLoginAt = now.Add(time.Hour)
	got.DisplayName = "Ada L."
	require.NoError(t, s.UpdateUser(ctx, got))

	again, err := s.GetUser(ctx, "usr-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", again.DisplayName)
	assert.True(t, again.LastLoginAt.Equal(now.Add(time.Hour)))

	_, err = s.GetUser(ctx, "usr-404")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateUser(ctx, &domain.User{ID: "usr-404", Email: "x@example.com"}), store.ErrNotFound)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestNotifications(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, msg := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateNotification(ctx, &domain.Notification{
			ID: "ntf-" + msg, Message: msg, Audience: domain.AudienceUsers,
			CreatedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		}))
	}

	latest, err := s.ListNotifications(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "c", latest[0].Message)
	assert.Equal(t, domain.AudienceUsers, latest[0].Audience)

	n, err := s.DeleteNotificationsBefore(ctx, base.Add(36*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := s.ListNotifications(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
