package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calendararchive/calendar-server/internal/domain"
	domainerrors "github.com/calendararchive/calendar-server/internal/errors"
	"github.com/calendararchive/calendar-server/internal/store"
)

var (
	adminActor = &domain.Actor{UserID: "usr-admin", Email: "admin@example.com", Role: domain.RoleAdmin}
	alice      = &domain.Actor{UserID: "usr-alice", Email: "alice@example.com", Role: domain.RoleUser}
	bob        = &domain.Actor{UserID: "usr-bob", Email: "bob@example.com", Role: domain.RoleUser}
	guest      *domain.Actor
)

func setupStore(t *testing.T) *store.Badger {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "db"), nil, store.NewNoopEmitter())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// writeRecorder counts event writes and can fail selected creates.
type writeRecorder struct {
	store.Store
	failTitle string

	mu      sync.Mutex
	creates int
}

func (w *writeRecorder) CreateEvent(ctx context.Context, p store.Partition, doc store.Document) (store.Document, error) {
	w.mu.Lock()
	w.creates++
	w.mu.Unlock()
	if w.failTitle != "" && doc.String(store.FieldTitle) == w.failTitle {
		return nil, errors.New("disk full")
	}
	return w.Store.CreateEvent(ctx, p, doc)
}

func (w *writeRecorder) Creates() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.creates
}

func requireCode(t *testing.T, err error, code domainerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, domainerrors.CodeOf(err), "error: %v", err)
}

func listTitles(t *testing.T, st store.Store, p store.Partition) []string {
	t.Helper()
	docs, err := st.ListEvents(context.Background(), p)
	require.NoError(t, err)
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.String(store.FieldTitle))
	}
	return out
}
