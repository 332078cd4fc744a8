package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calendararchive/calendar-server/internal/domain"
	"github.com/calendararchive/calendar-server/internal/store"
)

type testEntity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func setupTestStore(t *testing.T) (*store.Badger, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "store-test-*")
	require.NoError(t, err)

	s, err := store.New(filepath.Join(tmpDir, "test.db"), nil, store.NewNoopEmitter())
	require.NoError(t, err)

	cleanup := func() {
		_ = s.Close()
		_ = os.RemoveAll(tmpDir)
	}
	return s, cleanup
}

func TestEntity_CreateAndGet(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	entity := store.NewEntity[testEntity](s, "test:")
	in := &testEntity{ID: "1", Name: "Ada", Email: "ada@example.com"}

	require.NoError(t, entity.Create(context.Background(), "1", in))

	got, err := entity.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestEntity_Create_AlreadyExists(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	entity := store.NewEntity[testEntity](s, "test:")
	in := &testEntity{ID: "1", Name: "Ada"}

	require.NoError(t, entity.Create(context.Background(), "1", in))
	err := entity.Create(context.Background(), "1", in)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestEntity_Get_NotFound(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	entity := store.NewEntity[testEntity](s, "test:")
	_, err := entity.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEntity_Update_MovesIndex(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	entity := store.NewEntity[testEntity](s, "test:").
		WithIndex("email", func(e *testEntity) []string { return []string{e.Email} })

	require.NoError(t, entity.Create(ctx, "1", &testEntity{ID: "1", Email: "old@example.com"}))
	require.NoError(t, entity.Update(ctx, "1", &testEntity{ID: "1", Email: "new@example.com"}))

	_, err := entity.GetByIndex(ctx, "email", "old@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := entity.GetByIndex(ctx, "email", "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "1", got.ID)
}

func TestEntity_Update_NotFound(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	entity := store.NewEntity[testEntity](s, "test:")
	err := entity.Update(context.Background(), "nope", &testEntity{ID: "nope"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEntity_IndexConflict(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	entity := store.NewEntity[testEntity](s, "test:").
		WithIndex("email", func(e *testEntity) []string { return []string{e.Email} })

	require.NoError(t, entity.Create(ctx, "1", &testEntity{ID: "1", Email: "same@example.com"}))
	err := entity.Create(ctx, "2", &testEntity{ID: "2", Email: "same@example.com"})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	// The failed create must not leave a record behind.
	_, err = entity.Get(ctx, "2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEntity_Delete(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	entity := store.NewEntity[testEntity](s, "test:").
		WithIndex("email", func(e *testEntity) []string { return []string{e.Email} })

	require.NoError(t, entity.Create(ctx, "1", &testEntity{ID: "1", Email: "a@example.com"}))
	require.NoError(t, entity.Delete(ctx, "1"))
	require.NoError(t, entity.Delete(ctx, "1"), "deleting twice is not an error")

	_, err := entity.GetByIndex(ctx, "email", "a@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The index value is free again.
	require.NoError(t, entity.Create(ctx, "2", &testEntity{ID: "2", Email: "a@example.com"}))
}

func TestEntity_List_SkipsIndexEntries(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	entity := store.NewEntity[testEntity](s, "test:").
		WithIndex("email", func(e *testEntity) []string { return []string{e.Email} })

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, entity.Create(ctx, id, &testEntity{ID: id, Email: id + "@example.com"}))
	}

	var ids []string
	for e, err := range entity.List(ctx) {
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)
}

func TestEntity_List_EarlyTermination(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	entity := store.NewEntity[testEntity](s, "test:")
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, entity.Create(ctx, id, &testEntity{ID: id}))
	}

	count := 0
	for _, err := range entity.List(ctx) {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestEntity_ContextCanceled(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entity := store.NewEntity[testEntity](s, "test:")
	assert.ErrorIs(t, entity.Create(ctx, "1", &testEntity{ID: "1"}), context.Canceled)

	_, err := entity.Get(ctx, "1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUsers_EmailLookupIsCaseInsensitive(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()
	u := &domain.User{ID: "usr-1", Email: "Ada@Example.com", Role: domain.RoleUser, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateUser(ctx, u))

	got, err := s.GetUserByEmail(ctx, "  ada@EXAMPLE.com ")
	require.NoError(t, err)
	assert.Equal(t, "usr-1", got.ID)

	dup := &domain.User{ID: "usr-2", Email: "ADA@example.com"}
	assert.ErrorIs(t, s.CreateUser(ctx, dup), store.ErrAlreadyExists)
}
