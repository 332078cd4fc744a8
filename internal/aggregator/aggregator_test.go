package aggregator_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calendararchive/calendar-server/internal/aggregator"
	"github.com/calendararchive/calendar-server/internal/domain"
	"github.com/calendararchive/calendar-server/internal/feed"
	"github.com/calendararchive/calendar-server/internal/store"
)

type memBackend struct {
	mu   sync.Mutex
	docs map[string][]store.Document
	errs map[string]error
	hub  *feed.Hub
}

func newBackend() *memBackend {
	b := &memBackend{
		docs: make(map[string][]store.Document),
		errs: make(map[string]error),
		hub:  feed.NewHub(nil),
	}
	b.hub.Bind(b)
	return b
}

func (b *memBackend) ListEvents(_ context.Context, p store.Partition) ([]store.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.errs[p.Key()]; err != nil {
		return nil, err
	}
	return append([]store.Document(nil), b.docs[p.Key()]...), nil
}

func (b *memBackend) ListPartitions(_ context.Context) ([]store.Partition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []store.Partition
	for key := range b.docs {
		p, err := store.ParsePartition(key)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// write replaces a partition's content and announces it like a store would.
func (b *memBackend) write(p store.Partition, docs ...store.Document) {
	b.mu.Lock()
	b.docs[p.Key()] = docs
	delete(b.errs, p.Key())
	b.mu.Unlock()
	b.hub.Emit(store.Change{Partition: p, Op: store.ChangeUpdated})
}

func (b *memBackend) breakPartition(p store.Partition, err error) {
	b.mu.Lock()
	b.errs[p.Key()] = err
	b.mu.Unlock()
	b.hub.Emit(store.Change{Partition: p, Op: store.ChangeUpdated})
}

func titlesOf(events []domain.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Title)
	}
	sort.Strings(out)
	return out
}

func waitFor(t *testing.T, agg *aggregator.Aggregator, cond func([]domain.Event, aggregator.Status) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		return cond(agg.Events(), agg.Status())
	}, 2*time.Second, 5*time.Millisecond)
}

func start(t *testing.T, b *memBackend, userID string) *aggregator.Aggregator {
	t.Helper()
	agg := aggregator.New(b.hub, aggregator.Options{UserID: userID, Location: time.UTC})
	require.NoError(t, agg.Start(context.Background()))
	t.Cleanup(agg.Close)
	return agg
}

func TestAggregator_MergesBothSources(t *testing.T) {
	b := newBackend()
	b.write(store.Global(), store.Document{"id": "gev-1", "title": "New Year"})
	b.write(store.Personal("usr-1"), store.Document{"id": "pev-1", "title": "Dentist"})

	agg := start(t, b, "usr-1")

	waitFor(t, agg, func(events []domain.Event, st aggregator.Status) bool {
		return !st.Loading && len(events) == 2
	})
	assert.Equal(t, []string{"Dentist", "New Year"}, titlesOf(agg.Events()))

	for _, ev := range agg.Events() {
		if ev.ID == "pev-1" {
			assert.True(t, ev.IsPersonal)
			assert.Equal(t, "usr-1", ev.UserID)
			assert.Equal(t, domain.DefaultPersonalColor, ev.Color)
		} else {
			assert.False(t, ev.IsPersonal)
		}
	}
}

func TestAggregator_GuestHasNoPersonalSubscription(t *testing.T) {
	b := newBackend()
	b.write(store.Global(), store.Document{"title": "Holiday"})

	agg := start(t, b, "")

	waitFor(t, agg, func(events []domain.Event, st aggregator.Status) bool {
		return !st.Loading && len(events) == 1
	})
	assert.Equal(t, 1, b.hub.SubscriberCount(store.Global()))
}

func TestAggregator_GlobalUpdateKeepsPersonal(t *testing.T) {
	b := newBackend()
	b.write(store.Personal("usr-1"), store.Document{"title": "Mine"})
	agg := start(t, b, "usr-1")

	waitFor(t, agg, func(events []domain.Event, st aggregator.Status) bool { return !st.Loading })

	b.write(store.Global(), store.Document{"title": "A"}, store.Document{"title": "B"})
	waitFor(t, agg, func(events []domain.Event, _ aggregator.Status) bool { return len(events) == 3 })

	b.write(store.Global(), store.Document{"title": "C"})
	waitFor(t, agg, func(events []domain.Event, _ aggregator.Status) bool { return len(events) == 2 })
	assert.Equal(t, []string{"C", "Mine"}, titlesOf(agg.Events()))
}

func TestAggregator_SetUserSwapsPersonalPartition(t *testing.T) {
	b := newBackend()
	b.write(store.Global(), store.Document{"title": "Shared"})
	b.write(store.Personal("usr-1"), store.Document{"title": "One"})
	b.write(store.Personal("usr-2"), store.Document{"title": "Two"})

	agg := start(t, b, "usr-1")
	waitFor(t, agg, func(events []domain.Event, st aggregator.Status) bool {
		return !st.Loading && len(events) == 2
	})

	require.NoError(t, agg.SetUser(context.Background(), "usr-2"))
	assert.Equal(t, 0, b.hub.SubscriberCount(store.Personal("usr-1")))
	assert.Equal(t, "usr-2", agg.Status().UserID)

	waitFor(t, agg, func(events []domain.Event, st aggregator.Status) bool {
		return !st.Loading && len(events) == 2
	})
	assert.Equal(t, []string{"Shared", "Two"}, titlesOf(agg.Events()))

	// Writes to the previous user's partition no longer reach this view.
	b.write(store.Personal("usr-1"), store.Document{"title": "One"}, store.Document{"title": "Another"})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"Shared", "Two"}, titlesOf(agg.Events()))
}

func TestAggregator_SignOutClearsPersonal(t *testing.T) {
	b := newBackend()
	b.write(store.Global(), store.Document{"title": "Shared"})
	b.write(store.Personal("usr-1"), store.Document{"title": "Mine"})

	agg := start(t, b, "usr-1")
	waitFor(t, agg, func(events []domain.Event, _ aggregator.Status) bool { return len(events) == 2 })

	require.NoError(t, agg.SetUser(context.Background(), ""))

	events := agg.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "Shared", events[0].Title)
	assert.False(t, agg.Status().Loading)
}

func TestAggregator_ErrorKeepsLastKnownGood(t *testing.T) {
	b := newBackend()
	b.write(store.Global(), store.Document{"title": "Shared"})
	b.write(store.Personal("usr-1"), store.Document{"title": "Mine"})

	agg := start(t, b, "usr-1")
	waitFor(t, agg, func(events []domain.Event, st aggregator.Status) bool {
		return !st.Loading && len(events) == 2
	})

	b.breakPartition(store.Global(), errors.New("quota exceeded"))
	waitFor(t, agg, func(_ []domain.Event, st aggregator.Status) bool { return st.GlobalErr != nil })

	assert.Len(t, agg.Events(), 2)
	assert.NoError(t, agg.Status().PersonalErr)

	// The other source keeps flowing.
	b.write(store.Personal("usr-1"), store.Document{"title": "Mine"}, store.Document{"title": "More"})
	waitFor(t, agg, func(events []domain.Event, _ aggregator.Status) bool { return len(events) == 3 })

	// Recovery clears the error.
	b.write(store.Global(), store.Document{"title": "Shared"})
	waitFor(t, agg, func(_ []domain.Event, st aggregator.Status) bool { return st.GlobalErr == nil })
}

func TestAggregator_InitialErrorEndsLoading(t *testing.T) {
	b := newBackend()
	b.errs[store.Global().Key()] = errors.New("permission denied")

	agg := start(t, b, "")
	waitFor(t, agg, func(events []domain.Event, st aggregator.Status) bool {
		return !st.Loading && st.GlobalErr != nil && len(events) == 0
	})
}

func TestAggregator_UpdatesSignal(t *testing.T) {
	b := newBackend()
	agg := start(t, b, "")

	select {
	case <-agg.Updates():
	case <-time.After(2 * time.Second):
		t.Fatal("no update after initial snapshot")
	}
}

func TestAggregator_CloseTearsDown(t *testing.T) {
	b := newBackend()
	agg := aggregator.New(b.hub, aggregator.Options{UserID: "usr-1"})
	require.NoError(t, agg.Start(context.Background()))

	agg.Close()
	agg.Close()

	<-agg.Done()
	assert.Equal(t, 0, b.hub.SubscriberCount(store.Global()))
	assert.Equal(t, 0, b.hub.SubscriberCount(store.Personal("usr-1")))
	assert.ErrorIs(t, agg.SetUser(context.Background(), "usr-2"), aggregator.ErrClosed)
	assert.Error(t, agg.Start(context.Background()))
}

func TestAggregator_CloseWithoutStart(t *testing.T) {
	agg := aggregator.New(newBackend().hub, aggregator.Options{})
	agg.Close()
	<-agg.Done()
}

func TestAggregator_StartFailsWithoutBoundSource(t *testing.T) {
	agg := aggregator.New(feed.NewHub(nil), aggregator.Options{})
	assert.ErrorIs(t, agg.Start(context.Background()), feed.ErrNotBound)
	agg.Close()
}

func TestLoad(t *testing.T) {
	b := newBackend()
	b.write(store.Global(), store.Document{"title": "Shared"})
	b.write(store.Personal("usr-1"), store.Document{"title": "Mine"})
	b.write(store.Personal("usr-2"), store.Document{"title": "Theirs"})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	guest, err := aggregator.Load(context.Background(), b, "", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"Shared"}, titlesOf(guest.Events()))

	mine, err := aggregator.Load(context.Background(), b, "usr-1", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mine", "Shared"}, titlesOf(mine.Events()))

	all, err := aggregator.LoadAll(context.Background(), b, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mine", "Shared", "Theirs"}, titlesOf(all.Events()))
}

func TestLoad_PropagatesErrors(t *testing.T) {
	b := newBackend()
	b.errs[store.Global().Key()] = errors.New("down")

	_, err := aggregator.Load(context.Background(), b, "usr-1", time.Now())
	assert.ErrorContains(t, err, "down")
}
