// Package feed turns store writes into live, full-snapshot subscriptions.
//
// A Hub is installed as the store's EventEmitter. Every Change marks the
// subscriptions on the affected partition dirty; each subscription's worker
// then re-reads the whole partition and delivers the result as a Snapshot.
// Bursts of writes collapse into a single re-read, and a consumer that
// falls behind only ever sees the latest snapshot.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/calendararchive/calendar-server/internal/id"
	"github.com/calendararchive/calendar-server/internal/store"
)

// ErrNotBound is returned by Subscribe before a Reader is bound.
var ErrNotBound = errors.New("feed: no reader bound")

// Reader lists the records of one partition.
type Reader interface {
	ListEvents(ctx context.Context, p store.Partition) ([]store.Document, error)
}

// Snapshot is the complete content of a partition at one point in time.
// When Err is set, Records is nil and the consumer keeps its previous data.
type Snapshot struct {
	At        time.Time
	Err       error
	Partition store.Partition
	Records   []store.Document
}

// Hub fans store changes out to partition subscriptions.
type Hub struct {
	logger *slog.Logger
	reader Reader
	subs   map[string]map[*Subscription]struct{}
	mu     sync.RWMutex
}

// NewHub creates a hub with no reader. Call Bind before Subscribe.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		logger: logger,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Bind sets the reader used to build snapshots. The hub is usually created
// before the store it listens to, so binding happens afterwards.
func (h *Hub) Bind(r Reader) {
	h.mu.Lock()
	h.reader = r
	h.mu.Unlock()
}

// Emit implements store.EventEmitter. Anything other than a store.Change
// is ignored.
func (h *Hub) Emit(event any) {
	change, ok := event.(store.Change)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[change.Partition.Key()] {
		sub.markDirty()
	}
}

// Subscribe starts a live query on p. The first snapshot is delivered as
// soon as the partition has been read. The subscription ends when ctx is
// done or Close is called; Snapshots is closed afterwards.
func (h *Hub) Subscribe(ctx context.Context, p store.Partition) (*Subscription, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	reader := h.reader
	if reader == nil {
		h.mu.Unlock()
		return nil, ErrNotBound
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		ID:        id.MustGenerate(id.PrefixSubscription),
		partition: p,
		hub:       h,
		reader:    reader,
		dirty:     make(chan struct{}, 1),
		out:       make(chan Snapshot, 1),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
	if h.subs[p.Key()] == nil {
		h.subs[p.Key()] = make(map[*Subscription]struct{})
	}
	h.subs[p.Key()][sub] = struct{}{}
	h.mu.Unlock()

	sub.markDirty()
	go sub.run(subCtx)

	h.logger.Debug("feed subscription opened", "subscription_id", sub.ID, "partition", p.Key())
	return sub, nil
}

// SubscriberCount returns the number of open subscriptions on p.
func (h *Hub) SubscriberCount(p store.Partition) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[p.Key()])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := sub.partition.Key()
	delete(h.subs[key], sub)
	if len(h.subs[key]) == 0 {
		delete(h.subs, key)
	}
}

// Subscription is one live query on a partition.
type Subscription struct {
	reader    Reader
	hub       *Hub
	dirty     chan struct{}
	out       chan Snapshot
	done      chan struct{}
	cancel    context.CancelFunc
	ID        string
	partition store.Partition
	closeOnce sync.Once
}

// Partition returns the partition this subscription watches.
func (s *Subscription) Partition() store.Partition {
	return s.partition
}

// Snapshots delivers full snapshots. It is closed when the subscription ends.
func (s *Subscription) Snapshots() <-chan Snapshot {
	return s.out
}

// Close ends the subscription and waits for its worker to exit.
func (s *Subscription) Close() {
	s.closeOnce.Do(s.cancel)
	<-s.done
}

func (s *Subscription) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)
	defer s.hub.remove(s)

	for {
		select {
		case <-ctx.Done():
			s.hub.logger.Debug("feed subscription closed", "subscription_id", s.ID)
			return
		case <-s.dirty:
		}

		records, err := s.reader.ListEvents(ctx, s.partition)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.hub.logger.Warn("feed read failed",
				"subscription_id", s.ID,
				"partition", s.partition.Key(),
				"error", err)
			records = nil
		}
		s.deliver(Snapshot{
			At:        time.Now(),
			Err:       err,
			Partition: s.partition,
			Records:   records,
		})
	}
}

// deliver replaces any snapshot the consumer has not picked up yet.
// Only the worker sends on out, so the send after draining never blocks.
func (s *Subscription) deliver(snap Snapshot) {
	select {
	case <-s.out:
	default:
	}
	s.out <- snap
}
