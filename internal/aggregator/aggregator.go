// Package aggregator merges the live global and personal event feeds into
// one in-memory view for a single user context.
//
// An Aggregator owns one goroutine. Snapshots and commands are applied on
// that goroutine only; readers get copies under a read lock. Nothing is
// shared between aggregators, so each connection or session has its own.
package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/calendararchive/calendar-server/internal/domain"
	"github.com/calendararchive/calendar-server/internal/feed"
	"github.com/calendararchive/calendar-server/internal/normalize"
	"github.com/calendararchive/calendar-server/internal/store"
)

// ErrClosed is returned by commands sent after Close.
var ErrClosed = errors.New("aggregator closed")

// Source opens live partition subscriptions. feed.Hub implements it.
type Source interface {
	Subscribe(ctx context.Context, p store.Partition) (*feed.Subscription, error)
}

// Options configures an Aggregator.
type Options struct {
	Logger *slog.Logger
	// Now is the clock used for normalization defaults. Defaults to time.Now.
	Now func() time.Time
	// Location is the calendar time zone. Defaults to time.Local.
	Location *time.Location
	// UserID selects the initial personal partition. Empty means guest.
	UserID string
}

// Status reports the progress and health of both sources.
type Status struct {
	GlobalErr   error
	PersonalErr error
	UserID      string
	Loading     bool
}

type setUserCmd struct {
	ctx    context.Context
	userID string
	reply  chan error
}

// Aggregator maintains the merged view of the global partition and the
// current user's personal partition.
type Aggregator struct {
	source   Source
	logger   *slog.Logger
	now      func() time.Time
	updates  chan struct{}
	commands chan setUserCmd
	done     chan struct{}
	cancel   context.CancelFunc

	mu     sync.RWMutex
	state  State
	status Status

	initialUser string
	startOnce   sync.Once
	closeOnce   sync.Once
}

// New creates an Aggregator. Call Start to begin receiving snapshots.
func New(source Source, opts Options) *Aggregator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clock := opts.Now
	if clock == nil {
		clock = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	return &Aggregator{
		source:      source,
		logger:      logger,
		now:         func() time.Time { return clock().In(loc) },
		updates:     make(chan struct{}, 1),
		commands:    make(chan setUserCmd),
		done:        make(chan struct{}),
		initialUser: opts.UserID,
		status:      Status{Loading: true, UserID: opts.UserID},
	}
}

// Start subscribes to the global partition and, when a user is set, to the
// user's personal partition. It returns once both subscriptions are open;
// snapshots are applied in the background until ctx ends or Close is called.
func (a *Aggregator) Start(ctx context.Context) error {
	err := errors.New("aggregator already started")
	a.startOnce.Do(func() {
		err = a.start(ctx)
	})
	return err
}

func (a *Aggregator) start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)

	global, err := a.source.Subscribe(loopCtx, store.Global())
	if err != nil {
		cancel()
		close(a.done)
		return err
	}

	var personal *feed.Subscription
	if a.initialUser != "" {
		personal, err = a.source.Subscribe(loopCtx, store.Personal(a.initialUser))
		if err != nil {
			global.Close()
			cancel()
			close(a.done)
			return err
		}
	}

	a.cancel = cancel
	go a.loop(loopCtx, global, personal, a.initialUser)
	return nil
}

// SetUser switches the personal partition. The previous personal
// subscription is torn down and its entries cleared before the new one is
// opened, so no snapshot from the previous user is ever applied. An empty
// userID means guest: no personal subscription at all.
func (a *Aggregator) SetUser(ctx context.Context, userID string) error {
	cmd := setUserCmd{ctx: ctx, userID: userID, reply: make(chan error, 1)}
	select {
	case a.commands <- cmd:
	case <-a.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-a.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns a copy of the aggregated view. Order is not significant.
func (a *Aggregator) Events() []domain.Event {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Events()
}

// State returns the current merge state.
func (a *Aggregator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Status returns loading and error state for both sources.
func (a *Aggregator) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Updates signals after every applied snapshot or user change. Signals
// coalesce: a slow reader sees one pending signal, then reads the latest
// state.
func (a *Aggregator) Updates() <-chan struct{} {
	return a.updates
}

// Done is closed once the aggregator has stopped.
func (a *Aggregator) Done() <-chan struct{} {
	return a.done
}

// Close tears down both subscriptions and waits for the loop to exit.
func (a *Aggregator) Close() {
	a.closeOnce.Do(func() {
		a.startOnce.Do(func() { close(a.done) })
		if a.cancel != nil {
			a.cancel()
		}
	})
	<-a.done
}

func (a *Aggregator) loop(ctx context.Context, global, personal *feed.Subscription, userID string) {
	defer close(a.done)
	defer func() {
		global.Close()
		if personal != nil {
			personal.Close()
		}
	}()

	globalLoaded := false
	personalLoaded := false

	for {
		var globalCh, personalCh <-chan feed.Snapshot
		if global != nil {
			globalCh = global.Snapshots()
		}
		if personal != nil {
			personalCh = personal.Snapshots()
		}

		select {
		case <-ctx.Done():
			return

		case snap, ok := <-globalCh:
			if !ok {
				return
			}
			globalLoaded = true
			a.apply(snap, userID, globalLoaded, personalLoaded)

		case snap, ok := <-personalCh:
			if !ok {
				personal = nil
				continue
			}
			if snap.Partition != store.Personal(userID) {
				continue
			}
			personalLoaded = true
			a.apply(snap, userID, globalLoaded, personalLoaded)

		case cmd := <-a.commands:
			if personal != nil {
				personal.Close()
				personal = nil
			}
			userID = cmd.userID
			personalLoaded = false

			var err error
			if userID != "" {
				personal, err = a.source.Subscribe(ctx, store.Personal(userID))
			}

			a.mu.Lock()
			a.state = a.state.ClearPersonal()
			a.status.UserID = userID
			a.status.PersonalErr = err
			a.status.Loading = !globalLoaded || (userID != "" && err == nil)
			a.mu.Unlock()
			a.signal()

			if err != nil {
				a.logger.Warn("personal subscription failed", "user_id", userID, "error", err)
			}
			cmd.reply <- err
		}
	}
}

func (a *Aggregator) apply(snap feed.Snapshot, userID string, globalLoaded, personalLoaded bool) {
	a.mu.Lock()
	switch {
	case snap.Err != nil && snap.Partition.Personal:
		a.status.PersonalErr = snap.Err
	case snap.Err != nil:
		a.status.GlobalErr = snap.Err
	case snap.Partition.Personal:
		a.state = a.state.ApplyPersonal(normalize.Events(snap.Records, snap.Partition, a.now()))
		a.status.PersonalErr = nil
	default:
		a.state = a.state.ApplyGlobal(normalize.Events(snap.Records, snap.Partition, a.now()))
		a.status.GlobalErr = nil
	}
	a.status.Loading = !globalLoaded || (userID != "" && !personalLoaded)
	a.mu.Unlock()

	if snap.Err != nil {
		a.logger.Warn("snapshot error, keeping last known data",
			"partition", snap.Partition.Key(),
			"error", snap.Err)
	}
	a.signal()
}

func (a *Aggregator) signal() {
	select {
	case a.updates <- struct{}{}:
	default:
	}
}
