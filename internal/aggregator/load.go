package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/calendararchive/calendar-server/internal/normalize"
	"github.com/calendararchive/calendar-server/internal/store"
)

// Reader reads one partition.
type Reader interface {
	ListEvents(ctx context.Context, p store.Partition) ([]store.Document, error)
}

// PartitionLister also enumerates partitions.
type PartitionLister interface {
	Reader
	ListPartitions(ctx context.Context) ([]store.Partition, error)
}

// Load builds the aggregated view once, for request/response callers. It
// applies the same merge rule as the live Aggregator. userID may be empty.
func Load(ctx context.Context, r Reader, userID string, now time.Time) (State, error) {
	var st State

	docs, err := r.ListEvents(ctx, store.Global())
	if err != nil {
		return st, fmt.Errorf("load global events: %w", err)
	}
	st = st.ApplyGlobal(normalize.Events(docs, store.Global(), now))

	if userID == "" {
		return st, nil
	}

	p := store.Personal(userID)
	docs, err = r.ListEvents(ctx, p)
	if err != nil {
		return st, fmt.Errorf("load personal events: %w", err)
	}
	return st.ApplyPersonal(normalize.Events(docs, p, now)), nil
}

// LoadAll builds a view over every partition: the global one plus all
// personal partitions merged together. Used for admin statistics.
func LoadAll(ctx context.Context, r PartitionLister, now time.Time) (State, error) {
	partitions, err := r.ListPartitions(ctx)
	if err != nil {
		return State{}, fmt.Errorf("list partitions: %w", err)
	}

	st, err := Load(ctx, r, "", now)
	if err != nil {
		return st, err
	}

	personal := st.Personal()
	for _, p := range partitions {
		if !p.Personal {
			continue
		}
		docs, err := r.ListEvents(ctx, p)
		if err != nil {
			return st, fmt.Errorf("load %s: %w", p, err)
		}
		personal = append(personal, normalize.Events(docs, p, now)...)
	}
	return st.ApplyPersonal(personal), nil
}
