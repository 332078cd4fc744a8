// Package store persists raw event records, users and notifications.
//
// Events are kept as loosely typed documents in one of two kinds of
// partition: the shared global partition, or a personal partition keyed by
// the owning user. Every write is announced to an EventEmitter so live
// queries can re-read the affected partition.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/calendararchive/calendar-server/internal/domain"
	"github.com/calendararchive/calendar-server/internal/id"
)

// Store is implemented by the Badger store in this package and by the
// SQLite store in package sqlite.
type Store interface {
	Close() error
	Ping(ctx context.Context) error
	SetSearchIndexer(indexer SearchIndexer)

	// Events
	CreateEvent(ctx context.Context, p Partition, doc Document) (Document, error)
	GetEvent(ctx context.Context, p Partition, eventID string) (Document, error)
	ReplaceEvent(ctx context.Context, p Partition, eventID string, doc Document) (Document, error)
	DeleteEvent(ctx context.Context, p Partition, eventID string) error
	ListEvents(ctx context.Context, p Partition) ([]Document, error)
	ListPartitions(ctx context.Context) ([]Partition, error)

	// Users
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	ListUsers(ctx context.Context) ([]*domain.User, error)

	// Notifications
	CreateNotification(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, limit int) ([]*domain.Notification, error)
	DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// EventEmitter receives a Change after every event write.
type EventEmitter interface {
	Emit(event any)
}

// NoopEmitter discards changes. Used in tests and tools.
type NoopEmitter struct{}

// Emit implements EventEmitter.
func (NoopEmitter) Emit(_ any) {}

// NewNoopEmitter returns an emitter that drops everything.
func NewNoopEmitter() EventEmitter {
	return NoopEmitter{}
}

// SearchIndexer keeps a search index in step with event writes.
// Index failures are logged and never fail the write.
type SearchIndexer interface {
	IndexEvent(ctx context.Context, p Partition, doc Document) error
	DeleteEvent(ctx context.Context, p Partition, eventID string) error
}

// NoopSearchIndexer ignores all updates.
type NoopSearchIndexer struct{}

// IndexEvent is a no-op.
func (NoopSearchIndexer) IndexEvent(context.Context, Partition, Document) error { return nil }

// DeleteEvent is a no-op.
func (NoopSearchIndexer) DeleteEvent(context.Context, Partition, string) error { return nil }

// Partition identifies where an event lives.
type Partition struct {
	UserID   string
	Personal bool
}

const (
	globalPartitionKey   = "global"
	personalPartitionKey = "personal/"
)

// Global returns the shared partition.
func Global() Partition {
	return Partition{}
}

// Personal returns the partition owned by userID.
func Personal(userID string) Partition {
	return Partition{Personal: true, UserID: userID}
}

// Key returns "global" or "personal/{userID}".
func (p Partition) Key() string {
	if p.Personal {
		return personalPartitionKey + p.UserID
	}
	return globalPartitionKey
}

func (p Partition) String() string {
	return p.Key()
}

// Provenance maps the partition to the event provenance it implies.
func (p Partition) Provenance() domain.Provenance {
	if p.Personal {
		return domain.ProvenancePersonal
	}
	return domain.ProvenanceGlobal
}

// Validate rejects personal partitions without an owner.
func (p Partition) Validate() error {
	if p.Personal && p.UserID == "" {
		return ErrInvalidPartition
	}
	if !p.Personal && p.UserID != "" {
		return ErrInvalidPartition.WithMessage("global partition cannot have an owner")
	}
	return nil
}

// ParsePartition is the inverse of Partition.Key.
func ParsePartition(key string) (Partition, error) {
	switch {
	case key == globalPartitionKey:
		return Global(), nil
	case strings.HasPrefix(key, personalPartitionKey) && len(key) > len(personalPartitionKey):
		return Personal(key[len(personalPartitionKey):]), nil
	default:
		return Partition{}, ErrInvalidPartition.WithMessage(fmt.Sprintf("unknown partition %q", key))
	}
}

// ChangeOp names the kind of write that produced a Change.
type ChangeOp string

// Change operations.
const (
	ChangeCreated ChangeOp = "created"
	ChangeUpdated ChangeOp = "updated"
	ChangeDeleted ChangeOp = "deleted"
)

// Change is emitted after an event write commits.
type Change struct {
	At        time.Time
	Partition Partition
	EventID   string
	Op        ChangeOp
}

// PrepareCreate stamps a new record for partition p: it assigns an ID,
// the provenance fields and both server timestamps. Caller fields that
// would contradict the partition are overwritten.
func PrepareCreate(p Partition, doc Document, now time.Time) (Document, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	prefix := id.PrefixGlobalEvent
	if p.Personal {
		prefix = id.PrefixPersonalEvent
	}
	eventID, err := id.Generate(prefix)
	if err != nil {
		return nil, err
	}

	out := doc.Clone()
	stamp := now.UTC().Format(time.RFC3339Nano)
	out[FieldID] = eventID
	out[FieldIsPersonal] = p.Personal
	if p.Personal {
		out[FieldUserID] = p.UserID
	} else {
		delete(out, FieldUserID)
	}
	out[FieldCreatedAt] = stamp
	out[FieldUpdatedAt] = stamp
	return out, nil
}

// PrepareReplace merges doc over existing for an update. The ID, the
// provenance fields and createdAt always come from existing.
func PrepareReplace(existing, doc Document, now time.Time) Document {
	out := doc.Clone()
	for _, k := range []string{FieldID, FieldIsPersonal, FieldUserID, FieldCreatedAt} {
		if v, ok := existing[k]; ok {
			out[k] = v
		} else {
			delete(out, k)
		}
	}
	out[FieldUpdatedAt] = now.UTC().Format(time.RFC3339Nano)
	return out
}
