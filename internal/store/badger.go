package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/calendararchive/calendar-server/internal/domain"
)

const eventKeyPrefix = "evt:"

// Badger is the default Store, backed by an embedded Badger database.
type Badger struct {
	db            *badger.DB
	logger        *slog.Logger
	emitter       EventEmitter
	searchIndexer SearchIndexer
	now           func() time.Time

	Users         *Entity[domain.User]
	Notifications *Entity[domain.Notification]
}

var _ Store = (*Badger)(nil)

// New opens (or creates) a Badger database at path. Every event write is
// announced to emitter as a Change.
func New(path string, logger *slog.Logger, emitter EventEmitter) (*Badger, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if emitter == nil {
		emitter = NoopEmitter{}
	}

	s := &Badger{
		db:            db,
		logger:        logger,
		emitter:       emitter,
		searchIndexer: NoopSearchIndexer{},
		now:           time.Now,
	}
	s.Users = NewEntity[domain.User](s, "user:").
		WithIndexTransform("email",
			func(u *domain.User) []string { return []string{domain.NormalizeEmail(u.Email)} },
			domain.NormalizeEmail,
		)
	s.Notifications = NewEntity[domain.Notification](s, "ntf:")

	logger.Info("Badger database opened", "path", path)
	return s, nil
}

// Close flushes and closes the database.
func (s *Badger) Close() error {
	s.logger.Info("Closing database connection")
	return s.db.Close()
}

// Ping reports whether the database is usable.
func (s *Badger) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger db is closed")
	}
	return nil
}

// SetSearchIndexer wires the search index after construction.
func (s *Badger) SetSearchIndexer(indexer SearchIndexer) {
	if indexer == nil {
		indexer = NoopSearchIndexer{}
	}
	s.searchIndexer = indexer
}

func eventKey(p Partition, eventID string) []byte {
	return []byte(eventKeyPrefix + p.Key() + ":" + eventID)
}

func partitionPrefix(p Partition) []byte {
	return []byte(eventKeyPrefix + p.Key() + ":")
}

func (s *Badger) readEvent(txn *badger.Txn, p Partition, eventID string) (Document, error) {
	item, err := txn.Get(eventKey(p, eventID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound.WithMessage("event not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	var doc Document
	err = item.Value(func(val []byte) error {
		var derr error
		doc, derr = DecodeDocument(val)
		return derr
	})
	return doc, err
}

// CreateEvent stores doc in p with a new ID and server timestamps.
func (s *Badger) CreateEvent(ctx context.Context, p Partition, doc Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := PrepareCreate(p, doc, s.now())
	if err != nil {
		return nil, err
	}
	data, err := EncodeDocument(out)
	if err != nil {
		return nil, err
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(p, out.ID()), data)
	}); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.afterWrite(ctx, p, out, ChangeCreated)
	return out, nil
}

// GetEvent returns a single record or ErrNotFound.
func (s *Badger) GetEvent(ctx context.Context, p Partition, eventID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var doc Document
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		doc, err = s.readEvent(txn, p, eventID)
		return err
	})
	return doc, err
}

// ReplaceEvent overwrites an existing record, keeping its identity fields.
func (s *Badger) ReplaceEvent(ctx context.Context, p Partition, eventID string, doc Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var out Document
	err := s.db.Update(func(txn *badger.Txn) error {
		existing, err := s.readEvent(txn, p, eventID)
		if err != nil {
			return err
		}
		out = PrepareReplace(existing, doc, s.now())
		data, err := EncodeDocument(out)
		if err != nil {
			return err
		}
		return txn.Set(eventKey(p, eventID), data)
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, p, out, ChangeUpdated)
	return out, nil
}

// DeleteEvent removes a record from p. Returns ErrNotFound when absent.
func (s *Badger) DeleteEvent(ctx context.Context, p Partition, eventID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := s.readEvent(txn, p, eventID); err != nil {
			return err
		}
		return txn.Delete(eventKey(p, eventID))
	})
	if err != nil {
		return err
	}

	if err := s.searchIndexer.DeleteEvent(ctx, p, eventID); err != nil {
		s.logger.Warn("search index delete failed", "event_id", eventID, "error", err)
	}
	s.emitter.Emit(Change{Partition: p, EventID: eventID, Op: ChangeDeleted, At: s.now()})
	return nil
}

// ListEvents returns every record in p.
func (s *Badger) ListEvents(ctx context.Context, p Partition) ([]Document, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	docs := make([]Document, 0)
	prefix := partitionPrefix(p)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				doc, err := DecodeDocument(val)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list events in %s: %w", p, err)
	}
	return docs, nil
}

// ListPartitions returns every partition holding at least one event.
func (s *Badger) ListPartitions(ctx context.Context) ([]Partition, error) {
	seen := make(map[string]Partition)
	prefix := []byte(eventKeyPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			rest := strings.TrimPrefix(string(it.Item().Key()), eventKeyPrefix)
			sep := strings.LastIndexByte(rest, ':')
			if sep < 0 {
				continue
			}
			p, err := ParsePartition(rest[:sep])
			if err != nil {
				s.logger.Warn("skipping key with unknown partition", "key", string(it.Item().Key()))
				continue
			}
			seen[p.Key()] = p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Partition, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Partition) int { return strings.Compare(a.Key(), b.Key()) })
	return out, nil
}

func (s *Badger) afterWrite(ctx context.Context, p Partition, doc Document, op ChangeOp) {
	if err := s.searchIndexer.IndexEvent(ctx, p, doc); err != nil {
		s.logger.Warn("search index update failed", "event_id", doc.ID(), "error", err)
	}
	s.emitter.Emit(Change{Partition: p, EventID: doc.ID(), Op: op, At: s.now()})
}

// CreateUser stores a new user. The email must be unique.
func (s *Badger) CreateUser(ctx context.Context, user *domain.User) error {
	return s.Users.Create(ctx, user.ID, user)
}

// GetUser returns a user by ID.
func (s *Badger) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.Users.Get(ctx, userID)
}

// GetUserByEmail looks a user up case-insensitively.
func (s *Badger) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.Users.GetByIndex(ctx, "email", email)
}

// UpdateUser replaces a stored user.
func (s *Badger) UpdateUser(ctx context.Context, user *domain.User) error {
	return s.Users.Update(ctx, user.ID, user)
}

// ListUsers returns all users.
func (s *Badger) ListUsers(ctx context.Context) ([]*domain.User, error) {
	var users []*domain.User
	for u, err := range s.Users.List(ctx) {
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// CreateNotification stores a broadcast notification.
func (s *Badger) CreateNotification(ctx context.Context, n *domain.Notification) error {
	return s.Notifications.Create(ctx, n.ID, n)
}

// ListNotifications returns notifications newest first. limit <= 0 means all.
func (s *Badger) ListNotifications(ctx context.Context, limit int) ([]*domain.Notification, error) {
	var out []*domain.Notification
	for n, err := range s.Notifications.List(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *domain.Notification) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteNotificationsBefore removes notifications created before cutoff.
func (s *Badger) DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var stale []string
	for n, err := range s.Notifications.List(ctx) {
		if err != nil {
			return 0, err
		}
		if n.CreatedAt.Before(cutoff) {
			stale = append(stale, n.ID)
		}
	}
	for _, nid := range stale {
		if err := s.Notifications.Delete(ctx, nid); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}
