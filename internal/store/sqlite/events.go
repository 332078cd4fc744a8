package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/calendararchive/calendar-server/internal/store"
)

// CreateEvent inserts doc into partition p with a new ID and timestamps.
func (s *Store) CreateEvent(ctx context.Context, p store.Partition, doc store.Document) (store.Document, error) {
	now := s.now()
	out, err := store.PrepareCreate(p, doc, now)
	if err != nil {
		return nil, err
	}
	data, err := store.EncodeDocument(out)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (partition, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.Key(), out.ID(), string(data), formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrAlreadyExists
		}
		return nil, fmt.Errorf("insert event: %w", err)
	}

	s.afterWrite(ctx, p, out, store.ChangeCreated)
	return out, nil
}

// GetEvent returns a single record or store.ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, p store.Partition, eventID string) (store.Document, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return s.getEvent(ctx, s.db, p, eventID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getEvent(ctx context.Context, q queryer, p store.Partition, eventID string) (store.Document, error) {
	var data string
	err := q.QueryRowContext(ctx,
		`SELECT data FROM events WHERE partition = ? AND id = ?`,
		p.Key(), eventID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithMessage("event not found")
	}
	if err != nil {
		return nil, fmt.Errorf("select event: %w", err)
	}
	return store.DecodeDocument([]byte(data))
}

// ReplaceEvent overwrites an existing record, keeping its identity fields.
func (s *Store) ReplaceEvent(ctx context.Context, p store.Partition, eventID string, doc store.Document) (store.Document, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	existing, err := s.getEvent(ctx, tx, p, eventID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := store.PrepareReplace(existing, doc, now)
	data, err := store.EncodeDocument(out)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE events SET data = ?, updated_at = ? WHERE partition = ? AND id = ?`,
		string(data), formatTime(now), p.Key(), eventID,
	); err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.afterWrite(ctx, p, out, store.ChangeUpdated)
	return out, nil
}

// DeleteEvent removes a record. Returns store.ErrNotFound when absent.
func (s *Store) DeleteEvent(ctx context.Context, p store.Partition, eventID string) error {
	if err := p.Validate(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE partition = ? AND id = ?`, p.Key(), eventID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound.WithMessage("event not found")
	}

	if err := s.searchIndexer.DeleteEvent(ctx, p, eventID); err != nil {
		s.logger.Warn("search index delete failed", "event_id", eventID, "error", err)
	}
	s.emitter.Emit(store.Change{Partition: p, EventID: eventID, Op: store.ChangeDeleted, At: s.now()})
	return nil
}

// ListEvents returns every record in p.
func (s *Store) ListEvents(ctx context.Context, p store.Partition) ([]store.Document, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM events WHERE partition = ? ORDER BY created_at, id`, p.Key())
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	docs := make([]store.Document, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		doc, err := store.DecodeDocument([]byte(data))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListPartitions returns every partition holding at least one event.
func (s *Store) ListPartitions(ctx context.Context) ([]store.Partition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT partition FROM events ORDER BY partition`)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var out []store.Partition
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		p, err := store.ParsePartition(key)
		if err != nil {
			s.logger.Warn("skipping unknown partition", "partition", key)
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) afterWrite(ctx context.Context, p store.Partition, doc store.Document, op store.ChangeOp) {
	if err := s.searchIndexer.IndexEvent(ctx, p, doc); err != nil {
		s.logger.Warn("search index update failed", "event_id", doc.ID(), "error", err)
	}
	s.emitter.Emit(store.Change{Partition: p, EventID: doc.ID(), Op: op, At: s.now()})
}
