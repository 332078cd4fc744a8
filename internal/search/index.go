package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"

	"github.com/calendararchive/calendar-server/internal/normalize"
	"github.com/calendararchive/calendar-server/internal/store"
)

// SearchIndex wraps a Bleve index of events. It implements
// store.SearchIndexer so the store keeps it current on every write.
//
// All methods are safe for concurrent use; Rebuild takes the write lock.
type SearchIndex struct {
	index    bleve.Index
	path     string
	logger   *slog.Logger
	location *time.Location
	created  bool
	mu       sync.RWMutex
}

var _ store.SearchIndexer = (*SearchIndex)(nil)

// Options configures the search index.
type Options struct {
	DataPath string
	Logger   *slog.Logger
	// Location is the calendar time zone used when normalizing records.
	Location *time.Location
}

// Source is what Reindex reads from.
type Source interface {
	ListPartitions(ctx context.Context) ([]store.Partition, error)
	ListEvents(ctx context.Context, p store.Partition) ([]store.Document, error)
}

// mappingVersion changes whenever buildIndexMapping does, forcing a rebuild
// on the next start.
const mappingVersion = "1"

const batchSize = 500

// NewSearchIndex opens the index under DataPath, creating it when missing,
// unreadable or built with an older mapping.
func NewSearchIndex(opts Options) (*SearchIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	indexPath := filepath.Join(opts.DataPath, "search.bleve")
	versionPath := filepath.Join(opts.DataPath, "search.version")

	var index bleve.Index
	needsRebuild := false

	if _, err := os.Stat(indexPath); err == nil {
		existing, readErr := os.ReadFile(versionPath)
		switch {
		case readErr != nil:
			logger.Info("search index has no version file, rebuilding", "new_version", mappingVersion)
			needsRebuild = true
		case string(existing) != mappingVersion:
			logger.Info("search index mapping version changed, rebuilding",
				"old_version", string(existing),
				"new_version", mappingVersion)
			needsRebuild = true
		default:
			index, err = bleve.Open(indexPath)
			if err != nil {
				logger.Warn("failed to open search index, recreating", "path", indexPath, "error", err)
				needsRebuild = true
				index = nil
			}
		}
	}

	if needsRebuild {
		if err := os.RemoveAll(indexPath); err != nil {
			return nil, fmt.Errorf("remove old index: %w", err)
		}
	}

	created := false
	if index == nil {
		var err error
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		if err := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); err != nil {
			logger.Warn("failed to write search version file", "error", err)
		}
		created = true
		logger.Info("created search index", "path", indexPath, "mapping_version", mappingVersion)
	} else {
		logger.Info("opened search index", "path", indexPath)
	}

	return &SearchIndex{
		index:    index,
		path:     indexPath,
		logger:   logger,
		location: loc,
		created:  created,
	}, nil
}

// Created reports whether the index was created empty by this process and
// needs a Reindex.
func (s *SearchIndex) Created() bool {
	return s.created
}

// Close releases the index.
func (s *SearchIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexEvent indexes one stored record.
func (s *SearchIndex) IndexEvent(_ context.Context, p store.Partition, doc store.Document) error {
	ev := normalize.Event(doc, p, time.Now().In(s.location))
	d := NewEventDocument(p, ev)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Index(d.ID, d.ToMap())
}

// DeleteEvent removes one record.
func (s *SearchIndex) DeleteEvent(_ context.Context, p store.Partition, eventID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(docID(p, eventID))
}

// DocumentCount returns the number of indexed events.
func (s *SearchIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Rebuild drops every document and recreates the index with the current
// mapping. It blocks all other operations while it runs.
func (s *SearchIndex) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.RemoveAll(s.path); err != nil {
		return fmt.Errorf("remove index: %w", err)
	}
	index, err := bleve.New(s.path, buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	s.index = index
	s.logger.Info("rebuilt search index", "path", s.path)
	return nil
}

// Reindex rebuilds the index from every partition in src and returns the
// number of events indexed.
func (s *SearchIndex) Reindex(ctx context.Context, src Source) (int, error) {
	if err := s.Rebuild(); err != nil {
		return 0, err
	}

	partitions, err := src.ListPartitions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list partitions: %w", err)
	}

	now := time.Now().In(s.location)
	total := 0
	for _, p := range partitions {
		docs, err := src.ListEvents(ctx, p)
		if err != nil {
			return total, fmt.Errorf("list events in %s: %w", p.Key(), err)
		}
		events := normalize.Events(docs, p, now)
		batch := make([]*EventDocument, 0, len(events))
		for _, ev := range events {
			batch = append(batch, NewEventDocument(p, ev))
		}
		if err := s.indexDocuments(batch); err != nil {
			return total, err
		}
		total += len(batch)
	}

	s.logger.Info("search index rebuilt from store", "partitions", len(partitions), "events", total)
	return total, nil
}

func (s *SearchIndex) indexDocuments(docs []*EventDocument) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := 0; i < len(docs); i += batchSize {
		end := min(i+batchSize, len(docs))
		batch := s.index.NewBatch()
		for _, d := range docs[i:end] {
			if err := batch.Index(d.ID, d.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", d.ID, err)
			}
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}
