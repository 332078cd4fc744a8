package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/calendararchive/calendar-server/internal/domain"
	"github.com/calendararchive/calendar-server/internal/service"
)

// Subdirectories of the inbox that receive handled files.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// Importer runs one bulk import.
type Importer interface {
	Import(ctx context.Context, actor *domain.Actor, req service.ImportRequest) (*service.ImportReport, error)
}

// Inbox imports every settled CSV or ICS file in a directory as actor and
// moves it to processed/ on success or failed/ when the whole file was
// rejected. Row-level problems still count as success.
type Inbox struct {
	dir      string
	importer Importer
	actor    *domain.Actor
	watcher  *Watcher
	logger   *slog.Logger
	now      func() time.Time
}

// NewInbox prepares the inbox directory and its watcher.
func NewInbox(dir string, importer Importer, actor *domain.Actor, logger *slog.Logger, opts Options) (*Inbox, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	for _, d := range []string{dir, filepath.Join(dir, ProcessedDir), filepath.Join(dir, FailedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create inbox directory: %w", err)
		}
	}

	w, err := New(logger, opts)
	if err != nil {
		return nil, err
	}
	if err := w.Watch(dir); err != nil {
		_ = w.Stop()
		return nil, fmt.Errorf("watch inbox: %w", err)
	}

	return &Inbox{
		dir:      dir,
		importer: importer,
		actor:    actor,
		watcher:  w,
		logger:   logger.With("component", "inbox", "dir", dir),
		now:      time.Now,
	}, nil
}

// Run imports files until ctx ends. Files already in the inbox are queued
// first.
func (in *Inbox) Run(ctx context.Context) error {
	go func() {
		if err := in.watcher.Start(ctx); err != nil {
			in.logger.Error("inbox watcher stopped", "error", err)
		}
	}()
	in.queueExisting()
	in.logger.Info("watching import inbox")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-in.watcher.Events():
			if !ok {
				return nil
			}
			in.process(ctx, ev.Path)
		case err := <-in.watcher.Errors():
			in.logger.Warn("inbox watcher error", "error", err)
		}
	}
}

// Stop releases the underlying watcher.
func (in *Inbox) Stop() error {
	return in.watcher.Stop()
}

func (in *Inbox) queueExisting() {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		in.logger.Warn("failed to list inbox", "error", err)
		return
	}
	for _, e := range entries {
		path := filepath.Join(in.dir, e.Name())
		if e.IsDir() || in.watcher.opts.shouldIgnore(path) {
			continue
		}
		in.watcher.Settle(path)
	}
}

func (in *Inbox) process(ctx context.Context, path string) {
	log := in.logger.With("file", filepath.Base(path))

	report, err := in.importFile(ctx, path)
	dest := ProcessedDir
	if err != nil {
		dest = FailedDir
		log.Error("inbox import failed", "error", err)
	} else {
		log.Info("inbox import completed",
			"run_id", report.RunID,
			"imported", report.Imported,
			"skipped", len(report.Skipped),
			"failed", len(report.Failed))
	}

	if err := in.move(path, dest); err != nil {
		log.Error("failed to move inbox file", "dest", dest, "error", err)
	}
}

func (in *Inbox) importFile(ctx context.Context, path string) (*service.ImportReport, error) {
	format, err := service.DetectFormat(path, "")
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	return in.importer.Import(ctx, in.actor, service.ImportRequest{
		Data:   f,
		Format: format,
		Source: filepath.Base(path),
	})
}

// move renames path into sub, prefixing a timestamp so repeated uploads of
// the same name do not collide.
func (in *Inbox) move(path, sub string) error {
	name := in.now().UTC().Format("20060102T150405") + "-" + filepath.Base(path)
	target := filepath.Join(in.dir, sub, name)
	if err := os.Rename(path, target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}
