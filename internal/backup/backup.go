package backup

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/calendararchive/calendar-server/internal/backup/stream"
	"github.com/calendararchive/calendar-server/internal/store"
)

// fileSuffix marks archives written by this package.
const fileSuffix = ".calendar.zip"

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// EventRecord is one line of events.jsonl.
type EventRecord struct {
	Partition string         `json:"partition"`
	Document  store.Document `json:"document"`
}

// Service creates, lists and restores backups in one directory.
type Service struct {
	store   store.Store
	dir     string
	version string
	logger  *slog.Logger
	now     func() time.Time

	// mu serializes archive writes and restores.
	mu   sync.Mutex
	cron *cron.Cron

	onCreate func(error)
	uploader Uploader
}

// NewService creates a backup service writing archives to dir.
func NewService(s store.Store, dir, version string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:   s,
		dir:     dir,
		version: version,
		logger:  logger.With("component", "backup"),
		now:     time.Now,
	}
}

// SetUploader makes Create copy each new archive with u. Upload failures
// are logged and leave the local archive in place.
func (s *Service) SetUploader(u Uploader) {
	s.uploader = u
}

// SetCreateHook registers fn to observe the outcome of every Create.
func (s *Service) SetCreateHook(fn func(error)) {
	s.onCreate = fn
}

// Create writes a new archive holding every user, notification and event.
func (s *Service) Create(ctx context.Context) (*Result, error) {
	result, err := s.create(ctx)
	if s.onCreate != nil {
		s.onCreate(err)
	}
	return result, err
}

func (s *Service) create(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	start := s.now()
	backupID := "backup-" + start.UTC().Format("20060102-150405.000")
	backupID = strings.ReplaceAll(backupID, ".", "-")
	outputPath := s.Path(backupID)

	s.logger.Info("creating backup", "output", outputPath)

	// Write to temp file, rename on success.
	tmpPath := outputPath + ".tmp"
	f, err := os.Create(tmpPath) //#nosec G304 -- path is built from the backup directory and a generated ID
	if err != nil {
		return nil, fmt.Errorf("create backup file: %w", err)
	}
	defer os.Remove(tmpPath)
	defer f.Close()

	hash := sha256.New()
	zw := zip.NewWriter(io.MultiWriter(f, hash))

	manifest := &Manifest{
		Version:       FormatVersion,
		CreatedAt:     start,
		ServerVersion: s.version,
	}

	steps := []struct {
		name string
		fn   func(context.Context, *zip.Writer, *EntityCounts) error
	}{
		{"users", s.exportUsers},
		{"notifications", s.exportNotifications},
		{"events", s.exportEvents},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := step.fn(ctx, zw, &manifest.Counts); err != nil {
			return nil, fmt.Errorf("export %s: %w", step.name, err)
		}
	}

	// Manifest last so it carries the final counts.
	mw, err := zw.Create(manifestFile)
	if err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	enc := json.NewEncoder(mw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(manifest); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return nil, fmt.Errorf("rename backup: %w", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, err
	}

	result := &Result{
		ID:       backupID,
		Path:     outputPath,
		Size:     info.Size(),
		Counts:   manifest.Counts,
		Duration: s.now().Sub(start),
		Checksum: hex.EncodeToString(hash.Sum(nil)),
	}

	if s.uploader != nil {
		remote, err := s.uploader.Upload(ctx, outputPath, filepath.Base(outputPath))
		if err != nil {
			s.logger.Warn("backup upload failed", "id", backupID, "error", err)
		} else {
			result.Remote = remote
		}
	}

	s.logger.Info("backup complete",
		"id", result.ID,
		"size", result.Size,
		"events", result.Counts.Events(),
		"users", result.Counts.Users,
		"duration", result.Duration)

	return result, nil
}

func (s *Service) exportUsers(ctx context.Context, zw *zip.Writer, counts *EntityCounts) error {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	w, err := stream.NewWriter(zw, usersFile)
	if err != nil {
		return err
	}
	for _, u := range users {
		if err := w.Write(u); err != nil {
			return err
		}
	}
	counts.Users = w.Count()
	return nil
}

func (s *Service) exportNotifications(ctx context.Context, zw *zip.Writer, counts *EntityCounts) error {
	notifications, err := s.store.ListNotifications(ctx, 0)
	if err != nil {
		return err
	}
	w, err := stream.NewWriter(zw, notificationsFile)
	if err != nil {
		return err
	}
	for _, n := range notifications {
		if err := w.Write(n); err != nil {
			return err
		}
	}
	counts.Notifications = w.Count()
	return nil
}

func (s *Service) exportEvents(ctx context.Context, zw *zip.Writer, counts *EntityCounts) error {
	partitions, err := s.store.ListPartitions(ctx)
	if err != nil {
		return err
	}
	w, err := stream.NewWriter(zw, eventsFile)
	if err != nil {
		return err
	}
	for _, p := range partitions {
		docs, err := s.store.ListEvents(ctx, p)
		if err != nil {
			return fmt.Errorf("partition %s: %w", p, err)
		}
		for _, doc := range docs {
			if err := w.Write(EventRecord{Partition: p.Key(), Document: doc}); err != nil {
				return err
			}
		}
		if p.Personal {
			counts.PersonalEvents += len(docs)
		} else {
			counts.GlobalEvents += len(docs)
		}
	}
	counts.Partitions = len(partitions)
	return nil
}

// List returns all available backups, newest first.
func (s *Service) List(_ context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Info{}, nil
		}
		return nil, err
	}

	backups := []Info{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			ID:        strings.TrimSuffix(entry.Name(), fileSuffix),
			Path:      filepath.Join(s.dir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	// IDs embed the creation time, so they order the same way.
	slices.SortFunc(backups, func(a, b Info) int { return strings.Compare(b.ID, a.ID) })
	return backups, nil
}

// Get returns a backup by ID.
func (s *Service) Get(_ context.Context, backupID string) (*Info, error) {
	if !validID.MatchString(backupID) {
		return nil, ErrBackupNotFound
	}
	path := s.Path(backupID)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBackupNotFound
		}
		return nil, err
	}
	return &Info{ID: backupID, Path: path, Size: info.Size(), CreatedAt: info.ModTime()}, nil
}

// Delete removes a backup.
func (s *Service) Delete(ctx context.Context, backupID string) error {
	info, err := s.Get(ctx, backupID)
	if err != nil {
		return err
	}
	return os.Remove(info.Path)
}

// Path returns the file path for a backup ID.
func (s *Service) Path(backupID string) string {
	return filepath.Join(s.dir, backupID+fileSuffix)
}

// Prune deletes all but the newest keep backups and returns how many were
// removed. keep <= 0 keeps everything.
func (s *Service) Prune(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	backups, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, b := range backups[min(keep, len(backups)):] {
		if err := os.Remove(b.Path); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// StartSchedule creates a backup on a standard five-field cron schedule,
// keeping the newest keep archives.
func (s *Service) StartSchedule(schedule string, keep int, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(schedule, func() {
		ctx := context.Background()
		if _, err := s.Create(ctx); err != nil {
			s.logger.Error("scheduled backup failed", "error", err)
			return
		}
		if n, err := s.Prune(ctx, keep); err != nil {
			s.logger.Warn("pruning backups failed", "error", err)
		} else if n > 0 {
			s.logger.Info("pruned old backups", "removed", n)
		}
	}); err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Shutdown stops the schedule and waits for a running backup.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
