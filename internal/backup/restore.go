package backup

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/calendararchive/calendar-server/internal/backup/stream"
	"github.com/calendararchive/calendar-server/internal/domain"
	"github.com/calendararchive/calendar-server/internal/store"
)

// Restore merges a backup into the live store. Users are matched by
// email and notifications by ID. Events get fresh IDs in their target
// partition and are skipped when an event with the same title and date is
// already there, so restoring the same archive twice is harmless.
func (s *Service) Restore(ctx context.Context, backupID string, opts RestoreOptions) (*RestoreResult, error) {
	info, err := s.Get(ctx, backupID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	zr, err := zip.OpenReader(info.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedBackup, err)
	}
	defer zr.Close()

	if _, err := readManifest(&zr.Reader); err != nil {
		return nil, err
	}

	r := &restorer{
		store:   s.store,
		dryRun:  opts.DryRun,
		userMap: make(map[string]string),
		seen:    make(map[string]map[string]bool),
		result: &RestoreResult{
			Imported: make(map[string]int),
			Skipped:  make(map[string]int),
			DryRun:   opts.DryRun,
		},
	}

	s.logger.Info("restoring backup", "id", backupID, "dry_run", opts.DryRun)

	steps := []struct {
		name string
		fn   func(context.Context, *zip.Reader) error
	}{
		{"users", r.users},
		{"notifications", r.notifications},
		{"events", r.events},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := step.fn(ctx, &zr.Reader); err != nil {
			return nil, fmt.Errorf("restore %s: %w", step.name, err)
		}
	}

	r.result.Duration = s.now().Sub(start)
	s.logger.Info("restore complete",
		"id", backupID,
		"imported", r.result.Imported,
		"skipped", r.result.Skipped,
		"errors", len(r.result.Errors))
	return r.result, nil
}

// Validate checks a backup's manifest against what the archive contains.
func (s *Service) Validate(ctx context.Context, backupID string) (*ValidationResult, error) {
	info, err := s.Get(ctx, backupID)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{}
	zr, err := zip.OpenReader(info.Path)
	if err != nil {
		result.Errors = append(result.Errors, "not a readable zip archive: "+err.Error())
		return result, nil
	}
	defer zr.Close()

	manifest, err := readManifest(&zr.Reader)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}
	result.Manifest = manifest

	count := func(path string, fn func([]byte) error) int {
		rc, err := stream.OpenFile(&zr.Reader, path)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, err))
			return 0
		}
		n := 0
		for raw, err := range stream.NewReader[json.RawMessage](rc).All() {
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, err))
				continue
			}
			if fn != nil {
				if err := fn(raw); err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, err))
					continue
				}
			}
			n++
		}
		return n
	}

	result.Found.Users = count(usersFile, nil)
	result.Found.Notifications = count(notificationsFile, nil)
	partitions := make(map[string]bool)
	count(eventsFile, func(raw []byte) error {
		var rec EventRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		p, err := store.ParsePartition(rec.Partition)
		if err != nil {
			return err
		}
		partitions[p.Key()] = true
		if p.Personal {
			result.Found.PersonalEvents++
		} else {
			result.Found.GlobalEvents++
		}
		return nil
	})
	result.Found.Partitions = len(partitions)

	if result.Found != manifest.Counts {
		result.Errors = append(result.Errors, fmt.Sprintf("manifest counts %+v do not match archive %+v", manifest.Counts, result.Found))
	}
	result.Valid = len(result.Errors) == 0
	return result, nil
}

func readManifest(zr *zip.Reader) (*Manifest, error) {
	rc, err := stream.OpenFile(zr, manifestFile)
	if err != nil {
		return nil, ErrInvalidManifest
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedBackup, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	major, _, _ := strings.Cut(m.Version, ".")
	wantMajor, _, _ := strings.Cut(FormatVersion, ".")
	if major != wantMajor {
		return nil, fmt.Errorf("%w: %q", ErrVersionMismatch, m.Version)
	}
	return &m, nil
}

type restorer struct {
	store  store.Store
	dryRun bool
	result *RestoreResult

	// userMap maps archived user IDs to the IDs they have in the store.
	userMap map[string]string
	// seen holds title+date keys per partition key.
	seen map[string]map[string]bool
}

func (r *restorer) fail(entityType, entityID string, err error) {
	r.result.Errors = append(r.result.Errors, RestoreError{
		EntityType: entityType,
		EntityID:   entityID,
		Error:      err.Error(),
	})
}

func (r *restorer) users(ctx context.Context, zr *zip.Reader) error {
	rc, err := stream.OpenFile(zr, usersFile)
	if err != nil {
		if errors.Is(err, stream.ErrFileNotFound) {
			return nil
		}
		return err
	}
	for u, err := range stream.NewReader[domain.User](rc).All() {
		if err != nil {
			r.fail("user", "", err)
			continue
		}
		existing, err := r.store.GetUserByEmail(ctx, u.Email)
		switch {
		case err == nil:
			r.userMap[u.ID] = existing.ID
			r.result.Skipped["users"]++
			continue
		case !errors.Is(err, store.ErrNotFound):
			r.fail("user", u.ID, err)
			continue
		}
		if !r.dryRun {
			if err := r.store.CreateUser(ctx, &u); err != nil {
				r.fail("user", u.ID, err)
				continue
			}
		}
		r.userMap[u.ID] = u.ID
		r.result.Imported["users"]++
	}
	return nil
}

func (r *restorer) notifications(ctx context.Context, zr *zip.Reader) error {
	rc, err := stream.OpenFile(zr, notificationsFile)
	if err != nil {
		if errors.Is(err, stream.ErrFileNotFound) {
			return nil
		}
		return err
	}
	for n, err := range stream.NewReader[domain.Notification](rc).All() {
		if err != nil {
			r.fail("notification", "", err)
			continue
		}
		if r.dryRun {
			r.result.Imported["notifications"]++
			continue
		}
		if err := r.store.CreateNotification(ctx, &n); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				r.result.Skipped["notifications"]++
				continue
			}
			r.fail("notification", n.ID, err)
			continue
		}
		r.result.Imported["notifications"]++
	}
	return nil
}

func (r *restorer) events(ctx context.Context, zr *zip.Reader) error {
	rc, err := stream.OpenFile(zr, eventsFile)
	if err != nil {
		if errors.Is(err, stream.ErrFileNotFound) {
			return nil
		}
		return err
	}
	for rec, err := range stream.NewReader[EventRecord](rc).All() {
		if err != nil {
			r.fail("event", "", err)
			continue
		}
		eventID := rec.Document.ID()
		p, err := r.targetPartition(ctx, rec.Partition)
		if err != nil {
			r.fail("event", eventID, err)
			continue
		}

		seen, err := r.partitionKeys(ctx, p)
		if err != nil {
			return fmt.Errorf("partition %s: %w", p, err)
		}
		key := eventKey(rec.Document)
		if seen[key] {
			r.result.Skipped["events"]++
			continue
		}

		if !r.dryRun {
			if _, err := r.store.CreateEvent(ctx, p, rec.Document); err != nil {
				r.fail("event", eventID, err)
				continue
			}
		}
		seen[key] = true
		r.result.Imported["events"]++
	}
	return nil
}

// targetPartition resolves the archived partition key against restored
// user IDs. A personal partition whose owner is neither in the archive
// nor in the store is rejected.
func (r *restorer) targetPartition(ctx context.Context, key string) (store.Partition, error) {
	p, err := store.ParsePartition(key)
	if err != nil || !p.Personal {
		return p, err
	}
	if mapped, ok := r.userMap[p.UserID]; ok {
		return store.Personal(mapped), nil
	}
	if _, err := r.store.GetUser(ctx, p.UserID); err != nil {
		return store.Partition{}, fmt.Errorf("owner %s: %w", p.UserID, err)
	}
	r.userMap[p.UserID] = p.UserID
	return p, nil
}

func (r *restorer) partitionKeys(ctx context.Context, p store.Partition) (map[string]bool, error) {
	if keys, ok := r.seen[p.Key()]; ok {
		return keys, nil
	}
	docs, err := r.store.ListEvents(ctx, p)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]bool, len(docs))
	for _, doc := range docs {
		keys[eventKey(doc)] = true
	}
	r.seen[p.Key()] = keys
	return keys, nil
}

func eventKey(doc store.Document) string {
	return doc.String(store.FieldTitle) + "\x00" + doc.String(store.FieldDate)
}
