// Package backup writes and restores zip archives of the event store.
package backup

import (
	domainerrors "github.com/calendararchive/calendar-server/internal/errors"
)

var (
	// ErrInvalidManifest indicates the manifest is missing or malformed.
	ErrInvalidManifest = domainerrors.Parse("invalid or missing manifest", nil)

	// ErrVersionMismatch indicates the backup version is not supported.
	ErrVersionMismatch = domainerrors.Validation("backup version not supported")

	// ErrCorruptedBackup indicates the backup failed integrity checks.
	ErrCorruptedBackup = domainerrors.Parse("backup integrity check failed", nil)

	// ErrBackupNotFound indicates the requested backup does not exist.
	ErrBackupNotFound = domainerrors.NotFound("backup not found")
)
