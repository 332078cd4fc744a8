package backup

import "time"

// Result contains the outcome of a backup operation.
type Result struct {
	ID       string        `json:"id"`
	Path     string        `json:"-"`
	Size     int64         `json:"size"`
	Counts   EntityCounts  `json:"counts"`
	Duration time.Duration `json:"duration"`
	Checksum string        `json:"checksum"`
	Remote   string        `json:"remote,omitempty"`
}

// Info describes an existing backup.
type Info struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	Path      string    `json:"-"`
	Size      int64     `json:"size"`
}

// RestoreOptions configures restoration. Restore always merges into the
// existing data.
type RestoreOptions struct {
	DryRun bool // Validate and count without writing
}

// RestoreResult contains the outcome of a restore operation.
type RestoreResult struct {
	Imported map[string]int `json:"imported"`
	Skipped  map[string]int `json:"skipped"`
	Errors   []RestoreError `json:"errors,omitempty"`
	Duration time.Duration  `json:"duration"`
	DryRun   bool           `json:"dry_run"`
}

// RestoreError describes a non-fatal error during restore.
type RestoreError struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id,omitempty"`
	Error      string `json:"error"`
}

// ValidationResult describes backup validity.
type ValidationResult struct {
	Manifest *Manifest    `json:"manifest,omitempty"`
	Found    EntityCounts `json:"found"`
	Errors   []string     `json:"errors,omitempty"`
	Valid    bool         `json:"valid"`
}
