package backup

import "time"

// FormatVersion is the backup format version. Increment major on breaking changes.
const FormatVersion = "1.0"

// Archive entry names.
const (
	manifestFile      = "manifest.json"
	usersFile         = "users.jsonl"
	notificationsFile = "notifications.jsonl"
	eventsFile        = "events.jsonl"
)

// Manifest describes backup contents and metadata.
type Manifest struct {
	Version       string       `json:"version"`
	CreatedAt     time.Time    `json:"created_at"`
	ServerVersion string       `json:"server_version"`
	Counts        EntityCounts `json:"counts"`
}

// EntityCounts tracks entity counts for validation and progress reporting.
type EntityCounts struct {
	Users          int `json:"users"`
	Notifications  int `json:"notifications"`
	Partitions     int `json:"partitions"`
	GlobalEvents   int `json:"global_events"`
	PersonalEvents int `json:"personal_events"`
}

// Events returns the number of event records across all partitions.
func (c EntityCounts) Events() int {
	return c.GlobalEvents + c.PersonalEvents
}
