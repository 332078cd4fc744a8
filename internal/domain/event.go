package domain

import "time"

// Provenance records which partition an event came from.
type Provenance string

const (
	// ProvenanceGlobal marks a shared event visible to everyone.
	ProvenanceGlobal Provenance = "global"
	// ProvenancePersonal marks an event owned by a single user.
	ProvenancePersonal Provenance = "personal"
)

// Default display values by provenance.
const (
	DefaultGlobalColor   = "#3b82f6"
	DefaultPersonalColor = "#8b5cf6"

	DefaultGlobalTitle   = "Global Event"
	DefaultPersonalTitle = "Personal Event"
	DefaultImportTitle   = "Untitled Event"

	DefaultGlobalCategory   = "other"
	DefaultPersonalCategory = "personal"
)

// SuggestedCategories are offered by clients; categories are free-form.
var SuggestedCategories = []string{
	"holiday", "religious", "cultural", "national", "international",
	"observance", "personal", "work", "birthday", "other",
}

// Event is a calendar entry after normalization.
// IsPersonal never changes after creation.
type Event struct {
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Date        time.Time `json:"date"`
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Country     string    `json:"country"`
	UserID      string    `json:"user_id,omitempty"`
	Color       string    `json:"color"`
	IsPersonal  bool      `json:"is_personal"`
}

// Provenance returns the partition kind this event belongs to.
func (e *Event) Provenance() Provenance {
	if e.IsPersonal {
		return ProvenancePersonal
	}
	return ProvenanceGlobal
}

// OwnedBy reports whether userID owns this personal event.
// Global events have no owner.
func (e *Event) OwnedBy(userID string) bool {
	return e.IsPersonal && userID != "" && e.UserID == userID
}

// DefaultColor returns the display color used when a record has none.
func (p Provenance) DefaultColor() string {
	if p == ProvenancePersonal {
		return DefaultPersonalColor
	}
	return DefaultGlobalColor
}

// DefaultTitle returns the placeholder title used when a record has none.
func (p Provenance) DefaultTitle() string {
	if p == ProvenancePersonal {
		return DefaultPersonalTitle
	}
	return DefaultGlobalTitle
}

// DefaultCategory returns the category used when a record has none.
func (p Provenance) DefaultCategory() string {
	if p == ProvenancePersonal {
		return DefaultPersonalCategory
	}
	return DefaultGlobalCategory
}
