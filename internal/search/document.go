// Package search provides full-text search over calendar events using
// Bleve. The index holds global and personal events side by side; every
// query is restricted to what the caller may see.
package search

import (
	"github.com/calendararchive/calendar-server/internal/domain"
	"github.com/calendararchive/calendar-server/internal/store"
)

// visibilityGlobal marks documents everyone may see. Personal documents
// carry "user:" plus the owner's ID.
const visibilityGlobal = "global"

func visibilityFor(p store.Partition) string {
	if p.Personal {
		return "user:" + p.UserID
	}
	return visibilityGlobal
}

// docID keys a document by partition so IDs from different partitions
// never collide.
func docID(p store.Partition, eventID string) string {
	return p.Key() + "/" + eventID
}

// EventDocument is the indexed form of an event.
type EventDocument struct {
	ID          string
	EventID     string
	Visibility  string
	Title       string
	Description string
	Category    string
	Country     string
	Date        int64 // Unix millis
	IsPersonal  bool
}

// NewEventDocument builds the index document for a normalized event.
func NewEventDocument(p store.Partition, ev domain.Event) *EventDocument {
	return &EventDocument{
		ID:          docID(p, ev.ID),
		EventID:     ev.ID,
		Visibility:  visibilityFor(p),
		Title:       ev.Title,
		Description: ev.Description,
		Category:    ev.Category,
		Country:     ev.Country,
		Date:        ev.Date.UnixMilli(),
		IsPersonal:  ev.IsPersonal,
	}
}

// ToMap converts the document to the lower-case field names the mapping
// declares.
func (d *EventDocument) ToMap() map[string]any {
	return map[string]any{
		"event_id":    d.EventID,
		"visibility":  d.Visibility,
		"title":       d.Title,
		"description": d.Description,
		"category":    d.Category,
		"country":     d.Country,
		"date":        d.Date,
		"personal":    d.IsPersonal,
	}
}
