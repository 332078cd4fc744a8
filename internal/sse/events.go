// Package sse streams live calendar data to clients with Server-Sent Events.
//
// The Manager fans out broadcast events (notifications, import results,
// heartbeats) to every connected client. The Handler additionally runs one
// aggregator per connection and pushes the caller's merged event view as
// events.snapshot whenever either partition changes.
package sse

import (
	"time"

	"github.com/calendararchive/calendar-server/internal/aggregator"
	"github.com/calendararchive/calendar-server/internal/domain"
	"github.com/calendararchive/calendar-server/internal/filter"
)

// EventType is the SSE "event:" field.
type EventType string

const (
	// EventConnected is the first event on every stream.
	EventConnected EventType = "connected"
	// EventHeartbeat keeps idle connections open.
	EventHeartbeat EventType = "heartbeat"
	// EventSnapshot carries the connection's full filtered event view.
	EventSnapshot EventType = "events.snapshot"

	// EventNotificationBroadcast carries an admin notification.
	EventNotificationBroadcast EventType = "notification.broadcast"
	// EventImportCompleted reports a finished bulk import. Admin only.
	EventImportCompleted EventType = "import.completed"
	// EventUserRegistered announces a new account. Admin only.
	EventUserRegistered EventType = "user.registered"
)

// Event is a message fanned out by the Manager.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// Delivery filters, never sent to clients.
	UserID     string `json:"-"`
	AdminOnly  bool   `json:"-"`
	SkipGuests bool   `json:"-"`
}

// isAdminOnlyEvent lists event types that never reach non-admins, whatever
// the emitter set on the event.
func isAdminOnlyEvent(t EventType) bool {
	//nolint:exhaustive // everything else is public
	switch t {
	case EventImportCompleted, EventUserRegistered:
		return true
	default:
		return false
	}
}

// HeartbeatEventData is the heartbeat payload.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NotificationEventData is the notification.broadcast payload.
type NotificationEventData struct {
	Notification *domain.Notification `json:"notification"`
}

// ImportCompletedEventData summarizes an import run for admins.
type ImportCompletedEventData struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	RunID      string    `json:"run_id"`
	Format     string    `json:"format"`
	Source     string    `json:"source"`
	ImportedBy string    `json:"imported_by"`
	Total      int       `json:"total"`
	Imported   int       `json:"imported"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
}

// UserRegisteredEventData is the user.registered payload.
type UserRegisteredEventData struct {
	UserID      string      `json:"user_id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"display_name"`
	Role        domain.Role `json:"role"`
}

// SnapshotEventData is the events.snapshot payload.
type SnapshotEventData struct {
	Criteria      filter.Criteria `json:"criteria"`
	Events        []domain.Event  `json:"events"`
	UserID        string          `json:"user_id,omitempty"`
	GlobalError   string          `json:"global_error,omitempty"`
	PersonalError string          `json:"personal_error,omitempty"`
	Total         int             `json:"total"`
	Loading       bool            `json:"loading"`
}

// NewHeartbeatEvent creates a heartbeat stamped with the current time.
func NewHeartbeatEvent() Event {
	now := time.Now()
	return Event{Type: EventHeartbeat, Timestamp: now, Data: HeartbeatEventData{ServerTime: now}}
}

// NewNotificationEvent wraps a notification. Audience "users" skips guests.
func NewNotificationEvent(n *domain.Notification) Event {
	return Event{
		Type:       EventNotificationBroadcast,
		Timestamp:  time.Now(),
		Data:       NotificationEventData{Notification: n},
		SkipGuests: n.Audience == domain.AudienceUsers,
	}
}

// NewImportCompletedEvent creates an admin-only import summary event.
func NewImportCompletedEvent(data ImportCompletedEventData) Event {
	return Event{Type: EventImportCompleted, Timestamp: time.Now(), Data: data, AdminOnly: true}
}

// NewUserRegisteredEvent creates an admin-only registration event.
func NewUserRegisteredEvent(u *domain.User) Event {
	return Event{
		Type:      EventUserRegistered,
		Timestamp: time.Now(),
		AdminOnly: true,
		Data: UserRegisteredEventData{
			UserID:      u.ID,
			Email:       u.Email,
			DisplayName: u.DisplayName,
			Role:        u.Role,
		},
	}
}

// NewSnapshot filters an aggregator's current view for one connection.
func NewSnapshot(events []domain.Event, status aggregator.Status, c filter.Criteria) SnapshotEventData {
	data := SnapshotEventData{
		Criteria: c,
		Events:   filter.Apply(events, c),
		UserID:   status.UserID,
		Total:    len(events),
		Loading:  status.Loading,
	}
	if status.GlobalErr != nil {
		data.GlobalError = status.GlobalErr.Error()
	}
	if status.PersonalErr != nil {
		data.PersonalError = status.PersonalErr.Error()
	}
	return data
}
