package domain

import "time"

// Audience selects who receives a broadcast notification.
type Audience string

const (
	// AudienceAll includes guest connections.
	AudienceAll Audience = "all"
	// AudienceUsers is limited to signed-in users.
	AudienceUsers Audience = "users"
)

// Notification is an admin broadcast message.
type Notification struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Audience  Audience  `json:"audience"`
	CreatedBy string    `json:"created_by"`
}

// Reaches reports whether a connection with the given user ID should receive n.
func (n *Notification) Reaches(userID string) bool {
	return n.Audience != AudienceUsers || userID != ""
}
