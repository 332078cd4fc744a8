package domain

import (
	"slices"
	"strings"
	"time"
)

// Role is a user's permission level.
type Role string

const (
	// RoleAdmin may import global events, broadcast notifications and view stats.
	RoleAdmin Role = "admin"
	// RoleUser manages only their own personal events.
	RoleUser Role = "user"
)

// User is a registered account.
type User struct {
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastLoginAt  time.Time `json:"last_login_at,omitzero"`
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"password_hash,omitempty"`
	Role         Role      `json:"role"`
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// RoleFor returns RoleAdmin when email is in adminEmails (case-insensitive).
func RoleFor(email string, adminEmails []string) Role {
	email = NormalizeEmail(email)
	if slices.ContainsFunc(adminEmails, func(a string) bool { return NormalizeEmail(a) == email }) {
		return RoleAdmin
	}
	return RoleUser
}

// NormalizeEmail lower-cases and trims an email address for comparison and indexing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Actor is the identity performing an operation. A nil *Actor is a guest.
type Actor struct {
	UserID string
	Email  string
	Role   Role
}

// ActorFor builds an Actor from a stored user.
func ActorFor(u *User) *Actor {
	if u == nil {
		return nil
	}
	return &Actor{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// IsAdmin reports whether the actor is an authenticated admin.
func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// IsGuest reports whether there is no authenticated identity.
func (a *Actor) IsGuest() bool {
	return a == nil || a.UserID == ""
}

// ID returns the acting user ID, or "" for guests.
func (a *Actor) ID() string {
	if a == nil {
		return ""
	}
	return a.UserID
}
