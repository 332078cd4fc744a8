package api

import (
	"context"
	"strings"

	"github.com/calendararchive/calendar-server/internal/domain"
	domainerrors "github.com/calendararchive/calendar-server/internal/errors"
)

// actor resolves an Authorization header. No header is a guest; a
// malformed or invalid one is rejected rather than downgraded.
func (s *Server) actor(ctx context.Context, authHeader string) (*domain.Actor, error) {
	if authHeader == "" {
		return nil, nil
	}
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return nil, domainerrors.Unauthorized("invalid authorization header format")
	}
	return s.services.Auth.Actor(ctx, strings.TrimSpace(token))
}

// requireUser is actor for endpoints with no guest view.
func (s *Server) requireUser(ctx context.Context, authHeader string) (*domain.Actor, error) {
	actor, err := s.actor(ctx, authHeader)
	if err != nil {
		return nil, err
	}
	if actor.IsGuest() {
		return nil, domainerrors.Unauthorized("authentication required")
	}
	return actor, nil
}
