// Package service holds the calendar's use cases: event mutations, bulk
// import, accounts, notifications and admin statistics. Authorization is
// decided here, not in the transports.
package service

import (
	"log/slog"

	"github.com/calendararchive/calendar-server/internal/domain"
	domainerrors "github.com/calendararchive/calendar-server/internal/errors"
)

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}

// requireAdmin distinguishes a missing identity from an insufficient one.
func requireAdmin(actor *domain.Actor, action string) error {
	switch {
	case actor.IsGuest():
		return domainerrors.Unauthorized("sign in as an admin to " + action)
	case !actor.IsAdmin():
		return domainerrors.Forbidden("only admins can " + action)
	default:
		return nil
	}
}
