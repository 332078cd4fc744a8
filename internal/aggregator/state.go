package aggregator

import (
	"github.com/calendararchive/calendar-server/internal/domain"
)

// State holds the latest normalized snapshot of each source. The
// aggregated view is the concatenation of the two; it is never patched
// in place, so applying a snapshot twice or in either order converges.
type State struct {
	global   []domain.Event
	personal []domain.Event
}

// ApplyGlobal replaces every global entry. Personal entries are untouched.
func (s State) ApplyGlobal(events []domain.Event) State {
	s.global = clone(events)
	return s
}

// ApplyPersonal replaces every personal entry. Global entries are untouched.
func (s State) ApplyPersonal(events []domain.Event) State {
	s.personal = clone(events)
	return s
}

// ClearPersonal drops all personal entries, e.g. on sign-out.
func (s State) ClearPersonal() State {
	s.personal = nil
	return s
}

// Global returns a copy of the global entries.
func (s State) Global() []domain.Event {
	return clone(s.global)
}

// Personal returns a copy of the personal entries.
func (s State) Personal() []domain.Event {
	return clone(s.personal)
}

// Events is the aggregated view: global entries followed by personal ones.
func (s State) Events() []domain.Event {
	out := make([]domain.Event, 0, len(s.global)+len(s.personal))
	out = append(out, s.global...)
	return append(out, s.personal...)
}

// Len returns the size of the aggregated view.
func (s State) Len() int {
	return len(s.global) + len(s.personal)
}

func clone(events []domain.Event) []domain.Event {
	if len(events) == 0 {
		return nil
	}
	return append([]domain.Event(nil), events...)
}
