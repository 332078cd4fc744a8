package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/calendararchive/calendar-server/internal/domain"
	domainerrors "github.com/calendararchive/calendar-server/internal/errors"
	"github.com/calendararchive/calendar-server/internal/normalize"
	"github.com/calendararchive/calendar-server/internal/store"
	"github.com/calendararchive/calendar-server/internal/validation"
)

// EventService routes event mutations to the right partition and enforces
// ownership. Writes become visible to readers through the next snapshot;
// nothing is inserted into any view ahead of the store.
type EventService struct {
	store     store.Store
	validator *validation.Validator
	location  *time.Location
	logger    *slog.Logger
	now       func() time.Time
}

// NewEventService creates an event service. loc is the calendar time zone
// used to interpret dates without an offset.
func NewEventService(st store.Store, v *validation.Validator, loc *time.Location, logger *slog.Logger) *EventService {
	if loc == nil {
		loc = time.Local
	}
	return &EventService{store: st, validator: v, location: loc, logger: orDiscard(logger), now: time.Now}
}

// AddEventRequest is the input for adding an event.
type AddEventRequest struct {
	Title       string `json:"title" validate:"notblank,max=200"`
	Date        string `json:"date" validate:"notblank"`
	Description string `json:"description,omitempty" validate:"max=5000"`
	Category    string `json:"category,omitempty" validate:"max=64"`
	Country     string `json:"country,omitempty" validate:"max=64"`
	Color       string `json:"color,omitempty" validate:"omitempty,hexcolor"`
	IsPersonal  bool   `json:"is_personal" required:"false"`
}

// UpdateEventRequest changes the provided fields of a personal event.
// IsPersonal is accepted only to reject attempts to change it.
type UpdateEventRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitnil,notblank,max=200"`
	Date        *string `json:"date,omitempty" validate:"omitnil,notblank"`
	Description *string `json:"description,omitempty" validate:"omitnil,max=5000"`
	Category    *string `json:"category,omitempty" validate:"omitnil,max=64"`
	Country     *string `json:"country,omitempty" validate:"omitnil,max=64"`
	Color       *string `json:"color,omitempty" validate:"omitnil,hexcolor"`
	IsPersonal  *bool   `json:"is_personal,omitempty"`
}

// Add creates an event. Personal events need a signed-in actor and go to
// the actor's partition; global events need an admin.
func (s *EventService) Add(ctx context.Context, actor *domain.Actor, req AddEventRequest) (*domain.Event, error) {
	p, err := s.writablePartition(actor, req.IsPersonal)
	if err != nil {
		return nil, err
	}

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	date, ok := normalize.Time(req.Date, s.location)
	if !ok {
		return nil, domainerrors.ValidationWithDetails("validation failed", map[string]string{
			"date": "must be a valid date",
		})
	}

	doc := store.Document{
		store.FieldTitle: req.Title,
		store.FieldDate:  date.UTC().Format(time.RFC3339Nano),
	}
	setIfPresent(doc, store.FieldDescription, req.Description)
	setIfPresent(doc, store.FieldCategory, req.Category)
	setIfPresent(doc, store.FieldCountry, req.Country)
	setIfPresent(doc, store.FieldColor, req.Color)

	created, err := s.store.CreateEvent(ctx, p, doc)
	if err != nil {
		return nil, mapStoreError(err, "create event")
	}

	ev := normalize.Event(created, p, s.now().In(s.location))
	s.logger.Info("event added",
		"event_id", ev.ID,
		"partition", p.Key(),
		"actor", actor.ID())
	return &ev, nil
}

// Delete removes an event from the partition selected by isPersonal. The
// personal partition always comes from the actor, never from the request,
// so a user can only ever reach their own records.
func (s *EventService) Delete(ctx context.Context, actor *domain.Actor, eventID string, isPersonal bool) error {
	if eventID == "" {
		return domainerrors.Validation("event id is required")
	}
	p, err := s.writablePartition(actor, isPersonal)
	if err != nil {
		return err
	}

	if isPersonal {
		doc, err := s.store.GetEvent(ctx, p, eventID)
		if err != nil {
			return mapStoreError(err, "load event")
		}
		if owner := doc.String(store.FieldUserID); owner != "" && owner != actor.ID() {
			return domainerrors.Forbidden("event belongs to another user")
		}
	}

	if err := s.store.DeleteEvent(ctx, p, eventID); err != nil {
		return mapStoreError(err, "delete event")
	}

	s.logger.Info("event deleted",
		"event_id", eventID,
		"partition", p.Key(),
		"actor", actor.ID())
	return nil
}

// Update edits the actor's own personal event. Global events have no edit
// path and IsPersonal never changes.
func (s *EventService) Update(ctx context.Context, actor *domain.Actor, eventID string, req UpdateEventRequest) (*domain.Event, error) {
	if actor.IsGuest() {
		return nil, domainerrors.Unauthorized("sign in to edit events")
	}
	if req.IsPersonal != nil && !*req.IsPersonal {
		return nil, domainerrors.ValidationWithDetails("validation failed", map[string]string{
			"is_personal": "cannot be changed",
		})
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	p := store.Personal(actor.ID())
	existing, err := s.store.GetEvent(ctx, p, eventID)
	if errors.Is(err, store.ErrNotFound) {
		if _, gerr := s.store.GetEvent(ctx, store.Global(), eventID); gerr == nil {
			return nil, domainerrors.Forbidden("global events cannot be edited")
		}
		return nil, domainerrors.NotFound("event not found")
	}
	if err != nil {
		return nil, mapStoreError(err, "load event")
	}
	if owner := existing.String(store.FieldUserID); owner != "" && owner != actor.ID() {
		return nil, domainerrors.Forbidden("event belongs to another user")
	}

	doc := existing.Clone()
	if req.Date != nil {
		date, ok := normalize.Time(*req.Date, s.location)
		if !ok {
			return nil, domainerrors.ValidationWithDetails("validation failed", map[string]string{
				"date": "must be a valid date",
			})
		}
		doc[store.FieldDate] = date.UTC().Format(time.RFC3339Nano)
	}
	patch(doc, store.FieldTitle, req.Title)
	patch(doc, store.FieldDescription, req.Description)
	patch(doc, store.FieldCategory, req.Category)
	patch(doc, store.FieldCountry, req.Country)
	patch(doc, store.FieldColor, req.Color)

	updated, err := s.store.ReplaceEvent(ctx, p, eventID, doc)
	if err != nil {
		return nil, mapStoreError(err, "update event")
	}

	ev := normalize.Event(updated, p, s.now().In(s.location))
	s.logger.Info("event updated", "event_id", ev.ID, "actor", actor.ID())
	return &ev, nil
}

// writablePartition resolves and authorizes the target partition.
func (s *EventService) writablePartition(actor *domain.Actor, personal bool) (store.Partition, error) {
	switch {
	case actor.IsGuest():
		if personal {
			return store.Partition{}, domainerrors.Unauthorized("sign in to manage personal events")
		}
		return store.Partition{}, domainerrors.Unauthorized("sign in as an admin to manage global events")
	case personal:
		return store.Personal(actor.ID()), nil
	case !actor.IsAdmin():
		return store.Partition{}, domainerrors.Forbidden("only admins can manage global events")
	default:
		return store.Global(), nil
	}
}

func setIfPresent(doc store.Document, key, value string) {
	if value != "" {
		doc[key] = value
	}
}

// patch applies an optional field. An empty string clears the field so the
// read-side default applies again.
func patch(doc store.Document, key string, value *string) {
	switch {
	case value == nil:
	case *value == "":
		delete(doc, key)
	default:
		doc[key] = *value
	}
}

// mapStoreError converts store errors to coded domain errors.
func mapStoreError(err error, op string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domainerrors.NotFound("event not found")
	case errors.Is(err, store.ErrAlreadyExists):
		return domainerrors.Wrap(err, domainerrors.CodeAlreadyExists, op)
	case errors.Is(err, store.ErrInvalidPartition):
		return domainerrors.Wrap(err, domainerrors.CodeValidation, op)
	default:
		return domainerrors.Wrap(err, domainerrors.CodeInternal, op)
	}
}
