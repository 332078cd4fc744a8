package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/calendararchive/calendar-server/internal/aggregator"
	"github.com/calendararchive/calendar-server/internal/domain"
	"github.com/calendararchive/calendar-server/internal/filter"
	"github.com/calendararchive/calendar-server/internal/http/response"
)

const writeDeadline = 60 * time.Second

// Authenticator resolves a bearer token to an actor. An empty token is a
// guest and resolves to nil without error.
type Authenticator interface {
	Actor(ctx context.Context, token string) (*domain.Actor, error)
}

// Handler serves GET /api/v1/stream.
type Handler struct {
	manager  *Manager
	source   aggregator.Source
	auth     Authenticator
	logger   *slog.Logger
	location *time.Location
}

// NewHandler creates a stream handler. source feeds the per-connection
// aggregator; loc is the calendar time zone used for normalization.
func NewHandler(manager *Manager, source aggregator.Source, auth Authenticator, loc *time.Location, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{manager: manager, source: source, auth: auth, location: loc, logger: logger}
}

// BearerToken extracts the token from an Authorization header or, for
// EventSource clients that cannot set headers, the token query parameter.
// A header with another scheme is returned whole so verification rejects it.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return h
	}
	return r.URL.Query().Get("token")
}

// ServeHTTP streams snapshots and broadcast events until the client leaves.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.MethodNotAllowed(w, h.logger)
		return
	}
	ctx := r.Context()
	if ctx.Err() != nil {
		return
	}

	actor, err := h.auth.Actor(ctx, BearerToken(r))
	if err != nil {
		response.Unauthorized(w, "invalid or expired token", h.logger)
		return
	}
	criteria := filter.FromQuery(r.URL.Query())

	agg := aggregator.New(h.source, aggregator.Options{
		Logger:   h.logger,
		Location: h.location,
		UserID:   actor.ID(),
	})
	defer agg.Close()
	if err := agg.Start(ctx); err != nil {
		h.logger.Error("failed to start stream aggregator", slog.String("error", err.Error()))
		response.InternalError(w, "failed to establish stream", h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("failed to flush headers", slog.String("error", err.Error()))
		response.InternalError(w, "streaming not supported", h.logger)
		return
	}

	client, err := h.manager.Connect(actor.ID(), actor.IsAdmin())
	if err != nil {
		h.logger.Error("failed to register SSE client", slog.String("error", err.Error()))
		return
	}
	defer h.manager.Disconnect(client.ID)

	log := h.logger.With(slog.String("client_id", client.ID))

	if err := h.send(w, rc, EventConnected, map[string]string{
		"client_id": client.ID,
		"user_id":   actor.ID(),
	}); err != nil {
		log.Warn("failed to send connection message", slog.String("error", err.Error()))
		return
	}

	for {
		select {
		case <-agg.Updates():
			snap := NewSnapshot(agg.Events(), agg.Status(), criteria)
			if err := h.send(w, rc, EventSnapshot, snap); err != nil {
				log.Info("client disconnected during send")
				return
			}

		case event, ok := <-client.EventChan:
			if !ok {
				return
			}
			if err := h.send(w, rc, event.Type, event); err != nil {
				log.Info("client disconnected during send")
				return
			}

		case <-agg.Done():
			log.Info("stream aggregator stopped")
			return

		case <-client.Done:
			log.Info("client closed by manager")
			return

		case <-ctx.Done():
			log.Info("client context canceled")
			return
		}
	}
}

func (h *Handler) send(w http.ResponseWriter, rc *http.ResponseController, eventType EventType, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}
	if err := rc.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		h.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}
	return nil
}
