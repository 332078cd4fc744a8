// Package ws serves live event snapshots over WebSocket. It carries the
// same snapshots as the SSE stream; clients may change their filter
// criteria on an open connection.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/calendararchive/calendar-server/internal/aggregator"
	"github.com/calendararchive/calendar-server/internal/filter"
	"github.com/calendararchive/calendar-server/internal/http/response"
	"github.com/calendararchive/calendar-server/internal/sse"
)

// Message types.
const (
	TypeConnected = "connected"
	TypeSnapshot  = string(sse.EventSnapshot)
	TypeCriteria  = "criteria"
	TypeError     = "error"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	maxMessage   = 4096
)

// Message is the envelope for both directions.
type Message struct {
	Data any    `json:"data,omitempty"`
	Type string `json:"type"`
}

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Handler serves GET /api/v1/ws.
type Handler struct {
	upgrader websocket.Upgrader
	source   aggregator.Source
	auth     sse.Authenticator
	location *time.Location
	logger   *slog.Logger
}

// NewHandler creates a WebSocket handler. allowedOrigins restricts the
// Origin header; empty or "*" allows any origin.
func NewHandler(source aggregator.Source, auth sse.Authenticator, loc *time.Location, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &Handler{source: source, auth: auth, location: loc, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
				return true
			}
			return slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// ServeHTTP authenticates, upgrades and streams snapshots until either side
// closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, err := h.auth.Actor(r.Context(), sse.BearerToken(r))
	if err != nil {
		response.Unauthorized(w, "invalid or expired token", h.logger)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// The request context is not canceled for hijacked connections.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agg := aggregator.New(h.source, aggregator.Options{
		Logger:   h.logger,
		Location: h.location,
		UserID:   actor.ID(),
	})
	defer agg.Close()
	if err := agg.Start(ctx); err != nil {
		h.logger.Error("failed to start websocket aggregator", "error", err)
		_ = h.write(conn, Message{Type: TypeError, Data: "failed to establish stream"})
		return
	}

	log := h.logger.With("user_id", actor.ID())
	log.Debug("websocket connected")

	if err := h.write(conn, Message{Type: TypeConnected, Data: map[string]string{"user_id": actor.ID()}}); err != nil {
		return
	}

	criteriaCh := make(chan filter.Criteria, 1)
	go h.readLoop(ctx, cancel, conn, criteriaCh, log)

	criteria := filter.FromQuery(r.URL.Query())
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-agg.Updates():
		case c := <-criteriaCh:
			criteria = c
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			continue
		case <-agg.Done():
			return
		case <-ctx.Done():
			log.Debug("websocket closed")
			return
		}

		snap := sse.NewSnapshot(agg.Events(), agg.Status(), criteria)
		if err := h.write(conn, Message{Type: TypeSnapshot, Data: snap}); err != nil {
			log.Debug("websocket write failed", "error", err)
			return
		}
	}
}

// readLoop owns reads. It ends the connection on any read error.
func (h *Handler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, criteriaCh chan filter.Criteria, log *slog.Logger) {
	defer cancel()

	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read error", "error", err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != TypeCriteria {
			log.Debug("ignoring websocket message", "type", msg.Type)
			continue
		}
		var c filter.Criteria
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			continue
		}

		// Keep only the newest criteria.
		select {
		case <-criteriaCh:
		default:
		}
		select {
		case criteriaCh <- c:
		case <-ctx.Done():
			return
		}
	}
}

// write is only called from the ServeHTTP goroutine.
func (h *Handler) write(conn *websocket.Conn, msg Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
