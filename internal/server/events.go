package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const eventWriteWait = 10 * time.Second

// Events handles GET /sessions/{id}/events requests. It upgrades to a
// WebSocket and streams a status event for the current state and after every
// transition until the client disconnects or the session is removed.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		h.logger.Warn("websocket upgrade failed",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer func() { _ = conn.Close() }()

	updates, unsubscribe := s.Controller.Subscribe()
	defer unsubscribe()

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("websocket read error",
						slog.String("session_id", s.ID),
						slog.String("error", err.Error()),
					)
				}
				return
			}
		}
	}()

	h.logger.Info("event stream opened", slog.String("session_id", s.ID))
	defer h.logger.Info("event stream closed", slog.String("session_id", s.ID))

	for {
		select {
		case snap, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			event := EventMessage{
				Type:    "status",
				Session: toSessionResponse(s.ID, snap, false),
			}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("websocket write failed",
					slog.String("session_id", s.ID),
					slog.String("error", err.Error()),
				)
				return
			}
		case <-gone:
			return
		}
	}
}

// originChecker allows a WebSocket handshake from any of the listed origins.
// "*" allows all; a request without an Origin header is always allowed.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, ao := range allowed {
			if ao == "*" || ao == origin {
				return true
			}
		}
		return false
	}
}
