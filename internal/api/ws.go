package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/triagestack/triage-engine/internal/activity"
	"github.com/triagestack/triage-engine/internal/models"
	"github.com/triagestack/triage-engine/internal/utils"
)

// Stream message types sent to websocket clients.
const (
	wsTypeActivity = "activity"
	wsTypeResult   = "result"
	wsTypeError    = "error"
)

type wsMessage struct {
	Type      string                   `json:"type"`
	SessionID string                   `json:"session_id,omitempty"`
	Event     *models.ActivityEvent    `json:"event,omitempty"`
	Result    *models.ProcessingResult `json:"result,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// handleTriageStream upgrades to a websocket, reads one triage request, and
// streams the session's activity events as they are emitted, followed by the
// final result. The engine runs on this goroutine, so writes never interleave.
func (h *Handler) handleTriageStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("stream upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxRequestBytes)

	var req triageRequest
	if err := conn.ReadJSON(&req); err != nil {
		conn.WriteJSON(wsMessage{Type: wsTypeError, Error: "invalid request: " + err.Error()})
		return
	}

	sink := activity.SinkFunc(func(sessionID string, event models.ActivityEvent) {
		ev := event
		if err := conn.WriteJSON(wsMessage{Type: wsTypeActivity, SessionID: sessionID, Event: &ev}); err != nil {
			h.logger.Debug("stream write failed", slog.String("session_id", sessionID), slog.Any("error", err))
		}
	})

	result, err := h.service.Triage(r.Context(), req.scenario(), sink)
	if err != nil {
		msg := "triage failed"
		if utils.IsKind(err, utils.KindValidation) {
			msg = err.Error()
		}
		conn.WriteJSON(wsMessage{Type: wsTypeError, Error: msg})
		return
	}
	conn.WriteJSON(wsMessage{Type: wsTypeResult, SessionID: result.SessionID, Result: &result})
}
