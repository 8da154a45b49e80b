package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tuncanbit/paylink/internal/application/terminal"
	"github.com/tuncanbit/paylink/internal/domain/models"
	"github.com/tuncanbit/paylink/internal/server/websocket"
)

// SessionStatusHandler streams terminal listener events to POS UIs.
type SessionStatusHandler struct {
	wsHub    *websocket.WsHub
	upgrader *gws.Upgrader
	logger   zerolog.Logger
}

func NewSessionStatusHandler(wsHub *websocket.WsHub, upgrader *gws.Upgrader, logger zerolog.Logger) *SessionStatusHandler {
	return &SessionStatusHandler{
		wsHub:    wsHub,
		upgrader: upgrader,
		logger:   logger,
	}
}

// HandleWebSocket subscribes to one session with ?session_id=, or to all
// sessions without it.
func (h *SessionStatusHandler) HandleWebSocket(c *gin.Context) {
	sessionID := c.Query("session_id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Err(err).
			Str("session_id", sessionID).
			Msg("Failed to upgrade to WebSocket")
		respond(c, http.StatusBadRequest, "Failed to establish WebSocket connection", nil)
		return
	}

	client := &websocket.WsClient{
		SessionID: sessionID,
		Conn:      conn,
	}
	h.wsHub.Register <- client
	h.logger.Info().
		Str("session_id", sessionID).
		Msg("WebSocket client registration sent")

	go func() {
		defer func() {
			h.wsHub.Unregister <- client
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.logger.Debug().Err(err).
					Str("session_id", sessionID).
					Msg("WebSocket read ended")
				return
			}
		}
	}()
}

// ForwardListenerEvents publishes every terminal listener event on hub.
// The returned func removes the listeners.
func ForwardListenerEvents(svc terminal.ITerminalService, hub *websocket.WsHub) func() {
	names := []string{
		terminal.EventPaymentSuccessful,
		terminal.EventPaymentFailed,
		terminal.EventPaymentStateChanged,
		terminal.EventPaymentBroadcast,
	}

	forward := func(ev terminal.ListenerEvent) {
		update := models.StatusUpdate{
			Type:      models.TypeListenerEvent,
			SessionID: ev.SessionID,
			Event:     ev.Name,
			State:     string(ev.State),
			Data:      ev,
		}
		if ev.Error != nil {
			update.Message = ev.Error.Detail
		}
		hub.Publish(update)
	}

	ids := make([]terminal.ListenerID, len(names))
	for i, name := range names {
		ids[i] = svc.AddListener(name, forward)
	}

	return func() {
		for i, name := range names {
			svc.RemoveListener(name, ids[i])
		}
	}
}
