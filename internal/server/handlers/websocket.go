package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tuncanbit/paylink/internal/infrastructure/proximity"
	"github.com/tuncanbit/paylink/internal/server/websocket"
)

// WebSocketHandler accepts proximity bridge connections. A bridge relays
// advertised links to the NFC/HCE hardware next to the terminal.
type WebSocketHandler struct {
	bridges    *websocket.Manager
	proximity  *proximity.HubBroadcaster
	upgrader   *gws.Upgrader
	pingPeriod time.Duration
	logger     zerolog.Logger
}

func NewWebSocketHandler(bridges *websocket.Manager, prox *proximity.HubBroadcaster, upgrader *gws.Upgrader, pingPeriod time.Duration, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		bridges:    bridges,
		proximity:  prox,
		upgrader:   upgrader,
		pingPeriod: pingPeriod,
		logger:     logger,
	}
}

func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	if h.bridges == nil {
		respond(c, http.StatusNotFound, "Proximity bridges are not enabled", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		respond(c, http.StatusBadRequest, "Failed to upgrade to WebSocket", nil)
		return
	}

	client := websocket.NewClient(conn, h.pingPeriod)

	if err := h.bridges.AddClient(client); err != nil {
		h.logger.Error().Err(err).Str("client_id", client.GetID()).Msg("Failed to add proximity bridge")
		client.Close()
		return
	}

	h.logger.Info().Str("client_id", client.GetID()).Msg("Proximity bridge connected")

	defer func() {
		h.bridges.RemoveClient(client.GetID())
		client.Close()
		h.logger.Info().Str("client_id", client.GetID()).Msg("Proximity bridge disconnected")
	}()

	if h.proximity != nil {
		h.proximity.Resend(client.GetID())
	}

	client.HandleConnection()
}
