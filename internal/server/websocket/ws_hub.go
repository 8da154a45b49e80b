package websocket

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tuncanbit/paylink/internal/domain/models"
)

// AllSessions subscribes a client to every session's updates.
const AllSessions = "*"

// WsHub fans terminal listener events out to POS UI connections, keyed by
// the session they watch.
type WsHub struct {
	Clients    map[string]map[*websocket.Conn]bool
	Broadcast  chan models.StatusUpdate
	Register   chan *WsClient
	Unregister chan *WsClient
	Logger     zerolog.Logger
}

type WsClient struct {
	SessionID string
	Conn      *websocket.Conn
}

func NewWsHub(logger zerolog.Logger) *WsHub {
	return &WsHub{
		Clients:    make(map[string]map[*websocket.Conn]bool),
		Broadcast:  make(chan models.StatusUpdate, 100),
		Register:   make(chan *WsClient, 100),
		Unregister: make(chan *WsClient, 100),
		Logger:     logger,
	}
}

func (h *WsHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for key, clients := range h.Clients {
				for conn := range clients {
					conn.Close()
				}
				delete(h.Clients, key)
			}
			return

		case client := <-h.Register:
			key := client.SessionID
			if key == "" {
				key = AllSessions
			}
			if h.Clients[key] == nil {
				h.Clients[key] = make(map[*websocket.Conn]bool)
			}
			h.Clients[key][client.Conn] = true
			h.Logger.Info().
				Str("session_id", key).
				Int("connection_count", len(h.Clients[key])).
				Msg("WebSocket client registered successfully")

		case client := <-h.Unregister:
			key := client.SessionID
			if key == "" {
				key = AllSessions
			}
			if clients, ok := h.Clients[key]; ok {
				if _, ok := clients[client.Conn]; ok {
					delete(clients, client.Conn)
					client.Conn.Close()
				}
				h.Logger.Info().
					Str("session_id", key).
					Int("connection_count", len(clients)).
					Msg("WebSocket client unregistered")
				if len(clients) == 0 {
					delete(h.Clients, key)
				}
			}

		case message := <-h.Broadcast:
			sent := h.deliver(message.SessionID, message)
			sent += h.deliver(AllSessions, message)

			h.Logger.Debug().
				Str("session_id", message.SessionID).
				Str("event", message.Event).
				Int("client_count", sent).
				Msg("Broadcast payment update")
		}
	}
}

func (h *WsHub) deliver(key string, message models.StatusUpdate) int {
	clients, ok := h.Clients[key]
	if !ok || key == "" {
		return 0
	}

	sent := 0
	for conn := range clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(message); err != nil {
			h.Logger.Err(err).
				Str("session_id", message.SessionID).
				Str("event", message.Event).
				Msg("Failed to send WebSocket message")
			conn.Close()
			delete(clients, conn)
			continue
		}
		sent++
	}
	if len(clients) == 0 {
		delete(h.Clients, key)
	}
	return sent
}

// Publish queues update for delivery. A full queue drops the update so the
// caller never blocks on slow UIs.
func (h *WsHub) Publish(update models.StatusUpdate) {
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now().UTC()
	}

	select {
	case h.Broadcast <- update:
	default:
		h.Logger.Warn().
			Str("session_id", update.SessionID).
			Str("event", update.Event).
			Msg("WebSocket broadcast queue full, dropping update")
	}
}
