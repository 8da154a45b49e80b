package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/paylink/internal/domain/interfaces"
	"github.com/tuncanbit/paylink/internal/domain/models"
)

// Manager tracks a flat set of clients. The proximity bridges connect here.
type Manager struct {
	clients   map[string]interfaces.WebSocketClient
	clientsMu sync.RWMutex
	logger    zerolog.Logger
}

func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		clients: make(map[string]interfaces.WebSocketClient),
		logger:  logger,
	}
}

func (m *Manager) AddClient(client interfaces.WebSocketClient) error {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	m.clients[client.GetID()] = client

	m.logger.Info().
		Str("client_id", client.GetID()).
		Int("total_clients", len(m.clients)).
		Msg("WebSocket client added")

	return nil
}

func (m *Manager) RemoveClient(clientID string) error {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	if client, exists := m.clients[clientID]; exists {
		client.Close()
		delete(m.clients, clientID)

		m.logger.Info().
			Str("client_id", clientID).
			Int("total_clients", len(m.clients)).
			Msg("WebSocket client removed")
	}

	return nil
}

// Broadcast sends message to every client. Per-client failures are logged
// and inactive clients are dropped; the call itself only fails when there
// was nobody to deliver to.
func (m *Manager) Broadcast(message *models.StatusUpdate) error {
	m.clientsMu.RLock()
	clients := make([]interfaces.WebSocketClient, 0, len(m.clients))
	for _, client := range m.clients {
		clients = append(clients, client)
	}
	m.clientsMu.RUnlock()

	if len(clients) == 0 {
		return ErrClientNotFound
	}

	successCount := 0
	for _, c := range clients {
		if err := c.Send(message); err != nil {
			m.logger.Error().
				Err(err).
				Str("client_id", c.GetID()).
				Msg("Failed to send message to WebSocket client")

			if !c.IsActive() {
				m.RemoveClient(c.GetID())
			}
			continue
		}
		successCount++
	}

	m.logger.Debug().
		Int("success_count", successCount).
		Int("failure_count", len(clients)-successCount).
		Int("total_clients", len(clients)).
		Str("message_type", message.Type).
		Msg("Broadcast completed")

	if successCount == 0 {
		return ErrClientInactive
	}
	return nil
}

func (m *Manager) SendToClient(clientID string, message *models.StatusUpdate) error {
	m.clientsMu.RLock()
	client, exists := m.clients[clientID]
	m.clientsMu.RUnlock()

	if !exists {
		return ErrClientNotFound
	}

	if err := client.Send(message); err != nil {
		m.logger.Error().
			Err(err).
			Str("client_id", clientID).
			Msg("Failed to send message to specific WebSocket client")

		if !client.IsActive() {
			m.RemoveClient(clientID)
		}
		return err
	}

	return nil
}

// GetClientCount returns the number of active clients.
func (m *Manager) GetClientCount() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()

	count := 0
	for _, client := range m.clients {
		if client.IsActive() {
			count++
		}
	}
	return count
}

// Run removes inactive clients on every tick until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanupInactiveClients()
		}
	}
}

func (m *Manager) cleanupInactiveClients() {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	inactiveClients := make([]string, 0)
	for clientID, client := range m.clients {
		if !client.IsActive() {
			inactiveClients = append(inactiveClients, clientID)
		}
	}

	for _, clientID := range inactiveClients {
		m.clients[clientID].Close()
		delete(m.clients, clientID)
	}

	if len(inactiveClients) > 0 {
		m.logger.Info().
			Int("removed_count", len(inactiveClients)).
			Int("active_clients", len(m.clients)).
			Msg("Cleaned up inactive WebSocket clients")
	}
}
