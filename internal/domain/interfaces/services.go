package interfaces

import (
	"github.com/tuncanbit/paylink/internal/domain/models"
)

// WebSocketManager defines the interface for WebSocket management
type WebSocketManager interface {
	AddClient(client WebSocketClient) error
	RemoveClient(clientID string) error
	Broadcast(message *models.StatusUpdate) error
	SendToClient(clientID string, message *models.StatusUpdate) error
	GetClientCount() int
}

type WebSocketClient interface {
	GetID() string
	Send(message *models.StatusUpdate) error
	Close() error
	IsActive() bool
	HandleConnection()
}
