package proximity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tuncanbit/paylink/internal/domain/interfaces"
	"github.com/tuncanbit/paylink/internal/domain/models"
)

// HubBroadcaster pushes payloads to NFC/HCE bridge processes connected over
// websocket. With no bridge connected the channel is unavailable.
type HubBroadcaster struct {
	bridges interfaces.WebSocketManager

	mu      sync.Mutex
	current string

	logger zerolog.Logger
}

func NewHubBroadcaster(bridges interfaces.WebSocketManager, logger zerolog.Logger) *HubBroadcaster {
	return &HubBroadcaster{
		bridges: bridges,
		logger:  logger.With().Str("component", "proximity").Logger(),
	}
}

func (b *HubBroadcaster) Advertise(ctx context.Context, payload string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Unavailable, err
	}
	if b.bridges.GetClientCount() == 0 {
		b.logger.Info().Msg("No proximity bridge connected")
		return Unavailable, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.bridges.Broadcast(advertiseMessage(payload)); err != nil {
		b.logger.Warn().Err(err).Msg("Proximity bridges did not accept the payload")
		return Unavailable, nil
	}

	b.current = payload
	b.logger.Info().Int("bridge_count", b.bridges.GetClientCount()).Msg("Advertising payment link")
	return Started, nil
}

func (b *HubBroadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == "" {
		return
	}
	b.current = ""

	err := b.bridges.Broadcast(&models.StatusUpdate{
		Type:      models.TypeProximityStop,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		b.logger.Debug().Err(err).Msg("No bridge received the stop message")
	}
}

func (b *HubBroadcaster) IsSupported() bool {
	return b.bridges.GetClientCount() > 0
}

// Resend pushes the active payload to a bridge that connected after
// Advertise was called.
func (b *HubBroadcaster) Resend(clientID string) {
	b.mu.Lock()
	payload := b.current
	b.mu.Unlock()

	if payload == "" {
		return
	}
	if err := b.bridges.SendToClient(clientID, advertiseMessage(payload)); err != nil {
		b.logger.Warn().Err(err).Str("client_id", clientID).Msg("Failed to resend payment link")
	}
}

func advertiseMessage(payload string) *models.StatusUpdate {
	return &models.StatusUpdate{
		Type:      models.TypeProximityAdvertise,
		Data:      map[string]string{"payload": payload},
		Timestamp: time.Now().UTC(),
	}
}
