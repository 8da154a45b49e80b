package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tuncanbit/paylink/internal/domain"
	"github.com/tuncanbit/paylink/internal/infrastructure/events"
)

type WebhookHandler struct {
	source *events.WebhookSource
	logger zerolog.Logger
}

func NewWebhookHandler(source *events.WebhookSource, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		source: source,
		logger: logger,
	}
}

// HandlePaymentEvent queues a backend event. A full queue answers 503 so
// the backend redelivers later.
func (h *WebhookHandler) HandlePaymentEvent(c *gin.Context) {
	var event domain.PaymentEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		respond(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if event.SessionID == "" || event.Type == "" {
		respond(c, http.StatusBadRequest, "session_id and type are required", nil)
		return
	}

	if err := h.source.Push(event); err != nil {
		if errors.Is(err, events.ErrQueueFull) {
			c.Header("Retry-After", "1")
			respond(c, http.StatusServiceUnavailable, "Event queue is full", nil)
			return
		}
		h.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to queue payment event")
		respond(c, http.StatusInternalServerError, "Internal server error", nil)
		return
	}

	respond(c, http.StatusAccepted, "Event accepted", nil)
}
