package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tuncanbit/paylink/internal/application/terminal"
	"github.com/tuncanbit/paylink/internal/domain"
	"github.com/tuncanbit/paylink/internal/infrastructure/events"
	"github.com/tuncanbit/paylink/internal/infrastructure/proximity"
	"github.com/tuncanbit/paylink/internal/server/middleware"
	"github.com/tuncanbit/paylink/internal/server/websocket"
	"github.com/tuncanbit/paylink/pkg/config"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Terminal terminal.ITerminalService
	// Webhook is nil unless backend events arrive over HTTP.
	Webhook *events.WebhookSource
	WsHub   *websocket.WsHub
	Bridges *websocket.Manager
	// Proximity is nil when no bridge channel is configured.
	Proximity *proximity.HubBroadcaster
	Database  Pinger
	Config    *config.Config
	Logger    zerolog.Logger
}

func (h *Handlers) SetupHandlers(router *gin.Engine) {
	upgrader := newUpgrader(h.Config.WebSocket)

	healthHandler := NewHealthHandler(h.Terminal, h.Database)
	paymentHandler := NewPaymentHandler(h.Terminal, h.Logger)
	statusHandler := NewSessionStatusHandler(h.WsHub, upgrader, h.Logger)
	bridgeHandler := NewWebSocketHandler(h.Bridges, h.Proximity, upgrader, h.Config.WebSocket.PingPeriod, h.Logger)

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/v1")

	if h.Webhook != nil {
		webhookHandler := NewWebhookHandler(h.Webhook, h.Logger)
		v1.POST("/webhooks/payments", middleware.SharedSecret("X-Webhook-Secret", h.Config.Security.WebhookSecret), webhookHandler.HandlePaymentEvent)
	}

	api := v1.Group("")
	api.Use(middleware.APIKeyAuth(h.Config.Security.APIKey))
	{
		payments := api.Group("/payments")
		{
			payments.POST("", paymentHandler.CreatePayment)
			payments.GET("/:session_id", paymentHandler.GetPayment)
			payments.POST("/:session_id/cancel", paymentHandler.CancelPayment)
			payments.POST("/:session_id/ack", paymentHandler.AcknowledgePayment)
		}

		ws := api.Group("/ws")
		{
			ws.GET("/events", statusHandler.HandleWebSocket)
			ws.GET("/proximity", bridgeHandler.HandleConnection)
		}
	}
}

func newUpgrader(cfg config.WebSocketConfig) *gws.Upgrader {
	upgrader := &gws.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
	}
	if !cfg.CheckOrigin {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return upgrader
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, domain.ApiResponse{
		Message: message,
		Success: status < http.StatusBadRequest,
		Status:  status,
		Data:    data,
	})
}
