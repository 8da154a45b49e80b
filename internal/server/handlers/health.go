package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tuncanbit/paylink/internal/application/terminal"
)

type HealthHandler struct {
	terminal terminal.ITerminalService
	database Pinger
}

func NewHealthHandler(terminal terminal.ITerminalService, database Pinger) *HealthHandler {
	return &HealthHandler{
		terminal: terminal,
		database: database,
	}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "paylink-pos",
		"version":   "1.0.0",
		"timestamp": time.Now(),
	})
}

// Ready fails while payments are soft-disabled or the database is down.
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := gin.H{"payments": "ok"}
	status := http.StatusOK

	if h.terminal.GetClient() == nil {
		checks["payments"] = "disabled"
		status = http.StatusServiceUnavailable
	}

	if h.database != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks["database"] = "ok"
		if err := h.database.Ping(ctx); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"service":   "paylink-pos",
		"checks":    checks,
		"timestamp": time.Now(),
	})
}
