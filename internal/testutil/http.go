package testutil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"

	"github.com/tuncanbit/paylink/internal/domain"
	"github.com/tuncanbit/paylink/internal/infrastructure/http/clients"
)

// Serve exposes b over HTTP with the same routes the PayClient calls.
// The server is closed when the test ends.
func (b *Backend) Serve(t interface{ Cleanup(func()) }) *httptest.Server {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.POST("/v1/payments/options", func(c *gin.Context) {
		var req domain.OptionsRequest
		if !bind(c, &req) {
			return
		}
		options, err := b.GetPaymentOptions(c.Request.Context(), req)
		reply(c, gin.H{"options": options}, err)
	})

	router.POST("/v1/payments/:id/actions", func(c *gin.Context) {
		var req domain.ActionsRequest
		if !bind(c, &req) {
			return
		}
		req.SessionID = c.Param("id")
		actions, err := b.GetRequiredPaymentActions(c.Request.Context(), req)
		reply(c, gin.H{"actions": actions}, err)
	})

	router.POST("/v1/payments/:id/confirm", func(c *gin.Context) {
		var req domain.ConfirmRequest
		if !bind(c, &req) {
			return
		}
		req.SessionID = c.Param("id")
		result, err := b.ConfirmPayment(c.Request.Context(), req)
		reply(c, result, err)
	})

	router.POST("/v1/terminals", func(c *gin.Context) {
		var reg domain.TerminalRegistration
		if !bind(c, &reg) {
			return
		}
		reply(c, gin.H{"terminal_id": reg.TerminalID}, b.RegisterTerminal(c.Request.Context(), reg))
	})

	router.DELETE("/v1/terminals/:id", func(c *gin.Context) {
		reply(c, gin.H{}, b.UnregisterTerminal(c.Request.Context(), c.Param("id")))
	})

	router.GET("/v1/terminals/:id/events", func(c *gin.Context) {
		page, err := b.ListEvents(context.Background(), c.Param("id"), c.Query("after"))
		reply(c, page, err)
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "message": err.Error()})
		return false
	}
	return true
}

func reply(c *gin.Context, body interface{}, err error) {
	if err == nil {
		c.JSON(http.StatusOK, body)
		return
	}
	var be *clients.BackendError
	if errors.As(err, &be) {
		c.JSON(be.StatusCode, be)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
}
