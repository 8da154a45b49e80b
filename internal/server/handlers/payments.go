package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tuncanbit/paylink/internal/application/paymentsession"
	"github.com/tuncanbit/paylink/internal/application/terminal"
	"github.com/tuncanbit/paylink/internal/domain"
)

type PaymentHandler struct {
	terminal terminal.ITerminalService
	logger   zerolog.Logger
}

func NewPaymentHandler(terminal terminal.ITerminalService, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{
		terminal: terminal,
		logger:   logger,
	}
}

type CreatePaymentRequest struct {
	Amount   string `json:"amount" binding:"required"`
	Currency string `json:"currency" binding:"required"`
	Merchant string `json:"merchant"`
}

func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respond(c, http.StatusBadRequest, "Amount must be a decimal number", nil)
		return
	}

	created, err := h.terminal.CreatePaymentRequest(c.Request.Context(), amount, req.Currency, req.Merchant)
	if err != nil {
		h.fail(c, err, "")
		return
	}

	respond(c, http.StatusCreated, "Payment request created", created)
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	sessionID := c.Param("session_id")

	session, err := h.terminal.Session(c.Request.Context(), sessionID)
	if err != nil {
		h.fail(c, err, sessionID)
		return
	}

	respond(c, http.StatusOK, "Payment session", session)
}

func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	sessionID := c.Param("session_id")

	if err := h.terminal.Cancel(sessionID); err != nil {
		h.fail(c, err, sessionID)
		return
	}

	session, err := h.terminal.Session(c.Request.Context(), sessionID)
	if err != nil {
		h.fail(c, err, sessionID)
		return
	}
	respond(c, http.StatusOK, "Payment cancelled", session)
}

func (h *PaymentHandler) AcknowledgePayment(c *gin.Context) {
	sessionID := c.Param("session_id")

	if err := h.terminal.Acknowledge(sessionID); err != nil {
		h.fail(c, err, sessionID)
		return
	}
	respond(c, http.StatusOK, "Payment acknowledged", nil)
}

func (h *PaymentHandler) fail(c *gin.Context, err error, sessionID string) {
	switch {
	case errors.Is(err, terminal.ErrNotInitialized):
		respond(c, http.StatusServiceUnavailable, "Payments are not configured on this terminal", nil)
	case errors.Is(err, paymentsession.ErrSessionNotFound):
		respond(c, http.StatusNotFound, "Payment session not found", nil)
	case errors.Is(err, paymentsession.ErrNotFinished):
		respond(c, http.StatusConflict, "Payment session has not finished", nil)
	case errors.Is(err, domain.ErrInvalidTransition):
		respond(c, http.StatusConflict, "Payment session already finished", nil)
	case domain.CodeOf(err) == domain.CodeValidationError:
		var perr *domain.PaymentError
		errors.As(err, &perr)
		respond(c, http.StatusBadRequest, perr.Detail, nil)
	default:
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("Payment request failed")
		respond(c, http.StatusInternalServerError, "Internal server error", nil)
	}
}
