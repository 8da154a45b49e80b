package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuncanbit/paylink/internal/application/terminal"
	"github.com/tuncanbit/paylink/internal/domain"
	"github.com/tuncanbit/paylink/internal/infrastructure/events"
	"github.com/tuncanbit/paylink/internal/infrastructure/proximity"
	"github.com/tuncanbit/paylink/internal/server/middleware"
	"github.com/tuncanbit/paylink/internal/server/websocket"
	"github.com/tuncanbit/paylink/pkg/config"
)

const apiKey = "pos-secret"

type nopBackend struct{}

func (nopBackend) RegisterTerminal(context.Context, domain.TerminalRegistration) error { return nil }
func (nopBackend) UnregisterTerminal(context.Context, string) error                    { return nil }
func (nopBackend) ListEvents(context.Context, string, string) (*domain.EventPage, error) {
	return &domain.EventPage{}, nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type testServer struct {
	router   *gin.Engine
	terminal terminal.ITerminalService
	webhook  *events.WebhookSource
}

func newTestServer(t *testing.T, initialized bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Security.APIKey = apiKey
	cfg.Security.WebhookSecret = "hook-secret"

	svc := terminal.New(cfg.Session, proximity.NewLoopback(8), func(terminal.PaymentConfig) terminal.Backend { return nopBackend{} }, nil, zerolog.Nop())
	if initialized {
		require.True(t, svc.Initialize(terminal.PaymentConfig{
			ProjectID:   "proj",
			APIKey:      "key",
			TerminalID:  "pos-1",
			LinkBaseURL: "https://pay.example.com",
		}))
	}

	webhook := events.NewWebhookSource(4, zerolog.Nop())
	router := gin.New()
	middleware.NewMiddleware(zerolog.Nop()).SetupMiddleware(router)

	h := &Handlers{
		Terminal: svc,
		Webhook:  webhook,
		WsHub:    websocket.NewWsHub(zerolog.Nop()),
		Bridges:  websocket.NewManager(zerolog.Nop()),
		Config:   cfg,
		Logger:   zerolog.Nop(),
	}
	h.SetupHandlers(router)

	return &testServer{router: router, terminal: svc, webhook: webhook}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, domain.ApiResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp domain.ApiResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func sessionIDOf(t *testing.T, resp domain.ApiResponse) string {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	id, ok := data["session_id"].(string)
	require.True(t, ok)
	return id
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, true)

	rec, _ := s.do(t, http.MethodGet, "/health", nil, map[string]string{"X-API-Key": ""})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	disabled := newTestServer(t, false)
	rec, _ = disabled.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "disabled")
}

func TestReady_DatabaseDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := terminal.New(config.SessionConfig{}, nil, func(terminal.PaymentConfig) terminal.Backend { return nopBackend{} }, nil, zerolog.Nop())
	svc.Initialize(terminal.PaymentConfig{ProjectID: "p", APIKey: "k"})

	router := gin.New()
	router.GET("/ready", NewHealthHandler(svc, failingPinger{}).Ready)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestAPIKeyRequired(t *testing.T) {
	s := newTestServer(t, true)

	rec, resp := s.do(t, http.MethodGet, "/v1/payments/abc", nil, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.Success)

	rec, _ = s.do(t, http.MethodGet, "/v1/payments/abc?api_key="+apiKey, nil, map[string]string{"X-API-Key": ""})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/v1/payments/abc", nil, map[string]string{"X-API-Key": "", "Authorization": "Bearer " + apiKey})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentLifecycle(t *testing.T) {
	s := newTestServer(t, true)

	rec, resp := s.do(t, http.MethodPost, "/v1/payments", CreatePaymentRequest{Amount: "10.00", Currency: "usd"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, string(proximity.Started), data["broadcast"])
	assert.Contains(t, data["payment_link"], "https://pay.example.com/pay/")
	sessionID := sessionIDOf(t, resp)

	rec, resp = s.do(t, http.MethodGet, "/v1/payments/"+sessionID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(domain.StateConnecting), resp.Data.(map[string]interface{})["state"])

	rec, _ = s.do(t, http.MethodPost, "/v1/payments/"+sessionID+"/ack", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, resp = s.do(t, http.MethodPost, "/v1/payments/"+sessionID+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(domain.StateFailed), resp.Data.(map[string]interface{})["state"])

	rec, _ = s.do(t, http.MethodPost, "/v1/payments/"+sessionID+"/cancel", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/v1/payments/"+sessionID+"/ack", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/v1/payments/"+sessionID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreatePayment_Errors(t *testing.T) {
	s := newTestServer(t, true)

	rec, _ := s.do(t, http.MethodPost, "/v1/payments", map[string]string{"currency": "USD"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/v1/payments", CreatePaymentRequest{Amount: "ten", Currency: "USD"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := s.do(t, http.MethodPost, "/v1/payments", CreatePaymentRequest{Amount: "10.001", Currency: "USD"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, resp.Message)

	disabled := newTestServer(t, false)
	rec, _ = disabled.do(t, http.MethodPost, "/v1/payments", CreatePaymentRequest{Amount: "10.00", Currency: "USD"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebhook(t *testing.T) {
	s := newTestServer(t, true)

	_, resp := s.do(t, http.MethodPost, "/v1/payments", CreatePaymentRequest{Amount: "10.00", Currency: "USD"}, nil)
	sessionID := sessionIDOf(t, resp)

	event := domain.PaymentEvent{ID: "evt-1", Type: domain.EventSucceeded, SessionID: sessionID, TxID: "tx-1"}

	rec, _ := s.do(t, http.MethodPost, "/v1/webhooks/payments", event, map[string]string{"X-Webhook-Secret": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/v1/webhooks/payments", domain.PaymentEvent{ID: "x"}, map[string]string{"X-Webhook-Secret": "hook-secret"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/v1/webhooks/payments", event, map[string]string{"X-Webhook-Secret": "hook-secret", "X-API-Key": ""})
	require.Equal(t, http.StatusAccepted, rec.Code)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.terminal.Run(ctx, s.webhook) }()

	require.Eventually(t, func() bool {
		session, err := s.terminal.Session(context.Background(), sessionID)
		return err == nil && session.State == domain.StateCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestForwardListenerEvents(t *testing.T) {
	svc := terminal.New(config.SessionConfig{}, nil, func(terminal.PaymentConfig) terminal.Backend { return nopBackend{} }, nil, zerolog.Nop())
	require.True(t, svc.Initialize(terminal.PaymentConfig{ProjectID: "p", APIKey: "k", LinkBaseURL: "https://pay.example.com"}))

	hub := websocket.NewWsHub(zerolog.Nop())
	stop := ForwardListenerEvents(svc, hub)

	req, err := svc.CreatePaymentRequest(context.Background(), mustDecimal(t, "5.00"), "EUR", "")
	require.NoError(t, err)

	var update = <-hub.Broadcast
	assert.Equal(t, req.SessionID, update.SessionID)
	assert.Equal(t, terminal.EventPaymentStateChanged, update.Event)
	assert.Equal(t, string(domain.StateConnecting), update.State)

	update = <-hub.Broadcast
	assert.Equal(t, terminal.EventPaymentBroadcast, update.Event)

	stop()
	require.NoError(t, svc.Cancel(req.SessionID))
	assert.Empty(t, hub.Broadcast)
}

func mustDecimal(t *testing.T, v string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(v)
	require.NoError(t, err)
	return d
}
