package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tuncanbit/paylink/internal/domain"
	"github.com/tuncanbit/paylink/pkg/config"
)

// PayClient talks to the payment backend for both the terminal and the
// wallet.
type PayClient struct {
	baseURL    string
	projectID  string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     zerolog.Logger
}

func NewPayClient(cfg config.PaymentConfig, logger zerolog.Logger) *PayClient {
	return &PayClient{
		baseURL:   cfg.BackendURL,
		projectID: cfg.ProjectID,
		apiKey:    cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryBackoffBase,
		logger:     logger.With().Str("component", "pay_client").Logger(),
	}
}

// GetPaymentOptions is sent once. A backend failure is the payment's
// outcome and is reported to the caller rather than retried.
func (c *PayClient) GetPaymentOptions(ctx context.Context, req domain.OptionsRequest) ([]domain.PaymentOption, error) {
	var response struct {
		Options []domain.PaymentOption `json:"options"`
	}
	if err := c.makeRequest(ctx, http.MethodPost, "/v1/payments/options", req, &response, 0, nil); err != nil {
		return nil, fmt.Errorf("failed to get payment options: %w", err)
	}

	return response.Options, nil
}

// GetRequiredPaymentActions is sent once, like GetPaymentOptions.
func (c *PayClient) GetRequiredPaymentActions(ctx context.Context, req domain.ActionsRequest) ([]domain.RequiredAction, error) {
	endpoint := fmt.Sprintf("/v1/payments/%s/actions", url.PathEscape(req.SessionID))

	var response struct {
		Actions []domain.RequiredAction `json:"actions"`
	}
	if err := c.makeRequest(ctx, http.MethodPost, endpoint, req, &response, 0, nil); err != nil {
		return nil, fmt.Errorf("failed to get required actions for %s: %w", req.SessionID, err)
	}

	return response.Actions, nil
}

// ConfirmPayment submits a signed payment once. The caller owns retries;
// the idempotency key is derived from the signature so the backend can
// recognise a resend of the same authorization.
func (c *PayClient) ConfirmPayment(ctx context.Context, req domain.ConfirmRequest) (*domain.ConfirmResult, error) {
	endpoint := fmt.Sprintf("/v1/payments/%s/confirm", url.PathEscape(req.SessionID))
	headers := map[string]string{
		"Idempotency-Key": uuid.NewSHA1(uuid.NameSpaceURL, []byte(req.SessionID+":"+req.Signature)).String(),
	}

	var result domain.ConfirmResult
	if err := c.makeRequest(ctx, http.MethodPost, endpoint, req, &result, 0, headers); err != nil {
		return nil, fmt.Errorf("failed to confirm payment %s: %w", req.SessionID, err)
	}

	return &result, nil
}

func (c *PayClient) RegisterTerminal(ctx context.Context, reg domain.TerminalRegistration) error {
	if err := c.makeRequest(ctx, http.MethodPost, "/v1/terminals", reg, nil, c.maxRetries, nil); err != nil {
		return fmt.Errorf("failed to register terminal %s: %w", reg.TerminalID, err)
	}
	return nil
}

func (c *PayClient) UnregisterTerminal(ctx context.Context, terminalID string) error {
	endpoint := fmt.Sprintf("/v1/terminals/%s", url.PathEscape(terminalID))
	if err := c.makeRequest(ctx, http.MethodDelete, endpoint, nil, nil, c.maxRetries, nil); err != nil {
		return fmt.Errorf("failed to unregister terminal %s: %w", terminalID, err)
	}
	return nil
}

// ListEvents returns the terminal's events after cursor.
func (c *PayClient) ListEvents(ctx context.Context, terminalID, cursor string) (*domain.EventPage, error) {
	endpoint := fmt.Sprintf("/v1/terminals/%s/events", url.PathEscape(terminalID))
	if cursor != "" {
		params := url.Values{}
		params.Set("after", cursor)
		endpoint += "?" + params.Encode()
	}

	var page domain.EventPage
	if err := c.makeRequest(ctx, http.MethodGet, endpoint, nil, &page, c.maxRetries, nil); err != nil {
		return nil, fmt.Errorf("failed to list events for terminal %s: %w", terminalID, err)
	}

	return &page, nil
}

// makeRequest makes an HTTP request, retrying transport faults and 5xx
// responses up to retries times with exponential backoff. 4xx responses are
// returned immediately.
func (c *PayClient) makeRequest(ctx context.Context, method, endpoint string, body interface{}, response interface{}, retries int, headers map[string]string) error {
	fullURL := c.baseURL + endpoint

	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &BackendError{Transport: true, Err: ctx.Err()}
			case <-time.After(c.retryDelay * time.Duration(1<<(attempt-1))):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(reqBody))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.projectID != "" {
			req.Header.Set("X-Project-Id", c.projectID)
		}
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &BackendError{Transport: true, Err: err}
			c.logger.Warn().Err(err).Int("attempt", attempt+1).Str("url", fullURL).Msg("Backend request failed")
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = &BackendError{Transport: true, Err: fmt.Errorf("failed to read response body: %w", err)}
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if response != nil && len(respBody) > 0 {
				if err := json.Unmarshal(respBody, response); err != nil {
					return fmt.Errorf("failed to unmarshal response: %w", err)
				}
			}
			return nil
		}

		backendErr := decodeError(resp.StatusCode, respBody)
		if resp.StatusCode >= 500 {
			lastErr = backendErr
			c.logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).Str("url", fullURL).Msg("Backend server error")
			continue
		}

		return backendErr
	}

	c.logger.Error().Err(lastErr).Str("url", fullURL).Int("max_retries", retries).Msg("Backend request failed after all retries")
	return lastErr
}

func decodeError(status int, body []byte) *BackendError {
	backendErr := &BackendError{StatusCode: status}
	if err := json.Unmarshal(body, backendErr); err != nil || (backendErr.Code == "" && backendErr.Message == "") {
		backendErr.Message = string(bytes.TrimSpace(body))
	}
	backendErr.StatusCode = status
	return backendErr
}
