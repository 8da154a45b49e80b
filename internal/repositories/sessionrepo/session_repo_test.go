package sessionrepo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuncanbit/paylink/internal/domain"
	"github.com/tuncanbit/paylink/internal/infrastructure/database"
	sessionRepo "github.com/tuncanbit/paylink/internal/repositories/sessionrepo/gen"
	"github.com/tuncanbit/paylink/pkg/config"
)

func rowFromParams(p sessionRepo.UpsertPaymentSessionParams) sessionRepo.PaymentSession {
	return sessionRepo.PaymentSession(p)
}

func failedSession() *domain.PaymentSession {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.PaymentSession{
		SessionID:      "sess-1",
		State:          domain.StateFailed,
		Amount:         decimal.RequireFromString("10.00"),
		Currency:       "USD",
		Merchant:       "Corner Cafe",
		PaymentLink:    "https://pay.example.com/pay/sess-1",
		SelectedOption: &domain.PaymentOption{ID: "opt-usdc", Asset: "USDC", Amount: decimal.RequireFromString("10.00")},
		Error:          domain.NewPaymentError(domain.CodeConfirmPaymentError, "Insufficient funds", nil),
		CreatedAt:      now,
		UpdatedAt:      now.Add(time.Minute),
	}
}

func TestConvert(t *testing.T) {
	in := failedSession()

	params, err := convertToDB("pos-1", in)
	require.NoError(t, err)
	assert.Equal(t, "pos-1", params.TerminalID)
	assert.True(t, params.SelectedOption.Valid)
	assert.Equal(t, "ConfirmPaymentError", params.ErrorCode.String)
	assert.False(t, params.TxID.Valid)

	row := rowFromParams(params)
	out, err := convertFromDB(&row)
	require.NoError(t, err)

	assert.Equal(t, in.SessionID, out.SessionID)
	assert.Equal(t, in.State, out.State)
	assert.True(t, in.Amount.Equal(out.Amount))
	assert.Equal(t, "opt-usdc", out.SelectedOption.ID)
	assert.Equal(t, domain.CodeConfirmPaymentError, out.Error.Code)
	assert.Equal(t, "Insufficient funds", out.Error.Detail)
}

func TestConvertFromDB_BadAmount(t *testing.T) {
	params, err := convertToDB("pos-1", failedSession())
	require.NoError(t, err)
	row := rowFromParams(params)
	row.Amount = "ten"

	_, err = convertFromDB(&row)
	assert.Error(t, err)
}

func TestRepository_Postgres(t *testing.T) {
	if os.Getenv("PAYLINK_TEST_DB_HOST") == "" {
		t.Skip("PAYLINK_TEST_DB_HOST not set")
	}

	db, err := database.New(&config.DatabaseConfig{
		Host:     os.Getenv("PAYLINK_TEST_DB_HOST"),
		Port:     os.Getenv("PAYLINK_TEST_DB_PORT"),
		User:     os.Getenv("PAYLINK_TEST_DB_USER"),
		Password: os.Getenv("PAYLINK_TEST_DB_PASSWORD"),
		DBName:   os.Getenv("PAYLINK_TEST_DB_NAME"),
	})
	require.NoError(t, err)
	defer db.ShutDown()
	require.NoError(t, Migrate(context.Background(), db))

	repo := New(db, zerolog.Nop())
	ctx := context.Background()

	session := failedSession()
	session.SessionID = "sess-" + time.Now().Format("150405.000000")
	require.NoError(t, repo.UpsertSession(ctx, "pos-1", session))

	stale := session.Clone()
	stale.State = domain.StateConnecting
	stale.Error = nil
	stale.UpdatedAt = session.UpdatedAt.Add(-time.Hour)
	require.NoError(t, repo.UpsertSession(ctx, "pos-1", stale))

	got, err := repo.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, got.State)

	_, err = repo.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
