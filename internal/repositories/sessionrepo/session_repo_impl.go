package sessionrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sqlc-dev/pqtype"

	"github.com/tuncanbit/paylink/internal/domain"
	"github.com/tuncanbit/paylink/internal/infrastructure/database"
	sessionRepo "github.com/tuncanbit/paylink/internal/repositories/sessionrepo/gen"
)

type sessionRepositoryImpl struct {
	db     *sql.DB
	store  *sessionRepo.Queries
	logger zerolog.Logger
}

func New(db *database.DBManager, logger zerolog.Logger) ISessionRepository {
	return &sessionRepositoryImpl{
		db:     db.Db,
		store:  sessionRepo.New(db.Db),
		logger: logger,
	}
}

func (r *sessionRepositoryImpl) UpsertSession(ctx context.Context, terminalID string, session *domain.PaymentSession) error {
	params, err := convertToDB(terminalID, session)
	if err != nil {
		return err
	}

	if err := r.store.UpsertPaymentSession(ctx, params); err != nil {
		r.logger.Error().Err(err).Str("session_id", session.SessionID).Str("state", string(session.State)).Msg("Failed to upsert payment session")
		return fmt.Errorf("failed to upsert payment session: %w", err)
	}

	return nil
}

func (r *sessionRepositoryImpl) GetSession(ctx context.Context, sessionID string) (*domain.PaymentSession, error) {
	row, err := r.store.GetPaymentSession(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		r.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to get payment session")
		return nil, fmt.Errorf("failed to get payment session: %w", err)
	}

	return convertFromDB(&row)
}

func (r *sessionRepositoryImpl) ListSessionsByState(ctx context.Context, state domain.SessionState, limit, offset int) ([]*domain.PaymentSession, error) {
	rows, err := r.store.ListPaymentSessionsByState(ctx, sessionRepo.ListPaymentSessionsByStateParams{
		State:  string(state),
		Limit:  int32(limit),
		Offset: int32(offset),
	})
	if err != nil {
		r.logger.Err(err).Str("state", string(state)).Msg("Failed to list payment sessions")
		return nil, fmt.Errorf("failed to list payment sessions: %w", err)
	}

	result := make([]*domain.PaymentSession, 0, len(rows))
	for i := range rows {
		session, err := convertFromDB(&rows[i])
		if err != nil {
			r.logger.Err(err).Str("session_id", rows[i].SessionID).Msg("Skipping unreadable payment session")
			continue
		}
		result = append(result, session)
	}
	return result, nil
}

func convertToDB(terminalID string, s *domain.PaymentSession) (sessionRepo.UpsertPaymentSessionParams, error) {
	params := sessionRepo.UpsertPaymentSessionParams{
		SessionID:   s.SessionID,
		TerminalID:  terminalID,
		State:       string(s.State),
		Amount:      s.Amount.String(),
		Currency:    s.Currency,
		Merchant:    nullString(s.Merchant),
		PaymentLink: nullString(s.PaymentLink),
		TxID:        nullString(s.TxID),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}

	if s.SelectedOption != nil {
		raw, err := json.Marshal(s.SelectedOption)
		if err != nil {
			return params, fmt.Errorf("failed to marshal selected option: %w", err)
		}
		params.SelectedOption = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}
	if s.Error != nil {
		params.ErrorCode = nullString(string(s.Error.Code))
		params.ErrorDetail = nullString(s.Error.Detail)
	}

	return params, nil
}

func convertFromDB(row *sessionRepo.PaymentSession) (*domain.PaymentSession, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount %q: %w", row.Amount, err)
	}

	session := &domain.PaymentSession{
		SessionID:   row.SessionID,
		State:       domain.SessionState(row.State),
		Amount:      amount,
		Currency:    row.Currency,
		Merchant:    row.Merchant.String,
		PaymentLink: row.PaymentLink.String,
		TxID:        row.TxID.String,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}

	if row.SelectedOption.Valid {
		var option domain.PaymentOption
		if err := json.Unmarshal(row.SelectedOption.RawMessage, &option); err != nil {
			return nil, fmt.Errorf("failed to parse selected option: %w", err)
		}
		session.SelectedOption = &option
	}
	if row.ErrorCode.Valid {
		session.Error = domain.NewPaymentError(domain.ErrorCode(row.ErrorCode.String), row.ErrorDetail.String, nil)
	}

	return session, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
