package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/valecashback/valecashback/internal/apperrors"
	"github.com/valecashback/valecashback/internal/models"
)

type TokenRepo struct {
	DB DBTX
}

const tokenColumns = `id, code, user_id, amount, description, status, issued_at, expires_at, redeemed_by, redeemed_at`

const createToken = `-- name: CreateToken
INSERT INTO payment_tokens (id, code, user_id, amount, description, status, issued_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + tokenColumns

func (r *TokenRepo) CreateToken(ctx context.Context, token models.PaymentToken) (models.PaymentToken, error) {
	rows, _ := r.DB.Query(ctx, createToken,
		token.ID, token.Code, token.UserID, token.Amount, token.Description,
		token.Status, token.IssuedAt, token.ExpiresAt,
	)
	created, err := pgx.CollectOneRow(rows, rowToToken)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return created, fmt.Errorf("token code collision: %w", err)
		}

		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getTokenByCode = `-- name: GetByCode
SELECT ` + tokenColumns + ` FROM payment_tokens
WHERE code = $1
`

func (r *TokenRepo) GetByCode(ctx context.Context, code string) (models.PaymentToken, error) {
	rows, _ := r.DB.Query(ctx, getTokenByCode, code)
	token, err := pgx.CollectOneRow(rows, rowToToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrTokenNotFound
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

// Redeem token if and only if it is still pending and not past expiry.
// Status and expiry are checked inside the single UPDATE, so under
// concurrent redemption attempts exactly one caller gets the row back.
const redeemToken = `-- name: Redeem
UPDATE payment_tokens
SET status = $4, redeemed_by = $2, redeemed_at = $3
WHERE code = $1 AND status = $5 AND expires_at > $3
RETURNING ` + tokenColumns

func (r *TokenRepo) Redeem(ctx context.Context, code string, redeemedBy uuid.UUID, now time.Time) (models.PaymentToken, error) {
	rows, _ := r.DB.Query(ctx, redeemToken, code, redeemedBy, now, models.TokenStatusRedeemed, models.TokenStatusPending)
	token, err := pgx.CollectOneRow(rows, rowToToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Lost the transition: read the row back to say why
		return r.classifyLost(ctx, code, now)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const cancelToken = `-- name: Cancel
UPDATE payment_tokens
SET status = $4
WHERE code = $1 AND user_id = $2 AND status = $5 AND expires_at > $3
RETURNING ` + tokenColumns

func (r *TokenRepo) Cancel(ctx context.Context, code string, issuerID uuid.UUID, now time.Time) (models.PaymentToken, error) {
	rows, _ := r.DB.Query(ctx, cancelToken, code, issuerID, now, models.TokenStatusCancelled, models.TokenStatusPending)
	token, err := pgx.CollectOneRow(rows, rowToToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return r.classifyLost(ctx, code, now)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

// classifyLost explains a failed status transition by the current row state.
// A pending token past expiry reports expired even if the row was never flagged.
func (r *TokenRepo) classifyLost(ctx context.Context, code string, now time.Time) (models.PaymentToken, error) {
	token, err := r.GetByCode(ctx, code)
	if err != nil {
		return token, err
	}

	switch token.EffectiveStatus(now) {
	case models.TokenStatusRedeemed:
		return token, apperrors.ErrTokenAlreadyRedeemed
	case models.TokenStatusExpired:
		return token, apperrors.ErrTokenExpired
	case models.TokenStatusCancelled:
		return token, apperrors.ErrTokenCancelled
	default:
		// Pending and not expired, yet the UPDATE matched nothing:
		// Cancel with a foreign issuer ends up here
		return token, apperrors.ErrTokenNotFound
	}
}

const listExpiredPending = `-- name: ListExpiredPending
SELECT ` + tokenColumns + ` FROM payment_tokens
WHERE status = $1 AND expires_at <= $2
ORDER BY expires_at
LIMIT $3
`

func (r *TokenRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.PaymentToken, error) {
	rows, _ := r.DB.Query(ctx, listExpiredPending, models.TokenStatusPending, now, limit)
	tokens, err := pgx.CollectRows(rows, rowToToken)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return tokens, nil
}

const markExpired = `-- name: MarkExpired
UPDATE payment_tokens
SET status = $2
WHERE id = $1 AND status = $3
RETURNING ` + tokenColumns

func (r *TokenRepo) MarkExpired(ctx context.Context, id uuid.UUID) (models.PaymentToken, error) {
	rows, _ := r.DB.Query(ctx, markExpired, id, models.TokenStatusExpired, models.TokenStatusPending)
	token, err := pgx.CollectOneRow(rows, rowToToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrTokenNotFound
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

func rowToToken(row pgx.CollectableRow) (models.PaymentToken, error) {
	var t models.PaymentToken
	err := row.Scan(
		&t.ID, &t.Code, &t.UserID, &t.Amount, &t.Description,
		&t.Status, &t.IssuedAt, &t.ExpiresAt, &t.RedeemedBy, &t.RedeemedAt,
	)
	return t, err
}
