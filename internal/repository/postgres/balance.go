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

type BalanceRepo struct {
	DB DBTX
}

const createBalance = `-- name: CreateBalance
INSERT INTO balances (user_id, current, earned, withdrawn)
VALUES ($1, 0, 0, 0)
RETURNING id
`

func (r *BalanceRepo) CreateBalance(ctx context.Context, userID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, createBalance, userID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("user balance already exists: %w", err)
		}

		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const getBalanceByUserID = `-- name: GetBalance
SELECT id, user_id, current, earned, withdrawn FROM balances
WHERE user_id = $1
`

func (r *BalanceRepo) GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error) {
	rows, _ := r.DB.Query(ctx, getBalanceByUserID, userID)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		return balance, apperrors.ErrUserNotFound
	default:
		return balance, fmt.Errorf("db error: %w", err)
	}
}

const insertTransaction = `-- name: InsertTransaction
INSERT INTO transactions (id, processed_at, user_id, token_code, type, amount)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`

// Payments decrease the current balance, everything else accrues
const applyTransaction = `-- name: ApplyTransaction
UPDATE balances
SET current = current + $2,
    earned = earned + GREATEST($2, 0),
    withdrawn = withdrawn + GREATEST(-$2, 0)
WHERE user_id = $1
RETURNING id, user_id, current, earned, withdrawn
`

func (r *BalanceRepo) UpdateBalance(ctx context.Context, tr models.Transaction) (models.Balance, error) {
	var balance models.Balance

	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	if tr.ProcessedAt.IsZero() {
		tr.ProcessedAt = time.Now()
	}

	delta := tr.Amount
	if tr.Type == models.TransactionTypePayment {
		delta = delta.Neg()
	}

	_, err := r.DB.Exec(ctx, insertTransaction, tr.ID, tr.ProcessedAt, tr.UserID, tr.TokenCode, tr.Type, tr.Amount)
	if err != nil {
		return balance, fmt.Errorf("db error: %w", err)
	}

	rows, _ := r.DB.Query(ctx, applyTransaction, tr.UserID, delta)
	balance, err = pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		return balance, apperrors.ErrUserNotFound
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
			return balance, apperrors.ErrBalanceInsufficient
		}

		return balance, fmt.Errorf("db error: %w", err)
	}
}

const listTransactions = `-- name: ListTransactions
SELECT id, processed_at, user_id, token_code, type, amount FROM transactions
WHERE user_id = $1
ORDER BY processed_at DESC
`

func (r *BalanceRepo) ListTransactions(ctx context.Context, userID uuid.UUID) ([]models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, listTransactions, userID)
	transactions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Transaction, error) {
		var t models.Transaction
		err := row.Scan(&t.ID, &t.ProcessedAt, &t.UserID, &t.TokenCode, &t.Type, &t.Amount)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}

func rowToBalance(row pgx.CollectableRow) (models.Balance, error) {
	var b models.Balance
	err := row.Scan(&b.ID, &b.UserID, &b.Current, &b.Earned, &b.Withdrawn)
	return b, err
}
