package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/valecashback/valecashback/internal/models"
)

// Storage aggregates all repositories over a single connection or transaction
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
	Token() TokenRepo
	Balance() BalanceRepo

	// Run fn with storage bound to one db transaction
	// Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}

type CreateUserParams struct {
	Name           string
	Email          string
	Type           string
	HashedPassword string
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, arg CreateUserParams) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save token in repository
	Save(ctx context.Context, token models.RefreshToken) error

	// Return the token if it exists in the database
	Get(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Mark token as used
	// If the token is already used, must not overwrite the existing 'usedAt'
	// and must return apperrors.ErrRefreshTokenIsUsed
	MarkUsed(ctx context.Context, tokenString string) (usedAt time.Time, err error)
}

// PaymentToken repository interface
type TokenRepo interface {
	// Persist new token as is
	// The caller is responsible for code generation and TTL
	CreateToken(ctx context.Context, token models.PaymentToken) (models.PaymentToken, error)

	// Get token by code
	// If not found must return apperrors.ErrTokenNotFound
	GetByCode(ctx context.Context, code string) (models.PaymentToken, error)

	// Redeem transitions pending -> redeemed in one atomic statement
	// guarded by current status and expiry. Exactly one caller may win.
	// Losers get apperrors.ErrTokenAlreadyRedeemed, ErrTokenExpired,
	// ErrTokenCancelled or ErrTokenNotFound depending on the row state.
	Redeem(ctx context.Context, code string, redeemedBy uuid.UUID, now time.Time) (models.PaymentToken, error)

	// Cancel transitions pending -> cancelled, issuer only
	// Same classification of failures as Redeem
	Cancel(ctx context.Context, code string, issuerID uuid.UUID, now time.Time) (models.PaymentToken, error)

	// List pending tokens whose expires_at is in the past
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.PaymentToken, error)

	// Flag pending token as expired. Informational only: Redeem never
	// relies on this flag, expiry is always computed from expires_at.
	MarkExpired(ctx context.Context, id uuid.UUID) (models.PaymentToken, error)
}

// Balance repository interface
type BalanceRepo interface {
	// Create zero balance for the user
	CreateBalance(ctx context.Context, userID uuid.UUID) error

	// Get user balance
	// If user has no balance row must return apperrors.ErrUserNotFound
	GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error)

	// Apply transaction to the balance: insert ledger row and update totals.
	// Payment transactions decrease current; must return
	// apperrors.ErrBalanceInsufficient if the result would be negative.
	UpdateBalance(ctx context.Context, tr models.Transaction) (models.Balance, error)

	// List user transactions, newest first
	ListTransactions(ctx context.Context, userID uuid.UUID) ([]models.Transaction, error)
}
