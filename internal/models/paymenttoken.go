package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TokenStatusPending   = "pending"
	TokenStatusRedeemed  = "redeemed"
	TokenStatusExpired   = "expired"
	TokenStatusCancelled = "cancelled"
)

// PaymentToken is a single-use charge of a fixed amount.
// The code is the string encoded into the QR image.
// Status 'expired' is informational only: a pending token past ExpiresAt
// is treated as expired everywhere, whether the row was updated or not.
type PaymentToken struct {
	ID          uuid.UUID
	Code        string
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Description string
	Status      string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	RedeemedBy  *uuid.UUID // nil until redeemed
	RedeemedAt  *time.Time // nil until redeemed
}

// Expired reports whether the token is past its expiry at the given moment.
func (t PaymentToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// EffectiveStatus computes the user visible status:
// a pending token past expiry reports as expired even if the row was never updated.
func (t PaymentToken) EffectiveStatus(now time.Time) string {
	if t.Status == TokenStatusPending && t.Expired(now) {
		return TokenStatusExpired
	}
	return t.Status
}

// Settlement is the result of a successful redemption.
type Settlement struct {
	TokenID       uuid.UUID
	IssuerID      uuid.UUID
	Code          string
	Amount        decimal.Decimal
	Cashback      decimal.Decimal
	PaymentMethod string
	RedeemedBy    uuid.UUID
	RedeemedAt    time.Time
}
