package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment debits the balance, every other type accrues
const (
	TransactionTypePayment  = "payment"
	TransactionTypeSale     = "sale"
	TransactionTypeCashback = "cashback"
	TransactionTypeBonus    = "bonus"
)

type Balance struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Current   decimal.Decimal
	Earned    decimal.Decimal
	Withdrawn decimal.Decimal
}

type Transaction struct {
	ID          uuid.UUID
	ProcessedAt time.Time
	UserID      uuid.UUID
	TokenCode   string
	Type        string
	Amount      decimal.Decimal
}
