package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/valecashback/valecashback/internal/apperrors"
	"github.com/valecashback/valecashback/internal/logger"
	"github.com/valecashback/valecashback/internal/models"
	"github.com/valecashback/valecashback/internal/repository"
	"github.com/valecashback/valecashback/internal/service/notify"
)

const (
	defaultTokenTTL = 5 * time.Minute

	MethodCash    = "cash"
	MethodCard    = "card"
	MethodBalance = "balance"
)

// Default client cashback share of the settled amount
var defaultCashbackRate = decimal.NewFromFloat(0.02)

type Config struct {
	// Token lifetime, defaults to 5 minutes
	TokenTTL time.Duration

	// Share of the settled amount credited back to the payer
	// Defaults to 2%
	CashbackRate decimal.Decimal
}

type PaymentService struct {
	storage  repository.Storage
	notifier notify.Notifier
	logger   logger.Logger

	ttl          time.Duration
	cashbackRate decimal.Decimal
}

func NewService(cfg Config, storage repository.Storage, notifier notify.Notifier, l logger.Logger) *PaymentService {
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.CashbackRate.IsZero() {
		cfg.CashbackRate = defaultCashbackRate
	}

	return &PaymentService{
		storage:      storage,
		notifier:     notifier,
		logger:       l,
		ttl:          cfg.TokenTTL,
		cashbackRate: cfg.CashbackRate,
	}
}

// Issue creates a pending single-use token for the amount.
// Amount must be positive, checked before any storage call.
func (s *PaymentService) Issue(ctx context.Context, issuer *models.User, amount decimal.Decimal, description string) (models.PaymentToken, error) {
	var token models.PaymentToken

	if !amount.IsPositive() {
		return token, apperrors.ErrAmountInvalid
	}

	code, err := generateCode()
	if err != nil {
		return token, fmt.Errorf("can't generate token code. Err: %w", err)
	}

	now := time.Now()
	token = models.PaymentToken{
		ID:          uuid.New(),
		Code:        code,
		UserID:      issuer.ID,
		Amount:      amount,
		Description: description,
		Status:      models.TokenStatusPending,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
	}

	return s.storage.Token().CreateToken(ctx, token)
}

// Redeem settles the token for the redeemer: exactly one settlement per token.
// The whole settlement (status transition, ledger rows, cashback) runs in one
// db transaction, so a partial settlement can never be observed.
func (s *PaymentService) Redeem(ctx context.Context, code string, redeemer *models.User, method string) (models.Settlement, error) {
	var settlement models.Settlement

	if code == "" {
		return settlement, apperrors.ErrQRPayloadEmpty
	}

	now := time.Now()

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		token, err := storage.Token().Redeem(ctx, code, redeemer.ID, now)
		if err != nil {
			return err
		}

		if token.UserID == redeemer.ID {
			return apperrors.ErrTokenOwnRedeem
		}

		// Paying from the cashback balance debits the redeemer first,
		// insufficient funds roll the whole settlement back
		if method == MethodBalance {
			_, err = storage.Balance().UpdateBalance(ctx, models.Transaction{
				UserID:    redeemer.ID,
				TokenCode: token.Code,
				Type:      models.TransactionTypePayment,
				Amount:    token.Amount,
			})
			if err != nil {
				return err
			}
		}

		// Credit the sale to the issuer
		_, err = storage.Balance().UpdateBalance(ctx, models.Transaction{
			UserID:    token.UserID,
			TokenCode: token.Code,
			Type:      models.TransactionTypeSale,
			Amount:    token.Amount,
		})
		if err != nil {
			return err
		}

		// Credit cashback to the redeemer
		cashback := token.Amount.Mul(s.cashbackRate).Round(2)
		if cashback.IsPositive() {
			_, err = storage.Balance().UpdateBalance(ctx, models.Transaction{
				UserID:    redeemer.ID,
				TokenCode: token.Code,
				Type:      models.TransactionTypeCashback,
				Amount:    cashback,
			})
			if err != nil {
				return err
			}
		}

		settlement = models.Settlement{
			TokenID:       token.ID,
			IssuerID:      token.UserID,
			Code:          token.Code,
			Amount:        token.Amount,
			Cashback:      cashback,
			PaymentMethod: method,
			RedeemedBy:    redeemer.ID,
			RedeemedAt:    now,
		}

		return nil
	})
	if err != nil {
		return models.Settlement{}, err
	}

	// Notify the issuer only after the settlement is committed
	s.notifyRedeemed(ctx, settlement)

	return settlement, nil
}

// Cancel voids a pending token, issuer only
func (s *PaymentService) Cancel(ctx context.Context, code string, issuer *models.User) (models.PaymentToken, error) {
	if code == "" {
		return models.PaymentToken{}, apperrors.ErrQRPayloadEmpty
	}

	return s.storage.Token().Cancel(ctx, code, issuer.ID, time.Now())
}

// GetByCode returns the token snapshot for status polling.
// A pending token past expiry reports as expired even if the row was never flagged.
func (s *PaymentService) GetByCode(ctx context.Context, code string) (models.PaymentToken, error) {
	token, err := s.storage.Token().GetByCode(ctx, code)
	if err != nil {
		return token, err
	}

	token.Status = token.EffectiveStatus(time.Now())
	return token, nil
}

func (s *PaymentService) notifyRedeemed(ctx context.Context, settlement models.Settlement) {
	if s.notifier == nil {
		return
	}

	s.notifier.Notify(ctx, settlement.IssuerID, notify.Notification{
		Title: "Payment received",
		Body:  fmt.Sprintf("Charge %s settled for %s", settlement.Code, settlement.Amount.StringFixed(2)),
		Link:  "/payments/" + settlement.Code,
	})
}

// generateCode returns unguessable 32 char hex string
func generateCode() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
