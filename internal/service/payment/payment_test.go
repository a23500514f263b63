package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/valecashback/valecashback/internal/apperrors"
	"github.com/valecashback/valecashback/internal/logger"
	"github.com/valecashback/valecashback/internal/models"
	"github.com/valecashback/valecashback/internal/repository"
	"github.com/valecashback/valecashback/internal/repository/postgres"
	"github.com/valecashback/valecashback/internal/service/notify"
	"github.com/valecashback/valecashback/internal/testutil"
)

// recordingNotifier remembers every delivered notification
type recordingNotifier struct {
	mu    sync.Mutex
	sent  []notify.Notification
	users []uuid.UUID
}

func (n *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, notification notify.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	n.users = append(n.users, userID)
}

func createUser(t *testing.T, storage repository.Storage, email string) models.User {
	t.Helper()

	user, err := storage.User().CreateUser(t.Context(), repository.CreateUserParams{
		Name:           "Test User",
		Email:          email,
		Type:           models.UserTypeClient,
		HashedPassword: "hash",
	})
	require.NoError(t, err)

	err = storage.Balance().CreateBalance(t.Context(), user.ID)
	require.NoError(t, err)

	return user
}

func TestPaymentService(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	newService := func(storage repository.Storage) (*PaymentService, *recordingNotifier) {
		notifier := &recordingNotifier{}
		service := NewService(Config{}, storage, notifier, logger.NewNoOpLogger())
		return service, notifier
	}

	t.Run("Issue", func(t *testing.T) {
		t.Run("rejects non positive amount before storage", func(t *testing.T) {
			// Storage is nil on purpose: validation has to happen first
			service := NewService(Config{}, nil, nil, logger.NewNoOpLogger())

			for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-10)} {
				_, err := service.Issue(t.Context(), &models.User{ID: uuid.New()}, amount, "")

				require.ErrorIs(t, err, apperrors.ErrAmountInvalid)
			}
		})

		t.Run("issues pending token with ttl", func(t *testing.T) {
			testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
				storage := postgres.NewStorage(tx)
				service, _ := newService(storage)
				issuer := createUser(t, storage, "issuer@example.com")

				before := time.Now()
				token, err := service.Issue(t.Context(), &issuer, decimal.NewFromInt(100), "lunch")

				require.NoError(t, err)
				require.Equal(t, models.TokenStatusPending, token.Status)
				require.Equal(t, issuer.ID, token.UserID)
				require.Len(t, token.Code, 32, "code should be 16 random bytes hex encoded")
				require.WithinDuration(t, before.Add(defaultTokenTTL), token.ExpiresAt, 5*time.Second)
			})
		})
	})

	t.Run("Redeem", func(t *testing.T) {
		t.Run("empty code", func(t *testing.T) {
			service := NewService(Config{}, nil, nil, logger.NewNoOpLogger())

			_, err := service.Redeem(t.Context(), "", &models.User{ID: uuid.New()}, MethodCard)

			require.ErrorIs(t, err, apperrors.ErrQRPayloadEmpty)
		})

		t.Run("settles once and notifies issuer", func(t *testing.T) {
			testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
				storage := postgres.NewStorage(tx)
				service, notifier := newService(storage)
				issuer := createUser(t, storage, "issuer@example.com")
				redeemer := createUser(t, storage, "redeemer@example.com")

				token, err := service.Issue(t.Context(), &issuer, decimal.NewFromInt(100), "")
				require.NoError(t, err)

				settlement, err := service.Redeem(t.Context(), token.Code, &redeemer, MethodCard)

				require.NoError(t, err)
				require.Equal(t, token.Code, settlement.Code)
				require.True(t, settlement.Amount.Equal(decimal.NewFromInt(100)))
				require.True(t, settlement.Cashback.Equal(decimal.NewFromInt(2)), "cashback should be 2%% of the amount")
				require.Equal(t, redeemer.ID, settlement.RedeemedBy)

				require.Len(t, notifier.sent, 1, "issuer should be notified once")
				require.Equal(t, issuer.ID, notifier.users[0])

				// Issuer got the sale, redeemer got the cashback
				issuerBalance, err := storage.Balance().GetBalance(t.Context(), issuer.ID)
				require.NoError(t, err)
				require.True(t, issuerBalance.Current.Equal(decimal.NewFromInt(100)))

				redeemerBalance, err := storage.Balance().GetBalance(t.Context(), redeemer.ID)
				require.NoError(t, err)
				require.True(t, redeemerBalance.Current.Equal(decimal.NewFromInt(2)))

				// Retrying the settled token must fail and must not notify again
				_, err = service.Redeem(t.Context(), token.Code, &redeemer, MethodCard)
				require.ErrorIs(t, err, apperrors.ErrTokenAlreadyRedeemed)
				require.Len(t, notifier.sent, 1)
			})
		})

		t.Run("own token", func(t *testing.T) {
			testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
				storage := postgres.NewStorage(tx)
				service, notifier := newService(storage)
				issuer := createUser(t, storage, "issuer@example.com")

				token, err := service.Issue(t.Context(), &issuer, decimal.NewFromInt(100), "")
				require.NoError(t, err)

				_, err = service.Redeem(t.Context(), token.Code, &issuer, MethodCard)

				require.ErrorIs(t, err, apperrors.ErrTokenOwnRedeem)
				require.Empty(t, notifier.sent)

				// The failed attempt must roll back, token stays redeemable
				got, err := service.GetByCode(t.Context(), token.Code)
				require.NoError(t, err)
				require.Equal(t, models.TokenStatusPending, got.Status)
			})
		})

		t.Run("balance method debits redeemer", func(t *testing.T) {
			testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
				storage := postgres.NewStorage(tx)
				service, _ := newService(storage)
				issuer := createUser(t, storage, "issuer@example.com")
				redeemer := createUser(t, storage, "redeemer@example.com")

				// Fund the redeemer first
				_, err := storage.Balance().UpdateBalance(t.Context(), models.Transaction{
					UserID: redeemer.ID,
					Type:   models.TransactionTypeBonus,
					Amount: decimal.NewFromInt(500),
				})
				require.NoError(t, err)

				token, err := service.Issue(t.Context(), &issuer, decimal.NewFromInt(100), "")
				require.NoError(t, err)

				_, err = service.Redeem(t.Context(), token.Code, &redeemer, MethodBalance)
				require.NoError(t, err)

				// 500 - 100 payment + 2 cashback
				balance, err := storage.Balance().GetBalance(t.Context(), redeemer.ID)
				require.NoError(t, err)
				require.True(t, balance.Current.Equal(decimal.NewFromInt(402)), "got %s", balance.Current)
			})
		})

		t.Run("balance method insufficient funds", func(t *testing.T) {
			testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
				storage := postgres.NewStorage(tx)
				service, notifier := newService(storage)
				issuer := createUser(t, storage, "issuer@example.com")
				redeemer := createUser(t, storage, "redeemer@example.com")

				token, err := service.Issue(t.Context(), &issuer, decimal.NewFromInt(100), "")
				require.NoError(t, err)

				_, err = service.Redeem(t.Context(), token.Code, &redeemer, MethodBalance)

				require.ErrorIs(t, err, apperrors.ErrBalanceInsufficient)
				require.Empty(t, notifier.sent)

				// Whole settlement rolled back: token pending, issuer not credited
				got, err := service.GetByCode(t.Context(), token.Code)
				require.NoError(t, err)
				require.Equal(t, models.TokenStatusPending, got.Status)

				issuerBalance, err := storage.Balance().GetBalance(t.Context(), issuer.ID)
				require.NoError(t, err)
				require.True(t, issuerBalance.Current.IsZero())
			})
		})
	})

	t.Run("Cancel", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			service, _ := newService(storage)
			issuer := createUser(t, storage, "issuer@example.com")

			token, err := service.Issue(t.Context(), &issuer, decimal.NewFromInt(100), "")
			require.NoError(t, err)

			cancelled, err := service.Cancel(t.Context(), token.Code, &issuer)

			require.NoError(t, err)
			require.Equal(t, models.TokenStatusCancelled, cancelled.Status)
		})
	})

	t.Run("GetByCode", func(t *testing.T) {
		t.Run("pending past expiry reports expired", func(t *testing.T) {
			testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
				storage := postgres.NewStorage(tx)
				service := NewService(Config{TokenTTL: time.Nanosecond}, storage, nil, logger.NewNoOpLogger())
				issuer := createUser(t, storage, "issuer@example.com")

				token, err := service.Issue(t.Context(), &issuer, decimal.NewFromInt(100), "")
				require.NoError(t, err)

				got, err := service.GetByCode(t.Context(), token.Code)

				require.NoError(t, err)
				require.Equal(t, models.TokenStatusExpired, got.Status, "status should be computed from expires_at")
			})
		})
	})
}
