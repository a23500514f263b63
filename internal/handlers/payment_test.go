package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/valecashback/valecashback/internal/apperrors"
	"github.com/valecashback/valecashback/internal/handlers/userctx"
	"github.com/valecashback/valecashback/internal/logger"
	"github.com/valecashback/valecashback/internal/models"
)

// stubPaymentService lets each test pin the behavior it needs
type stubPaymentService struct {
	issueFn  func(ctx context.Context, issuer *models.User, amount decimal.Decimal, description string) (models.PaymentToken, error)
	redeemFn func(ctx context.Context, code string, redeemer *models.User, method string) (models.Settlement, error)
	cancelFn func(ctx context.Context, code string, issuer *models.User) (models.PaymentToken, error)
	getFn    func(ctx context.Context, code string) (models.PaymentToken, error)
}

func (s *stubPaymentService) Issue(ctx context.Context, issuer *models.User, amount decimal.Decimal, description string) (models.PaymentToken, error) {
	return s.issueFn(ctx, issuer, amount, description)
}

func (s *stubPaymentService) Redeem(ctx context.Context, code string, redeemer *models.User, method string) (models.Settlement, error) {
	return s.redeemFn(ctx, code, redeemer, method)
}

func (s *stubPaymentService) Cancel(ctx context.Context, code string, issuer *models.User) (models.PaymentToken, error) {
	return s.cancelFn(ctx, code, issuer)
}

func (s *stubPaymentService) GetByCode(ctx context.Context, code string) (models.PaymentToken, error) {
	return s.getFn(ctx, code)
}

func authedRequest(t *testing.T, method string, target string, body string) *http.Request {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	user := models.User{ID: uuid.New(), Name: "Test User", Type: models.UserTypeClient}
	return req.WithContext(userctx.New(req.Context(), user))
}

func TestGenerateQRCode(t *testing.T) {
	l := logger.NewNoOpLogger()

	t.Run("issues token", func(t *testing.T) {
		now := time.Now().Truncate(time.Second)
		service := &stubPaymentService{
			issueFn: func(_ context.Context, issuer *models.User, amount decimal.Decimal, description string) (models.PaymentToken, error) {
				require.True(t, amount.Equal(decimal.NewFromFloat(150.5)))
				require.Equal(t, "lunch", description)

				return models.PaymentToken{
					ID:        uuid.New(),
					Code:      "abc123",
					UserID:    issuer.ID,
					Amount:    amount,
					Status:    models.TokenStatusPending,
					IssuedAt:  now,
					ExpiresAt: now.Add(5 * time.Minute),
				}, nil
			},
		}

		req := authedRequest(t, http.MethodPost, "/payments/qr-code/generate", `{"amount": 150.5, "description": "lunch"}`)
		rec := httptest.NewRecorder()
		handleGenerateQRCode(service, l).ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
		require.Contains(t, rec.Body.String(), `"code":"abc123"`)
		require.Contains(t, rec.Body.String(), `"status":"pending"`)
	})

	t.Run("invalid amount", func(t *testing.T) {
		service := &stubPaymentService{
			issueFn: func(_ context.Context, _ *models.User, _ decimal.Decimal, _ string) (models.PaymentToken, error) {
				return models.PaymentToken{}, apperrors.ErrAmountInvalid
			},
		}

		req := authedRequest(t, http.MethodPost, "/payments/qr-code/generate", `{"amount": -5}`)
		rec := httptest.NewRecorder()
		handleGenerateQRCode(service, l).ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("missing amount fails validation", func(t *testing.T) {
		service := &stubPaymentService{
			issueFn: func(_ context.Context, _ *models.User, _ decimal.Decimal, _ string) (models.PaymentToken, error) {
				t.Fatal("service must not be called on invalid request")
				return models.PaymentToken{}, nil
			},
		}

		req := authedRequest(t, http.MethodPost, "/payments/qr-code/generate", `{"description": "lunch"}`)
		rec := httptest.NewRecorder()
		handleGenerateQRCode(service, l).ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPayQRCode(t *testing.T) {
	l := logger.NewNoOpLogger()

	redeemWith := func(err error) *stubPaymentService {
		return &stubPaymentService{
			redeemFn: func(_ context.Context, code string, redeemer *models.User, method string) (models.Settlement, error) {
				if err != nil {
					return models.Settlement{}, err
				}
				return models.Settlement{
					Code:          code,
					Amount:        decimal.NewFromInt(100),
					Cashback:      decimal.NewFromInt(2),
					PaymentMethod: method,
					RedeemedBy:    redeemer.ID,
					RedeemedAt:    time.Now(),
				}, nil
			},
		}
	}

	t.Run("settles", func(t *testing.T) {
		req := authedRequest(t, http.MethodPost, "/payments/pay-qrcode", `{"code": "abc123", "payment_method": "card"}`)
		rec := httptest.NewRecorder()
		handlePayQRCode(redeemWith(nil), l).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
		require.Contains(t, rec.Body.String(), `"cashback":2`)
	})

	t.Run("unknown payment method fails validation", func(t *testing.T) {
		req := authedRequest(t, http.MethodPost, "/payments/pay-qrcode", `{"code": "abc123", "payment_method": "crypto"}`)
		rec := httptest.NewRecorder()
		handlePayQRCode(redeemWith(nil), l).ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps settlement failures", func(t *testing.T) {
		cases := []struct {
			err    error
			status int
		}{
			{apperrors.ErrTokenNotFound, http.StatusNotFound},
			{apperrors.ErrTokenAlreadyRedeemed, http.StatusConflict},
			{apperrors.ErrTokenExpired, http.StatusGone},
			{apperrors.ErrTokenCancelled, http.StatusGone},
			{apperrors.ErrTokenOwnRedeem, http.StatusForbidden},
			{apperrors.ErrBalanceInsufficient, http.StatusPaymentRequired},
		}

		for _, tc := range cases {
			req := authedRequest(t, http.MethodPost, "/payments/pay-qrcode", `{"code": "abc123", "payment_method": "card"}`)
			rec := httptest.NewRecorder()
			handlePayQRCode(redeemWith(tc.err), l).ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code, "error %v", tc.err)
		}
	})
}

func TestProcessQRCode(t *testing.T) {
	l := logger.NewNoOpLogger()

	t.Run("parses payload and defaults to card", func(t *testing.T) {
		service := &stubPaymentService{
			redeemFn: func(_ context.Context, code string, _ *models.User, method string) (models.Settlement, error) {
				require.Equal(t, "abc123", code, "code should be extracted from the qr payload")
				require.Equal(t, "card", method)
				return models.Settlement{Code: code, RedeemedAt: time.Now()}, nil
			},
		}

		req := authedRequest(t, http.MethodPost, "/payments/process-qrcode", `{"qrData": "valecashback://pay?code=abc123"}`)
		rec := httptest.NewRecorder()
		handleProcessQRCode(service, l).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	})

	t.Run("malformed payload rejected before settlement", func(t *testing.T) {
		service := &stubPaymentService{
			redeemFn: func(_ context.Context, _ string, _ *models.User, _ string) (models.Settlement, error) {
				t.Fatal("service must not be called for a malformed payload")
				return models.Settlement{}, nil
			},
		}

		req := authedRequest(t, http.MethodPost, "/payments/process-qrcode", `{"qrData": "https://evil.example?code=abc123"}`)
		rec := httptest.NewRecorder()
		handleProcessQRCode(service, l).ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTokenStatusAndImage(t *testing.T) {
	l := logger.NewNoOpLogger()

	tokenFor := func(code string) *stubPaymentService {
		return &stubPaymentService{
			getFn: func(_ context.Context, got string) (models.PaymentToken, error) {
				if got != code {
					return models.PaymentToken{}, apperrors.ErrTokenNotFound
				}
				return models.PaymentToken{
					ID:        uuid.New(),
					Code:      code,
					Amount:    decimal.NewFromInt(100),
					Status:    models.TokenStatusPending,
					IssuedAt:  time.Now(),
					ExpiresAt: time.Now().Add(time.Minute),
				}, nil
			},
		}
	}

	t.Run("status ok", func(t *testing.T) {
		req := authedRequest(t, http.MethodGet, "/payments/qr-code/abc123", "")
		req.SetPathValue("code", "abc123")
		rec := httptest.NewRecorder()
		handleTokenStatus(tokenFor("abc123"), l).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"status":"pending"`)
	})

	t.Run("status not found", func(t *testing.T) {
		req := authedRequest(t, http.MethodGet, "/payments/qr-code/zzz", "")
		req.SetPathValue("code", "zzz")
		rec := httptest.NewRecorder()
		handleTokenStatus(tokenFor("abc123"), l).ServeHTTP(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("image is a png", func(t *testing.T) {
		req := authedRequest(t, http.MethodGet, "/payments/qr-code/abc123/image?size=128", "")
		req.SetPathValue("code", "abc123")
		rec := httptest.NewRecorder()
		handleTokenImage(tokenFor("abc123"), l).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, rec.Body.Bytes()[:4])
	})
}
