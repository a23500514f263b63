package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/valecashback/valecashback/internal/apperrors"
	"github.com/valecashback/valecashback/internal/handlers/render"
	"github.com/valecashback/valecashback/internal/handlers/userctx"
	"github.com/valecashback/valecashback/internal/logger"
	"github.com/valecashback/valecashback/internal/models"
	"github.com/valecashback/valecashback/internal/service/payment"
)

type tokenResponse struct {
	ID          uuid.UUID  `json:"id"`
	Code        string     `json:"code"`
	Amount      float64    `json:"amount"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	IssuedAt    time.Time  `json:"issued_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	RedeemedAt  *time.Time `json:"redeemed_at,omitempty"`
}

func tokenToResponse(t models.PaymentToken) tokenResponse {
	amount, _ := t.Amount.Float64()
	return tokenResponse{
		ID:          t.ID,
		Code:        t.Code,
		Amount:      amount,
		Description: t.Description,
		Status:      t.Status,
		IssuedAt:    t.IssuedAt,
		ExpiresAt:   t.ExpiresAt,
		RedeemedAt:  t.RedeemedAt,
	}
}

type settlementResponse struct {
	Code          string    `json:"code"`
	Amount        float64   `json:"amount"`
	Cashback      float64   `json:"cashback"`
	PaymentMethod string    `json:"payment_method"`
	RedeemedAt    time.Time `json:"redeemed_at"`
}

func settlementToResponse(s models.Settlement) settlementResponse {
	amount, _ := s.Amount.Float64()
	cashback, _ := s.Cashback.Float64()
	return settlementResponse{
		Code:          s.Code,
		Amount:        amount,
		Cashback:      cashback,
		PaymentMethod: s.PaymentMethod,
		RedeemedAt:    s.RedeemedAt,
	}
}

func handleGenerateQRCode(paymentService paymentService, l logger.Logger) http.Handler {
	type request struct {
		Amount      decimal.Decimal `json:"amount" validate:"required"`
		Description string          `json:"description" validate:"max=255"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		token, err := paymentService.Issue(r.Context(), &user, data.Amount, data.Description)

		switch {
		case err == nil:
			render.JSONWithStatus(w, tokenToResponse(token), http.StatusCreated)
		case errors.Is(err, apperrors.ErrAmountInvalid):
			render.ServiceError(w, "Amount must be positive", http.StatusUnprocessableEntity)
		default:
			l.Error("Failed to issue payment token", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleTokenStatus(paymentService paymentService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := paymentService.GetByCode(r.Context(), r.PathValue("code"))

		switch {
		case err == nil:
			render.JSON(w, tokenToResponse(token))
		case errors.Is(err, apperrors.ErrTokenNotFound):
			render.ServiceError(w, "Payment token not found", http.StatusNotFound)
		default:
			l.Error("Failed to get payment token", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleTokenImage(paymentService paymentService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := paymentService.GetByCode(r.Context(), r.PathValue("code"))
		if err != nil {
			if errors.Is(err, apperrors.ErrTokenNotFound) {
				render.ServiceError(w, "Payment token not found", http.StatusNotFound)
				return
			}

			l.Error("Failed to get payment token", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		size, _ := strconv.Atoi(r.URL.Query().Get("size"))

		png, err := payment.RenderPNG(token.Code, size)
		if err != nil {
			l.Error("Failed to render qr code", "error", err)
			render.ServiceError(w, "Failed to render qr code", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	})
}

// redeemErrorToResponse maps settlement failures to statuses.
// Every reason is reported as is, the caller decides whether to ask
// for a fresh token.
func redeemErrorToResponse(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrTokenNotFound):
		render.ServiceError(w, "Payment token not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrTokenAlreadyRedeemed):
		render.ServiceError(w, "Payment token already redeemed", http.StatusConflict)
	case errors.Is(err, apperrors.ErrTokenExpired):
		render.ServiceError(w, "Payment token expired", http.StatusGone)
	case errors.Is(err, apperrors.ErrTokenCancelled):
		render.ServiceError(w, "Payment token cancelled", http.StatusGone)
	case errors.Is(err, apperrors.ErrTokenOwnRedeem):
		render.ServiceError(w, "Can't redeem your own payment token", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrBalanceInsufficient):
		render.ServiceError(w, "Insufficient balance", http.StatusPaymentRequired)
	case errors.Is(err, apperrors.ErrQRPayloadEmpty), errors.Is(err, apperrors.ErrQRPayloadInvalid):
		render.ServiceError(w, "Invalid qr payload", http.StatusBadRequest)
	default:
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func handlePayQRCode(paymentService paymentService, l logger.Logger) http.Handler {
	type request struct {
		Code          string `json:"code" validate:"required"`
		PaymentMethod string `json:"payment_method" validate:"required,oneof=cash card balance"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		settlement, err := paymentService.Redeem(r.Context(), data.Code, &user, data.PaymentMethod)
		if err != nil {
			if isInternal(err) {
				l.Error("Failed to redeem payment token", "error", err)
			}
			redeemErrorToResponse(w, err)
			return
		}

		render.JSON(w, settlementToResponse(settlement))
	})
}

func handleProcessQRCode(paymentService paymentService, l logger.Logger) http.Handler {
	type request struct {
		QRData        string `json:"qrData" validate:"required"`
		PaymentMethod string `json:"payment_method" validate:"omitempty,oneof=cash card balance"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		// Malformed payloads are rejected before any settlement attempt
		code, err := payment.ParsePayload(data.QRData)
		if err != nil {
			render.ServiceError(w, "Invalid qr payload", http.StatusBadRequest)
			return
		}

		method := data.PaymentMethod
		if method == "" {
			method = payment.MethodCard
		}

		settlement, err := paymentService.Redeem(r.Context(), code, &user, method)
		if err != nil {
			if isInternal(err) {
				l.Error("Failed to process qr payment", "error", err)
			}
			redeemErrorToResponse(w, err)
			return
		}

		render.JSON(w, settlementToResponse(settlement))
	})
}

func handleCancelToken(paymentService paymentService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		token, err := paymentService.Cancel(r.Context(), r.PathValue("code"), &user)
		if err != nil {
			if isInternal(err) {
				l.Error("Failed to cancel payment token", "error", err)
			}
			redeemErrorToResponse(w, err)
			return
		}

		render.JSON(w, tokenToResponse(token))
	})
}

func isInternal(err error) bool {
	for _, known := range []error{
		apperrors.ErrTokenNotFound,
		apperrors.ErrTokenAlreadyRedeemed,
		apperrors.ErrTokenExpired,
		apperrors.ErrTokenCancelled,
		apperrors.ErrTokenOwnRedeem,
		apperrors.ErrBalanceInsufficient,
		apperrors.ErrQRPayloadEmpty,
		apperrors.ErrQRPayloadInvalid,
	} {
		if errors.Is(err, known) {
			return false
		}
	}

	return true
}
