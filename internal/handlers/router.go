package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/valecashback/valecashback/internal/handlers/middleware"
	"github.com/valecashback/valecashback/internal/logger"
	"github.com/valecashback/valecashback/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	paymentService paymentService,
	userService userService,
	idempotency *middleware.IdempotencyStore,
	logger logger.Logger,
) http.Handler {
	authMiddleware := middleware.AuthMiddleware(authService)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}
	withIdempotency := func(h http.Handler) http.Handler {
		return chain(h, authMiddleware, middleware.IdempotencyMiddleware(idempotency))
	}

	api := http.NewServeMux()

	api.Handle("POST /auth/register", handleRegister(authService, logger))
	api.Handle("POST /auth/login", handleLogin(authService, logger))
	api.Handle("POST /auth/refresh", handleTokenRefresh(authService, logger))
	api.Handle("GET /auth/me", withAuth(handleUserMe()))

	api.Handle("POST /payments/qr-code/generate", withAuth(handleGenerateQRCode(paymentService, logger)))
	api.Handle("GET /payments/qr-code/{code}", withAuth(handleTokenStatus(paymentService, logger)))
	api.Handle("GET /payments/qr-code/{code}/image", withAuth(handleTokenImage(paymentService, logger)))
	api.Handle("POST /payments/qr-code/{code}/cancel", withAuth(handleCancelToken(paymentService, logger)))
	api.Handle("POST /payments/pay-qrcode", withIdempotency(handlePayQRCode(paymentService, logger)))
	api.Handle("POST /payments/process-qrcode", withIdempotency(handleProcessQRCode(paymentService, logger)))

	api.Handle("GET /balance", withAuth(handleUserBalance(userService, logger)))
	api.Handle("GET /transactions", withAuth(handleListTransactions(userService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Register user with profile data and password
	// Has to return apperrors.ErrUserAlreadyExists if email is taken
	Register(ctx context.Context, name string, email string, password string, userType string) (models.User, models.TokenPair, error)

	// Login user with email and password
	// Has to return apperrors.ErrUserNotFound if credentials don't match
	Login(ctx context.Context, email string, password string) (models.User, models.TokenPair, error)

	// Refresh tokens using refresh token
	// If token expired: has to return apperrors.ErrRefreshTokenExpired
	// If token not found: has to return apperrors.ErrRefreshTokenNotFound
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error)

	// Get request and return user if it authenticated or error
	GetUserFromRequest(ctx context.Context, r *http.Request) (models.User, error)
}

type paymentService interface {
	Issue(ctx context.Context, issuer *models.User, amount decimal.Decimal, description string) (models.PaymentToken, error)
	Redeem(ctx context.Context, code string, redeemer *models.User, method string) (models.Settlement, error)
	Cancel(ctx context.Context, code string, issuer *models.User) (models.PaymentToken, error)
	GetByCode(ctx context.Context, code string) (models.PaymentToken, error)
}

type userService interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error)
	GetTransactions(ctx context.Context, userID uuid.UUID) ([]models.Transaction, error)
}
