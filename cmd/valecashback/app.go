package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valecashback/valecashback/internal/db"
	"github.com/valecashback/valecashback/internal/handlers"
	"github.com/valecashback/valecashback/internal/handlers/middleware"
	"github.com/valecashback/valecashback/internal/logger"
	"github.com/valecashback/valecashback/internal/repository/postgres"
	"github.com/valecashback/valecashback/internal/service/auth"
	"github.com/valecashback/valecashback/internal/service/auth/tokenmanager"
	"github.com/valecashback/valecashback/internal/service/notify"
	"github.com/valecashback/valecashback/internal/service/payment"
	"github.com/valecashback/valecashback/internal/service/tokenjanitor"
	"github.com/valecashback/valecashback/internal/service/user"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	cfg    *Config
	logger logger.Logger

	pool        *pgxpool.Pool
	janitor     *tokenjanitor.Janitor
	idempotency *middleware.IdempotencyStore
	handler     http.Handler
}

func NewServerApp(ctx context.Context, cfg *Config) (*ServerApp, error) {
	var l logger.Logger
	switch cfg.Environment {
	case "dev":
		l = logger.NewLogger(cfg.LogLevel)
	default:
		l = logger.NewJSONLogger(cfg.LogLevel)
	}

	pool, err := db.ConnectAndMigrate(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("can't prepare db to run server. Err: %w", err)
	}

	storage := postgres.NewStorage(pool)

	tokenManager, err := tokenmanager.New(
		tokenmanager.Config{SecretKey: cfg.SecretKey},
		storage.Refresh(),
	)
	if err != nil {
		return nil, fmt.Errorf("can't create token manager. Err: %w", err)
	}

	authService, err := auth.NewService(auth.Config{}, tokenManager, storage)
	if err != nil {
		return nil, fmt.Errorf("can't create auth service. Err: %w", err)
	}

	notifier := notify.LogNotifier{Logger: l}

	paymentService := payment.NewService(
		payment.Config{TokenTTL: cfg.TokenTTL},
		storage,
		notifier,
		l,
	)

	userService := user.NewService(storage)

	janitor := tokenjanitor.New(storage.Token(), notifier, l)
	idempotency := middleware.NewIdempotencyStore(0)

	handler := handlers.NewRouter(authService, paymentService, userService, idempotency, l)

	return &ServerApp{
		cfg:         cfg,
		logger:      l,
		pool:        pool,
		janitor:     janitor,
		idempotency: idempotency,
		handler:     handler,
	}, nil
}

// Run the server until ctx is cancelled, then shut down gracefully
func (app *ServerApp) Run(ctx context.Context) error {
	defer app.pool.Close()

	// Background workers share the server lifetime
	janitorStopped := app.janitor.Process(ctx)
	go app.idempotency.Sweep(ctx)

	server := &http.Server{
		Addr:    app.cfg.ListenAddr,
		Handler: app.handler,
	}

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("Starting server", "address", app.cfg.ListenAddr)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server stopped unexpectedly. Err: %w", err)
	case <-ctx.Done():
	}

	app.logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server shutdown failed. Err: %w", err)
	}

	<-janitorStopped

	return nil
}
