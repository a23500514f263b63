package tokenjanitor

import (
	"context"
	"errors"
	"sync"

	"github.com/valecashback/valecashback/internal/apperrors"
	"github.com/valecashback/valecashback/internal/logger"
	"github.com/valecashback/valecashback/internal/models"
	"github.com/valecashback/valecashback/internal/service/notify"
)

type Consumer struct {
	countWorkers int

	tokens   tokenSource
	notifier notify.Notifier
	logger   logger.Logger
}

func (c *Consumer) Consume(ctx context.Context, in <-chan models.PaymentToken) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < c.countWorkers; i++ {
		wg.Add(1)
		go func() {
			c.worker(ctx, in)
			wg.Done()
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Janitor consumer stopped")
	}()

	return idleStopped
}

func (c *Consumer) worker(ctx context.Context, in <-chan models.PaymentToken) {
	for {
		select {
		case <-ctx.Done():
			return

		case token, ok := <-in:
			if !ok {
				c.logger.Debug("Janitor worker stopped, input channel closed")
				return
			}

			flagged, err := c.tokens.MarkExpired(ctx, token.ID)

			switch {
			case err == nil:
				c.notifyExpired(ctx, flagged)

			case errors.Is(err, apperrors.ErrTokenNotFound):
				// Token changed state between listing and flagging,
				// redeemed at the last moment most likely
				c.logger.Debug("Token no longer pending", "code", token.Code)

			default:
				c.logger.Error("Failed to flag token expired", "error", err, "code", token.Code)
			}
		}
	}
}

func (c *Consumer) notifyExpired(ctx context.Context, token models.PaymentToken) {
	if c.notifier == nil {
		return
	}

	c.notifier.Notify(ctx, token.UserID, notify.Notification{
		Title: "Charge expired",
		Body:  "Charge " + token.Code + " expired before it was paid",
		Link:  "/payments/" + token.Code,
	})
}
