package tokenjanitor

import (
	"context"
	"time"

	"github.com/valecashback/valecashback/internal/logger"
	"github.com/valecashback/valecashback/internal/models"
)

type Producer struct {
	interval  time.Duration
	batchSize int
	logger    logger.Logger
	tokens    tokenSource
}

func (p *Producer) Produce(ctx context.Context, out chan<- models.PaymentToken) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting janitor producer", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Janitor producer stopped by context")
				return

			case <-ticker.C:
				tokens, err := p.tokens.ListExpiredPending(ctx, time.Now(), p.batchSize)
				if err != nil {
					p.logger.Error("Failed to list expired tokens", "error", err)
					continue
				}

				for _, token := range tokens {
					select {
					case <-ctx.Done():
						p.logger.Debug("Janitor producer stopped by context while sending tokens")
						return
					case out <- token:
					}
				}
			}
		}
	}()

	return idleStopped
}
