// Package tokenjanitor flags pending payment tokens past their expiry and
// notifies the issuing party. It is an optimization layer only: redemption
// correctness never depends on it, expiry is always computed against
// expires_at in the storage layer.
package tokenjanitor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/valecashback/valecashback/internal/logger"
	"github.com/valecashback/valecashback/internal/models"
	"github.com/valecashback/valecashback/internal/service/notify"
)

const (
	defaultCountWorkers  = 4                // Number of workers to flag tokens
	defaultSweepInterval = 30 * time.Second // Interval for producing expired tokens
	defaultBatchSize     = 100
)

type tokenSource interface {
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.PaymentToken, error)
	MarkExpired(ctx context.Context, id uuid.UUID) (models.PaymentToken, error)
}

type Janitor struct {
	consumer *Consumer
	producer *Producer
}

func New(tokens tokenSource, notifier notify.Notifier, logger logger.Logger) *Janitor {
	return &Janitor{
		consumer: &Consumer{
			countWorkers: defaultCountWorkers,
			tokens:       tokens,
			notifier:     notifier,
			logger:       logger,
		},
		producer: &Producer{
			interval:  defaultSweepInterval,
			batchSize: defaultBatchSize,
			tokens:    tokens,
			logger:    logger,
		},
	}
}

func (j *Janitor) Process(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	tokenChan := make(chan models.PaymentToken)

	// Start producer to list expired pending tokens
	producerStopped := j.producer.Produce(ctx, tokenChan)

	// Start consumer to flag and notify
	consumerStopped := j.consumer.Consume(ctx, tokenChan)

	go func() {
		defer close(idleStopped)
		defer close(tokenChan)
		<-producerStopped
		<-consumerStopped
		j.consumer.logger.Debug("Token janitor stopped")
	}()

	return idleStopped
}
