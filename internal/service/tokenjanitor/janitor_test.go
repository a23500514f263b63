package tokenjanitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/valecashback/valecashback/internal/apperrors"
	"github.com/valecashback/valecashback/internal/logger"
	"github.com/valecashback/valecashback/internal/models"
	"github.com/valecashback/valecashback/internal/service/notify"
)

// fakeTokenSource hands out one batch of pending tokens and records flags
type fakeTokenSource struct {
	mu      sync.Mutex
	pending []models.PaymentToken
	flagged []uuid.UUID
}

func (s *fakeTokenSource) ListExpiredPending(_ context.Context, _ time.Time, limit int) ([]models.PaymentToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}

	batch := s.pending
	s.pending = nil
	return batch, nil
}

func (s *fakeTokenSource) MarkExpired(_ context.Context, id uuid.UUID) (models.PaymentToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, flaggedID := range s.flagged {
		if flaggedID == id {
			return models.PaymentToken{}, apperrors.ErrTokenNotFound
		}
	}

	s.flagged = append(s.flagged, id)
	return models.PaymentToken{ID: id, UserID: uuid.New(), Code: "code", Status: models.TokenStatusExpired}, nil
}

func (s *fakeTokenSource) flaggedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flagged)
}

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) Notify(_ context.Context, _ uuid.UUID, _ notify.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
}

func (n *countingNotifier) total() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

func TestJanitor(t *testing.T) {
	t.Run("flags and notifies expired tokens", func(t *testing.T) {
		source := &fakeTokenSource{pending: []models.PaymentToken{
			{ID: uuid.New(), UserID: uuid.New(), Code: "one", Status: models.TokenStatusPending},
			{ID: uuid.New(), UserID: uuid.New(), Code: "two", Status: models.TokenStatusPending},
		}}
		notifier := &countingNotifier{}

		janitor := New(source, notifier, logger.NewNoOpLogger())
		janitor.producer.interval = 10 * time.Millisecond

		ctx, cancel := context.WithCancel(t.Context())
		stopped := janitor.Process(ctx)

		require.Eventually(t, func() bool {
			return source.flaggedCount() == 2
		}, 2*time.Second, 10*time.Millisecond, "both tokens should be flagged")
		require.Eventually(t, func() bool {
			return notifier.total() == 2
		}, 2*time.Second, 10*time.Millisecond, "issuer should be notified per token")

		cancel()
		select {
		case <-stopped:
		case <-time.After(2 * time.Second):
			t.Fatal("janitor did not stop after cancel")
		}
	})

	t.Run("tolerates tokens flagged twice", func(t *testing.T) {
		id := uuid.New()
		source := &fakeTokenSource{pending: []models.PaymentToken{
			{ID: id, UserID: uuid.New(), Code: "one", Status: models.TokenStatusPending},
		}}
		// Flag it up front: the consumer should treat ErrTokenNotFound as fine
		_, err := source.MarkExpired(t.Context(), id)
		require.NoError(t, err)
		notifier := &countingNotifier{}

		janitor := New(source, notifier, logger.NewNoOpLogger())
		janitor.producer.interval = 10 * time.Millisecond

		ctx, cancel := context.WithCancel(t.Context())
		stopped := janitor.Process(ctx)

		// Give the pipeline a few cycles, nothing should be notified
		time.Sleep(100 * time.Millisecond)
		require.Zero(t, notifier.total(), "already settled tokens must not notify")

		cancel()
		<-stopped
	})
}
