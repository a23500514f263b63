package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/valecashback/valecashback/internal/logger"
)

// Notification is a displayable message with a deep link into the app
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Link  string `json:"link"`
}

// Notifier delivers notifications to a user's devices.
// Delivery is best effort: callers never fail their own operation on it.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, n Notification)
}

// LogNotifier writes notifications to the log.
// Stands in where no push transport is configured.
type LogNotifier struct {
	Logger logger.Logger
}

func (l LogNotifier) Notify(_ context.Context, userID uuid.UUID, n Notification) {
	l.Logger.Info("notification",
		"user_id", userID,
		"title", n.Title,
		"body", n.Body,
		"link", n.Link,
	)
}
