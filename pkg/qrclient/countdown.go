package qrclient

import (
	"context"
	"fmt"
	"time"
)

// ExpiredLabel is the terminal countdown value
const ExpiredLabel = "expired"

// Countdown emits the remaining token lifetime once a second formatted as
// "M:SS". The channel gets ExpiredLabel as the last value and is closed,
// or is closed early when ctx is cancelled. Useful for driving the timer
// next to a displayed qr code.
func Countdown(ctx context.Context, expiresAt time.Time) <-chan string {
	out := make(chan string, 1)

	format := func(now time.Time) (string, bool) {
		left := expiresAt.Sub(now)
		if left <= 0 {
			return ExpiredLabel, true
		}

		secs := int(left.Round(time.Second).Seconds())
		return fmt.Sprintf("%d:%02d", secs/60, secs%60), false
	}

	go func() {
		defer close(out)

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		// Emit the initial value right away, not a second later
		label, done := format(time.Now())
		select {
		case out <- label:
		case <-ctx.Done():
			return
		}
		if done {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				label, done := format(now)
				select {
				case out <- label:
				case <-ctx.Done():
					return
				}
				if done {
					return
				}
			}
		}
	}()

	return out
}
