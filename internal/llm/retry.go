package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Retry runs fn up to attempts times with a fixed delay between failures.
// Decode failures and context cancellation end the loop immediately.
func Retry[T any](ctx context.Context, op string, attempts int, delay time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if errors.Is(err, ErrDecode) || ctx.Err() != nil {
			return zero, err
		}
		if attempt == attempts {
			break
		}
		slog.Warn("retrying", "op", op, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}
