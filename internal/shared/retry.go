package shared

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const sqliteMaxRetries = 3

var sqliteRetryBaseDelay = 100 * time.Millisecond

// WithRetry runs fn, retrying SQLITE_BUSY and "database is locked" failures
// with exponential backoff. Other errors are returned unchanged.
func WithRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < sqliteMaxRetries; i++ {
		err = fn()
		if err == nil || !IsSQLiteConflictError(err) {
			return err
		}
		if i == sqliteMaxRetries-1 {
			break
		}
		delay := sqliteRetryBaseDelay * time.Duration(1<<i) // 100ms, 200ms
		slog.Debug("SQLite conflict, retrying",
			"op", op,
			"attempt", i+1,
			"delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, sqliteMaxRetries, err)
}
