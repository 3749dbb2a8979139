package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetries(t *testing.T) {
	t.Helper()
	prev := sqliteRetryBaseDelay
	sqliteRetryBaseDelay = time.Millisecond
	t.Cleanup(func() { sqliteRetryBaseDelay = prev })
}

func TestWithRetryRecoversFromLock(t *testing.T) {
	fastRetries(t)
	calls := 0
	err := WithRetry(context.Background(), "put", func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5)")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryGivesUp(t *testing.T) {
	fastRetries(t)
	calls := 0
	err := WithRetry(context.Background(), "put", func() error {
		calls++
		return errors.New("SQLITE_BUSY")
	})
	require.Error(t, err)
	assert.True(t, IsSQLiteBusyError(err))
	assert.Contains(t, err.Error(), "put failed after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestWithRetryPassesOtherErrors(t *testing.T) {
	fastRetries(t)
	calls := 0
	boom := errors.New("no such table")
	err := WithRetry(context.Background(), "put", func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	prev := sqliteRetryBaseDelay
	sqliteRetryBaseDelay = time.Hour
	t.Cleanup(func() { sqliteRetryBaseDelay = prev })

	ctx, cancel := context.WithCancel(context.Background())
	err := WithRetry(ctx, "put", func() error {
		cancel()
		return errors.New("database is locked")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
