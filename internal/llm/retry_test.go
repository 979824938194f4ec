package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), "upload", 3, time.Millisecond, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection reset")
		}
		return "files/abc", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "files/abc", v)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), "generate", 3, time.Millisecond, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("503")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestRetryDoesNotRetryDecodeErrors(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), "generate", 3, time.Millisecond, func(context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("%w: bad", ErrDecode)
	})
	require.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, 1, calls)
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Retry(ctx, "generate", 5, time.Hour, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
