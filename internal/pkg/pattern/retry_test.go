package pattern

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := Retry(context.Background(), func(attempt int) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	},
		WithMaxAttempts(5),
		WithInitialDelay(time.Millisecond),
	)
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetryReturnsLastErrorWhenExhausted(t *testing.T) {
	t.Parallel()

	last := errors.New("attempt 2")
	errs := []error{errors.New("attempt 1"), last}
	err := Retry(context.Background(), func(attempt int) error {
		return errs[attempt-1]
	},
		WithMaxAttempts(2),
		WithInitialDelay(time.Millisecond),
	)
	require.ErrorIs(t, err, last)
}

func TestRetryStopsOnNonRetriableError(t *testing.T) {
	t.Parallel()

	fatal := errors.New("bad request")
	attempts := 0
	err := Retry(context.Background(), func(attempt int) error {
		attempts++
		return fatal
	},
		WithMaxAttempts(5),
		WithInitialDelay(time.Millisecond),
		WithShouldRetry(func(err error) bool { return !errors.Is(err, fatal) }),
	)
	require.ErrorIs(t, err, fatal)
	require.Equal(t, 1, attempts)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, func(attempt int) error {
		return errors.New("never reached")
	})
	require.ErrorIs(t, err, context.Canceled)
}
