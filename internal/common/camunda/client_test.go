package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"itdocs-query/internal/common/logger"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), logger.NewTestLogger(t), "postgres connection", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("dial tcp: connection refused")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), logger.NewTestLogger(t), "redis connection", func(context.Context) error {
		calls++
		return errors.New("WRONGPASS invalid username-password pair")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "redis connection failed")
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), logger.NewTestLogger(t), "zeebe", func(context.Context) error {
		calls++
		return ErrBrokerUnavailable
	})

	assert.ErrorIs(t, err, ErrBrokerUnavailable)
	assert.Equal(t, 4, calls)
}

func TestRetry_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, RetryConfig{MaxRetries: 5, BaseDelay: time.Hour}, logger.NewTestLogger(t), "elasticsearch", func(context.Context) error {
		return errors.New("i/o timeout")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestMapZeebeError(t *testing.T) {
	assert.ErrorIs(t, mapZeebeError(errors.New("rpc error: code = Unavailable"), "topology"), ErrBrokerUnavailable)
	assert.ErrorIs(t, mapZeebeError(errors.New("context deadline exceeded"), "topology"), ErrBrokerTimeout)

	other := mapZeebeError(errors.New("permission denied"), "topology")
	assert.NotErrorIs(t, other, ErrBrokerUnavailable)
	assert.False(t, isRetryable(other))
}
