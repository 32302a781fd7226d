package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	b := New("history", 3, time.Second, testLogger())

	for i := 0; i < 10; i++ {
		err := b.Do(context.Background(), func(context.Context) error { return nil })
		require.NoError(t, err)
	}
	assert.Equal(t, StateClosed, b.CurrentState())
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := New("history", 3, time.Minute, testLogger())
	boom := errors.New("backend down")

	for i := 0; i < 3; i++ {
		err := b.Do(context.Background(), func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, StateOpen, b.CurrentState())

	called := false
	err := b.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.True(t, IsOpenError(err))
	assert.False(t, called, "open breaker must fail fast without calling through")
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := New("history", 3, time.Minute, testLogger())
	boom := errors.New("flaky")

	_ = b.Do(context.Background(), func(context.Context) error { return boom })
	_ = b.Do(context.Background(), func(context.Context) error { return boom })
	require.NoError(t, b.Do(context.Background(), func(context.Context) error { return nil }))

	_ = b.Do(context.Background(), func(context.Context) error { return boom })
	_ = b.Do(context.Background(), func(context.Context) error { return boom })
	assert.Equal(t, StateClosed, b.CurrentState(), "non-consecutive failures must not trip")
}

func TestBreakerProbesAfterCooldown(t *testing.T) {
	b := New("history", 1, 10*time.Millisecond, testLogger())
	boom := errors.New("backend down")

	_ = b.Do(context.Background(), func(context.Context) error { return boom })
	require.Equal(t, StateOpen, b.CurrentState())

	time.Sleep(20 * time.Millisecond)

	err := b.Do(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.CurrentState())
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	b := New("history", 1, 10*time.Millisecond, testLogger())
	boom := errors.New("backend down")

	_ = b.Do(context.Background(), func(context.Context) error { return boom })
	time.Sleep(20 * time.Millisecond)

	err := b.Do(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateOpen, b.CurrentState())

	err = b.Do(context.Background(), func(context.Context) error { return nil })
	assert.True(t, IsOpenError(err))
}

func TestOpenErrorMessage(t *testing.T) {
	err := &OpenError{Name: "history", RetryAfter: 1500 * time.Millisecond}
	assert.Contains(t, err.Error(), "history")
	assert.Contains(t, err.Error(), "1.5s")
}
