package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRequiresClassifier(t *testing.T) {
	err := Do(context.Background(), Options{}, func() error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ShouldRetry classifier is required")
}

func TestDoReturnsFirstSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Options{
		ShouldRetry: func(error) bool { return true },
	}, func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

// A persistently failing retryable operation runs exactly MaxRetries+1 times.
func TestDoRetryCeiling(t *testing.T) {
	calls := 0
	boom := errors.New("connection reset")
	err := Do(context.Background(), Options{
		MaxRetries:   5,
		InitialDelay: time.Microsecond,
		ShouldRetry:  func(error) bool { return true },
	}, func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 6, calls)
}

func TestDoNonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	boom := errors.New("400 bad request")
	err := Do(context.Background(), Options{
		MaxRetries:   5,
		InitialDelay: time.Microsecond,
		ShouldRetry:  func(error) bool { return false },
	}, func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

// Base delays double per attempt; jitter is added on top of this.
func TestBackoffDoubles(t *testing.T) {
	initial := 1000 * time.Millisecond
	prev := Backoff(initial, 0)
	assert.Equal(t, initial, prev)
	for attempt := 1; attempt <= 5; attempt++ {
		d := Backoff(initial, attempt)
		assert.Equal(t, 2*prev, d, "delay should double at attempt %d", attempt)
		prev = d
	}
}

func TestCapacityTranslation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		capacity bool
	}{
		{"status code in message", errors.New("API request failed with status 503: overloaded"), true},
		{"service unavailable text", errors.New("googleapi: Service Unavailable"), true},
		{"unrelated error", errors.New("invalid image payload"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Do(context.Background(), Options{
				MaxRetries:   2,
				InitialDelay: time.Microsecond,
				ShouldRetry:  func(error) bool { return true },
			}, func() error { return tt.err })

			require.Error(t, err)
			var capErr *CapacityError
			if tt.capacity {
				require.ErrorAs(t, err, &capErr)
				assert.Equal(t, CapacityMessage, capErr.Error())
				assert.Equal(t, CapacitySubMessage, capErr.UserSubMessage)
				assert.NotEqual(t, tt.err.Error(), err.Error())
			} else {
				assert.False(t, errors.As(err, &capErr))
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestDoHonorsContextDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, Options{
		MaxRetries:   5,
		InitialDelay: time.Hour,
		ShouldRetry:  func(error) bool { return true },
	}, func() error { return errors.New("transient") })
	assert.ErrorIs(t, err, context.Canceled)
}
