// Package retry implements bounded exponential backoff with jitter for
// failable operations against external services.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"time"
)

const (
	DefaultMaxRetries   = 5
	DefaultInitialDelay = time.Second

	// CapacityMessage is the curated message returned when the generative
	// backend is still unavailable after every retry.
	CapacityMessage    = "Patience, gorgeous. A perfect hairstyle is worth a short wait. We're currently styling at full capacity, so please try again."
	CapacitySubMessage = "if fails again, please try again later"
)

// CapacityError is the distinguished terminal error produced when an
// exhausted operation last failed with a service-unavailable condition.
type CapacityError struct {
	UserMessage    string
	UserSubMessage string
}

func (e *CapacityError) Error() string { return e.UserMessage }

// Options configures a single Do invocation. ShouldRetry is deliberately
// required: retrying on arbitrary errors (validation failures, 4xx
// rejections) is a correctness hazard, so callers must classify.
type Options struct {
	MaxRetries   int
	InitialDelay time.Duration
	ShouldRetry  func(error) bool
}

// Backoff returns the base delay before the retry following the given
// zero-based attempt: InitialDelay * 2^attempt. Jitter is added separately.
func Backoff(initialDelay time.Duration, attempt int) time.Duration {
	return initialDelay << uint(attempt)
}

// Do runs op until it succeeds, the retry budget is spent, or ShouldRetry
// rejects the error. op is invoked at most MaxRetries+1 times. Backoff
// sleeps respect ctx cancellation.
func Do(ctx context.Context, opts Options, op func() error) error {
	if opts.ShouldRetry == nil {
		return errors.New("retry: ShouldRetry classifier is required")
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = DefaultInitialDelay
	}

	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}

		if attempt == opts.MaxRetries || !opts.ShouldRetry(err) {
			slog.Error("final attempt failed or error is not retryable", "attempt", attempt+1, "error", err)
			return translate(err)
		}

		delay := Backoff(opts.InitialDelay, attempt)
		delay += time.Duration(rand.Int63n(int64(delay)))
		slog.Warn("attempt failed, backing off", "attempt", attempt+1, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// translate promotes service-unavailable failures to the curated capacity
// error; anything else propagates unchanged.
func translate(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "503") || strings.Contains(msg, "Service Unavailable") {
		return &CapacityError{
			UserMessage:    CapacityMessage,
			UserSubMessage: CapacitySubMessage,
		}
	}
	return err
}
