package ai

import (
	"context"
	"errors"
	"net"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds retries around the classification service. Only
// transient failures (rate limits, connection drops) are retried; any
// other API error is surfaced immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseWait    time.Duration
	Multiplier  float64

	// timer overrides wall-clock waits in tests.
	timer backoff.Timer
}

func NewRetryPolicy(maxAttempts int, baseWait time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseWait:    baseWait,
		Multiplier:  2,
	}
}

// Run executes op with exponential backoff between attempts. op errors
// wrapped with backoff.Permanent stop the loop at once; Run does that
// automatically for non-retryable API errors via retryable().
func (p RetryPolicy) Run(ctx context.Context, op func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseWait
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	if p.timer != nil {
		return backoff.RetryNotifyWithTimer(wrapped, b, nil, p.timer)
	}
	return backoff.Retry(wrapped, b)
}

// retryable reports whether the error is worth another attempt: rate
// limiting or a network-level failure. Structured API errors with any
// other status are not transient.
func retryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// The SDK returns plain wrapped errors for connection failures.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
