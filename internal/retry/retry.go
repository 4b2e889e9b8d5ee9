package retry

import (
	"context"
	"time"

	"approvalScope/internal/model"
)

// Policy bounds retries of transport failures.
type Policy struct {
	MaxRetries int
	Backoff    time.Duration
	// Retryable decides whether err is worth another attempt. Defaults to model.IsNetwork.
	Retryable func(error) bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts run out.
// The delay doubles after every failed attempt. When ctx ends during a wait the
// last error from fn is returned.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := p.Backoff
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = model.IsNetwork
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !retryable(err) || attempt >= maxRetries {
			return err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		delay *= 2
	}
}
