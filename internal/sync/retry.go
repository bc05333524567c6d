package sync

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// backoffDelay mirrors hashicorp/go-retryablehttp's default jittered-
// exponential backoff policy (base 2, capped), reimplemented locally since
// what's being retried here is a SQL query or RPC call, not a plain
// net/http round trip that retryablehttp's Client directly wraps.
func backoffDelay(attempt int, base, capDelay time.Duration) time.Duration {
	mult := math.Pow(2, float64(attempt))
	delay := time.Duration(float64(base) * mult)
	if delay > capDelay || delay <= 0 {
		delay = capDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 2 + 1))
	return delay/2 + jitter
}

// withRetry calls fn up to attempts times, sleeping a jittered-exponential
// backoff between failures. The last error is returned if every attempt
// fails. onRetry, if non-nil, is called once per failed attempt before
// sleeping, so the caller can log it.
func withRetry(ctx context.Context, attempts int, onRetry func(attempt int, err error), fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if onRetry != nil {
			onRetry(attempt+1, err)
		}
		if attempt == attempts-1 {
			break
		}
		delay := backoffDelay(attempt, 200*time.Millisecond, 10*time.Second)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
