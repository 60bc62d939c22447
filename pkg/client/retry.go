package client

import (
	"context"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/Sternrassler/archive-exporter/pkg/ratelimit"
)

// Jitter bounds applied to every computed backoff.
const (
	JitterMin = 0.7
	JitterMax = 1.3
)

// maxBackoffShift keeps base<<attempt from overflowing time.Duration.
const maxBackoffShift = 30

// retryableStatuses are the HTTP statuses that trigger a retry.
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsRetryableStatus reports whether a response status should be retried.
func IsRetryableStatus(code int) bool {
	return retryableStatuses[code]
}

// BackoffFloor returns base * 2^attempt, the wait before jitter and before
// any Retry-After adjustment.
func BackoffFloor(base time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	return base * time.Duration(1<<uint(attempt))
}

// Jitter scales d by a random factor in [JitterMin, JitterMax].
func Jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (JitterMin + rand.Float64()*(JitterMax-JitterMin)))
}

// backoffFor computes the wait before the next attempt. For 429 responses a
// Retry-After hint raises the wait to at least that value, and stays a floor
// after jitter.
func (c *Client) backoffFor(resp *http.Response, attempt int) (wait time.Duration, retryAfter time.Duration) {
	wait = BackoffFloor(c.config.BackoffBase, attempt)

	hasRetryAfter := false
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		if ra, ok := ratelimit.RetryAfterFromHeader(resp.Header, c.now()); ok {
			retryAfter, hasRetryAfter = ra, true
			if ra > wait {
				wait = ra
			}
		}
	}

	wait = c.jitter(wait)
	if hasRetryAfter && wait < retryAfter {
		wait = retryAfter
	}
	return wait, retryAfter
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
