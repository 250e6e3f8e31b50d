package common

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"
)

// Backoff returns a jittered exponential delay for attempt n (1-indexed).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	delay := base * time.Duration(1<<uint(attempt-1))
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(delay)/2)) - delay/4
	return delay + jitter
}

// Transient reports whether an error looks like a temporary provider
// failure worth one retry: timeouts and connection-level errors. Auth and
// validation failures are not transient.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "timeout")
}

// RetryOnce runs fn and, if it fails with a transient error, waits one
// backoff interval and runs it a second time. Non-transient failures and
// context cancellation surface immediately.
func RetryOnce(ctx context.Context, base time.Duration, fn func() error) error {
	err := fn()
	if err == nil || !Transient(err) {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(Backoff(base, 1)):
	}
	return fn()
}
