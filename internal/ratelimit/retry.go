package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"reelscout/internal/logging"
	"reelscout/internal/metrics"
	"reelscout/internal/services"
)

// Policy configures exponential backoff.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy returns a policy with the given attempt budget and the
// standard 1s..30s backoff window.
func DefaultPolicy(maxAttempts int) Policy {
	return Policy{MaxAttempts: maxAttempts, InitialBackoff: time.Second, MaxBackoff: 30 * time.Second}
}

// Backoff returns the wait before the given retry (1-based).
func (p Policy) Backoff(retry int) time.Duration {
	if p.InitialBackoff <= 0 {
		return 0
	}
	d := p.InitialBackoff
	for i := 1; i < retry; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// RetryAfterError is implemented by errors that carry a server-provided wait.
type RetryAfterError interface {
	RetryAfter() time.Duration
}

// Retry invokes fn until it succeeds, returns a non-retriable error, or the
// attempt budget is spent. The last error is returned unchanged.
func Retry(ctx context.Context, logger *slog.Logger, source string, policy Policy, fn func(context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil || !ShouldRetry(err) || attempt == attempts {
			return err
		}
		wait := policy.Backoff(attempt)
		var ra RetryAfterError
		if errors.As(err, &ra) && ra.RetryAfter() > wait {
			wait = ra.RetryAfter()
			if policy.MaxBackoff > 0 && wait > policy.MaxBackoff {
				wait = policy.MaxBackoff
			}
		}
		metrics.SourceRetries.WithLabelValues(source).Inc()
		if logger != nil {
			logger.Debug("transient source failure; backing off",
				logging.String("source", source),
				logging.Int("attempt", attempt),
				logging.Duration("wait", wait),
				logging.Error(err),
			)
		}
		if sleepErr := SleepWithContext(ctx, wait); sleepErr != nil {
			return err
		}
	}
	return err
}

// ShouldRetry classifies err: transient markers retry, other markers do not,
// and unmarked errors fall back to IsRetriable.
func ShouldRetry(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, services.ErrTransient):
		return true
	case errors.Is(err, services.ErrPermanent), errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrConfiguration):
		return false
	default:
		return IsRetriable(err)
	}
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// IsRetriable reports whether err represents a transient condition that
// warrants an automatic retry (rate limits, timeouts, connection errors).
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	message := strings.ToLower(err.Error())
	if strings.Contains(message, "429") || strings.Contains(message, "rate limit") {
		return true
	}
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(message, code) {
			return true
		}
	}
	for _, token := range []string{
		"timeout",
		"deadline exceeded",
		"connection reset",
		"connection refused",
		"temporary failure",
		"unexpected eof",
	} {
		if strings.Contains(message, token) {
			return true
		}
	}
	return false
}
