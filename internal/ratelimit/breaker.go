package ratelimit

import (
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"reelscout/internal/logging"
	"reelscout/internal/metrics"
	"reelscout/internal/services"
)

// Breaker stops hammering a source that keeps failing transiently. Misses and
// permanent errors do not count as failures.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// BreakerSettings tunes when the breaker trips and how long it stays open.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

// DefaultBreakerSettings opens after five straight transient failures and
// retries again after 30 seconds.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second, HalfOpenRequests: 1}
}

// NewBreaker builds a breaker named after the source it protects.
func NewBreaker(name string, settings BreakerSettings, logger *slog.Logger) *Breaker {
	logger = logging.NewComponentLogger(logger, "breaker")
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.HalfOpenRequests,
		Interval:    time.Minute,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !ShouldRetry(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			if to == gobreaker.StateOpen {
				logging.WarnWithContext(logger, "source circuit opened", "circuit_open",
					logging.String("source", name),
					logging.String(logging.FieldErrorHint, "source is failing repeatedly; requests pause until the circuit half-opens"),
					logging.String(logging.FieldImpact, "lookups fail fast and are retried on the next sync"),
				)
				return
			}
			logger.Info("source circuit state changed",
				logging.String("source", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
	})
	return &Breaker{name: name, cb: cb}
}

// Execute runs fn through the breaker. A rejected call is reported as a
// transient failure so the retry loop backs off instead of giving up.
func (b *Breaker) Execute(fn func() error) error {
	if b == nil {
		return fn()
	}
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return services.Wrap(services.ErrTransient, b.name, "circuit breaker", "request rejected", err)
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	}
	return err
}

// State returns the breaker state name ("closed", "half-open", "open").
func (b *Breaker) State() string {
	if b == nil {
		return gobreaker.StateClosed.String()
	}
	return b.cb.State().String()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
