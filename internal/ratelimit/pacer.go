package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a request-rate floor and a concurrency ceiling for one source.
type Pacer struct {
	limiter *rate.Limiter
	slots   chan struct{}
}

// NewPacer allows one request per interval with at most maxConcurrent in
// flight. A zero interval disables spacing; maxConcurrent below one is treated
// as one.
func NewPacer(interval time.Duration, maxConcurrent int) *Pacer {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{
		limiter: rate.NewLimiter(limit, 1),
		slots:   make(chan struct{}, maxConcurrent),
	}
}

// Acquire blocks until a request may be issued. The returned release must be
// called once the request completes.
func (p *Pacer) Acquire(ctx context.Context) (func(), error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := p.limiter.Wait(ctx); err != nil {
		<-p.slots
		return nil, err
	}
	released := false
	return func() {
		if !released {
			released = true
			<-p.slots
		}
	}, nil
}

// InFlight reports the number of requests currently holding a slot.
func (p *Pacer) InFlight() int {
	return len(p.slots)
}
