package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reelscout/internal/logging"
	"reelscout/internal/services"
)

func TestPacerSpacesRequests(t *testing.T) {
	pacer := NewPacer(40*time.Millisecond, 4)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		release, err := pacer.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire returned error: %v", err)
		}
		release()
	}
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Fatalf("expected requests to be spaced, took %s", elapsed)
	}
}

func TestPacerBoundsConcurrency(t *testing.T) {
	pacer := NewPacer(0, 2)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		current atomic.Int32
		peak    atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := pacer.Acquire(ctx)
			if err != nil {
				t.Errorf("Acquire returned error: %v", err)
				return
			}
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
			release()
		}()
	}
	wg.Wait()
	if peak.Load() > 2 {
		t.Fatalf("expected at most 2 in flight, saw %d", peak.Load())
	}
	if pacer.InFlight() != 0 {
		t.Fatalf("expected all slots released, got %d", pacer.InFlight())
	}
}

func TestPacerHonorsCancellation(t *testing.T) {
	pacer := NewPacer(0, 1)
	release, err := pacer.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := pacer.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestPolicyBackoffIsCapped(t *testing.T) {
	p := Policy{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Fatalf("Backoff(%d) = %s, want %s", i+1, got, w)
		}
	}
}

func TestRetryRecoversFromTransient(t *testing.T) {
	policy := Policy{MaxAttempts: 4, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
	calls := 0
	err := Retry(context.Background(), logging.NewNop(), "test", policy, func(context.Context) error {
		calls++
		if calls < 3 {
			return services.Wrap(services.ErrTransient, "test", "fetch", "http 503", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	policy := Policy{MaxAttempts: 5, InitialBackoff: time.Millisecond}
	calls := 0
	err := Retry(context.Background(), nil, "test", policy, func(context.Context) error {
		calls++
		return services.Wrap(services.ErrPermanent, "test", "decode", "bad payload", nil)
	})
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	policy := Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond}
	calls := 0
	err := Retry(context.Background(), nil, "test", policy, func(context.Context) error {
		calls++
		return errors.New("connection reset by peer")
	})
	if err == nil || calls != 3 {
		t.Fatalf("expected 3 failing calls, got %d (%v)", calls, err)
	}
}

func TestRetryStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 10, InitialBackoff: time.Hour}
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, nil, "test", policy, func(context.Context) error {
			calls++
			return services.Wrap(services.ErrTransient, "test", "fetch", "429", nil)
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error after cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("retry did not observe cancellation")
	}
	if calls != 1 {
		t.Fatalf("expected one call before cancellation, got %d", calls)
	}
}

func TestShouldRetryClassification(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{context.DeadlineExceeded, true},
		{errors.New("status 429 too many requests"), true},
		{errors.New("schema mismatch"), false},
		{services.Wrap(services.ErrNotFound, "x", "y", "z", nil), false},
		{services.Wrap(services.ErrTransient, "x", "y", "z", errors.New("boom")), true},
	}
	for _, tc := range cases {
		if got := ShouldRetry(tc.err); got != tc.want {
			t.Fatalf("ShouldRetry(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestBreakerOpensOnTransientFailures(t *testing.T) {
	b := NewBreaker("test-open", BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Hour, HalfOpenRequests: 1}, logging.NewNop())
	transient := services.Wrap(services.ErrTransient, "test", "fetch", "503", nil)
	for i := 0; i < 2; i++ {
		if err := b.Execute(func() error { return transient }); !errors.Is(err, transient) {
			t.Fatalf("expected underlying error, got %v", err)
		}
	}
	if b.State() != "open" {
		t.Fatalf("expected open breaker, got %s", b.State())
	}
	called := false
	err := b.Execute(func() error { called = true; return nil })
	if called {
		t.Fatal("expected open breaker to reject call")
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected rejection to be transient, got %v", err)
	}
}

func TestBreakerIgnoresPermanentFailures(t *testing.T) {
	b := NewBreaker("test-permanent", BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Hour}, nil)
	permanent := services.Wrap(services.ErrNotFound, "test", "lookup", "404", nil)
	for i := 0; i < 5; i++ {
		_ = b.Execute(func() error { return permanent })
	}
	if b.State() != "closed" {
		t.Fatalf("expected closed breaker, got %s", b.State())
	}
}
