package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/spotify-catalog-client/pkg/backoff"
)

// countingGate records acquisitions.
type countingGate struct {
	acquired int
	err      error
}

func (g *countingGate) Acquire(ctx context.Context) error {
	if g.err != nil {
		return g.err
	}
	g.acquired++
	return ctx.Err()
}

// recordingSleeper records requested delays without waiting.
type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func testPolicy() backoff.Policy {
	return backoff.Policy{
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2,
	}
}

func newTestRetrier(maxRetries int) (*Retrier, *countingGate, *recordingSleeper) {
	gate := &countingGate{}
	sleeper := &recordingSleeper{}
	r := NewRetrier(gate, RetryConfig{MaxRetries: maxRetries, Policy: testPolicy()}, zerolog.Nop()).
		WithSleeper(sleeper.sleep)
	return r, gate, sleeper
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", config.MaxRetries)
	}
	if config.Policy.InitialDelay != 1*time.Second {
		t.Errorf("InitialDelay = %v, want 1s", config.Policy.InitialDelay)
	}
	if config.Policy.MaxDelay != 60*time.Second {
		t.Errorf("MaxDelay = %v, want 60s", config.Policy.MaxDelay)
	}

	r := NewRetrier(nil, config, zerolog.Nop())
	if got := r.Config().MaxRetryAfter; got != 60*time.Second {
		t.Errorf("MaxRetryAfter = %v, want MaxDelay 60s", got)
	}
}

func TestRetrier_TransientThenSuccess(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		maxRetries int
		wantCalls  int
		wantErr    bool
	}{
		{"immediate success", 0, 5, 1, false},
		{"two failures", 2, 5, 3, false},
		{"failures equal budget", 5, 5, 6, false},
		{"failures exceed budget", 6, 5, 6, true},
		{"no retries", 1, 0, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, gate, sleeper := newTestRetrier(tt.maxRetries)

			calls := 0
			err := r.Do(context.Background(), func(ctx context.Context) error {
				calls++
				if calls <= tt.failures {
					return &APIError{StatusCode: 503, Kind: KindTransient, Message: "unavailable"}
				}
				return nil
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if gate.acquired != calls {
				t.Errorf("gate acquisitions = %d, want one per attempt (%d)", gate.acquired, calls)
			}
			if len(sleeper.delays) != calls-1 {
				t.Errorf("sleeps = %d, want %d", len(sleeper.delays), calls-1)
			}

			if tt.wantErr {
				var exhausted *RetryExhaustedError
				if !errors.As(err, &exhausted) {
					t.Fatalf("error = %v, want *RetryExhaustedError", err)
				}
				if exhausted.Attempts != tt.wantCalls {
					t.Errorf("Attempts = %d, want %d", exhausted.Attempts, tt.wantCalls)
				}
				if exhausted.Kind != KindTransient {
					t.Errorf("Kind = %q, want transient", exhausted.Kind)
				}
				if !errors.Is(err, ErrRetryExhausted) {
					t.Error("errors.Is(err, ErrRetryExhausted) should be true")
				}
			} else if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestRetrier_BackoffCurve(t *testing.T) {
	r, _, sleeper := newTestRetrier(4)

	_ = r.Do(context.Background(), func(ctx context.Context) error {
		return &APIError{Kind: KindTransient}
	})

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(sleeper.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", sleeper.delays, want)
	}
	for i, w := range want {
		if sleeper.delays[i] != w {
			t.Errorf("delay[%d] = %v, want %v", i, sleeper.delays[i], w)
		}
	}
}

func TestRetrier_RetryAfterHint(t *testing.T) {
	tests := []struct {
		name      string
		hint      time.Duration
		wantDelay time.Duration
	}{
		{"hint above backoff", 2 * time.Second, 2 * time.Second},
		{"hint below backoff", 500 * time.Millisecond, 1 * time.Second},
		{"absent hint", 0, 1 * time.Second},
		{"hint capped", 10 * time.Minute, 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, sleeper := newTestRetrier(5)

			calls := 0
			err := r.Do(context.Background(), func(ctx context.Context) error {
				calls++
				if calls == 1 {
					return &APIError{StatusCode: 429, Kind: KindRateLimited, RetryAfter: tt.hint}
				}
				return nil
			})
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if calls != 2 {
				t.Errorf("calls = %d, want 2", calls)
			}
			if len(sleeper.delays) != 1 || sleeper.delays[0] != tt.wantDelay {
				t.Errorf("delays = %v, want [%v]", sleeper.delays, tt.wantDelay)
			}
		})
	}
}

func TestRetrier_RetryAfterUncapped(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 1, Policy: backoff.Policy{InitialDelay: time.Second, Multiplier: 2}}
	sleeper := &recordingSleeper{}
	r := NewRetrier(nil, cfg, zerolog.Nop()).WithSleeper(sleeper.sleep)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &APIError{StatusCode: 429, Kind: KindRateLimited, RetryAfter: 90 * time.Second}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(sleeper.delays) != 1 || sleeper.delays[0] != 90*time.Second {
		t.Errorf("delays = %v, want [1m30s] with no MaxDelay cap", sleeper.delays)
	}
}

func TestRetrier_NoRetriesAnyKind(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		exhausted bool
	}{
		{"transient", &APIError{StatusCode: 502, Kind: KindTransient}, true},
		{"rate limited with hint", &APIError{StatusCode: 429, Kind: KindRateLimited, RetryAfter: 2 * time.Second}, true},
		{"permanent", &APIError{StatusCode: 400, Kind: KindPermanent}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, gate, sleeper := newTestRetrier(0)

			calls := 0
			err := r.Do(context.Background(), func(ctx context.Context) error {
				calls++
				return tt.err
			})

			if calls != 1 {
				t.Errorf("calls = %d, want 1", calls)
			}
			if gate.acquired != 1 {
				t.Errorf("gate acquisitions = %d, want 1", gate.acquired)
			}
			if len(sleeper.delays) != 0 {
				t.Errorf("sleeps = %v, want none", sleeper.delays)
			}

			var exhausted *RetryExhaustedError
			if got := errors.As(err, &exhausted); got != tt.exhausted {
				t.Errorf("RetryExhaustedError = %v, want %v (err %v)", got, tt.exhausted, err)
			}
			if !tt.exhausted && err != tt.err {
				t.Errorf("error = %v, want the original error unchanged", err)
			}
		})
	}
}

func TestRetrier_RateLimitedExhausted(t *testing.T) {
	r, _, _ := newTestRetrier(2)

	err := r.Do(context.Background(), func(ctx context.Context) error {
		return &APIError{StatusCode: 429, Kind: KindRateLimited}
	})

	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want *RetryExhaustedError", err)
	}
	if exhausted.Kind != KindRateLimited {
		t.Errorf("Kind = %q, want rate_limited", exhausted.Kind)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exhausted.Attempts)
	}
}

func TestRetrier_PermanentNotRetried(t *testing.T) {
	r, _, sleeper := newTestRetrier(5)

	original := &APIError{StatusCode: 404, Kind: KindPermanent, Message: "not found"}
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return original
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if err != original {
		t.Errorf("error = %v, want the original error unchanged", err)
	}
	if len(sleeper.delays) != 0 {
		t.Errorf("sleeps = %d, want 0", len(sleeper.delays))
	}
}

func TestRetrier_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	r := NewRetrier(nil, RetryConfig{MaxRetries: 5, Policy: testPolicy()}, zerolog.Nop()).
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		})

	calls := 0
	err := r.Do(ctx, func(ctx context.Context) error {
		calls++
		return &APIError{Kind: KindTransient}
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("error = %v, want ErrContextCancelled", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestRetrier_RealSleepHonoursDeadline(t *testing.T) {
	r := NewRetrier(nil, RetryConfig{MaxRetries: 5, Policy: testPolicy()}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := r.Do(ctx, func(ctx context.Context) error {
		return &APIError{Kind: KindTransient}
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Do() took %v, want return at the deadline", elapsed)
	}
}

func TestRetrier_GateFailure(t *testing.T) {
	gate := &countingGate{err: errors.New("redis down")}
	r := NewRetrier(gate, RetryConfig{Policy: testPolicy()}, zerolog.Nop())

	called := false
	err := r.Do(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})

	if err == nil {
		t.Fatal("Expected error from gate, got nil")
	}
	if called {
		t.Error("op should not run when the gate fails")
	}
}
