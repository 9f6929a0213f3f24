package client

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/spotify-catalog-client/pkg/backoff"
	"github.com/Sternrassler/spotify-catalog-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	spotifyRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spotify_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"kind"})

	spotifyRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spotify_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error kind",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"kind"})

	spotifyRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spotify_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"kind"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	// Zero means exactly one attempt.
	MaxRetries int

	// Policy computes the delay before each retry.
	Policy backoff.Policy

	// MaxRetryAfter caps a server Retry-After hint. Zero uses Policy.MaxDelay;
	// when both are zero hints are not capped.
	MaxRetryAfter time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		Policy:     backoff.DefaultPolicy(),
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Retrier runs operations through the shared request gate and retries
// transient and rate-limited failures with backoff.
type Retrier struct {
	gate   ratelimit.Gate
	config RetryConfig
	sleep  SleepFunc
	logger zerolog.Logger
}

// NewRetrier creates a Retrier. A nil gate skips request spacing.
func NewRetrier(gate ratelimit.Gate, cfg RetryConfig, logger zerolog.Logger) *Retrier {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxRetryAfter <= 0 {
		cfg.MaxRetryAfter = cfg.Policy.MaxDelay
	}
	return &Retrier{
		gate:   gate,
		config: cfg,
		sleep:  sleepContext,
		logger: logger,
	}
}

// WithSleeper replaces the wait between attempts (for testing).
func (r *Retrier) WithSleeper(sleep SleepFunc) *Retrier {
	cp := *r
	cp.sleep = sleep
	return &cp
}

// Config returns the effective configuration.
func (r *Retrier) Config() RetryConfig {
	return r.config
}

// Do executes op until it succeeds, fails permanently or the retry budget is
// spent. Every attempt, including retries, passes the request gate first.
//
// Permanent errors are returned unchanged. Exhaustion returns a
// *RetryExhaustedError. Cancellation returns an error wrapping both
// ErrContextCancelled and ctx.Err().
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if r.gate != nil {
			if err := r.gate.Acquire(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return fmt.Errorf("%w: %w", ErrContextCancelled, ctxErr)
				}
				return fmt.Errorf("acquire request slot: %w", err)
			}
		}

		err := op(ctx)
		if err == nil {
			if attempt > 0 {
				r.logger.Info().
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctxErr)
		}

		kind := KindOf(err)
		if !shouldRetry(kind) {
			return err
		}

		if attempt >= r.config.MaxRetries {
			spotifyRetryExhaustedTotal.WithLabelValues(string(kind)).Inc()
			r.logger.Warn().
				Err(err).
				Str("kind", string(kind)).
				Int("attempts", attempt+1).
				Msg("Retry attempts exhausted")
			return &RetryExhaustedError{Attempts: attempt + 1, Kind: kind, Cause: err}
		}

		delay := r.delay(attempt, kind, err)

		spotifyRetriesTotal.WithLabelValues(string(kind)).Inc()
		spotifyRetryBackoffSeconds.WithLabelValues(string(kind)).Observe(delay.Seconds())

		r.logger.Debug().
			Err(err).
			Str("kind", string(kind)).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		if err := r.sleep(ctx, delay); err != nil {
			r.logger.Warn().
				Str("kind", string(kind)).
				Int("attempt", attempt+1).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}
}

// delay is the wait before the retry following attempt. A rate-limit hint
// raises it, bounded by MaxRetryAfter.
func (r *Retrier) delay(attempt int, kind ErrorKind, err error) time.Duration {
	d := r.config.Policy.Delay(attempt)
	if kind != KindRateLimited {
		return d
	}

	hint := RetryAfterOf(err)
	if limit := r.config.MaxRetryAfter; limit > 0 && hint > limit {
		hint = limit
	}
	if hint > d {
		return hint
	}
	return d
}

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
