package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for the request gate.
var (
	rateLimitWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spotify_rate_limit_wait_seconds",
		Help:    "Time spent waiting at the request gate by backend",
		Buckets: []float64{0, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"backend"})

	rateLimitGrantsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spotify_rate_limit_grants_total",
		Help: "Total number of granted acquisitions by backend",
	}, []string{"backend"})

	rateLimitCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spotify_rate_limit_cancelled_total",
		Help: "Total number of acquisitions abandoned by context cancellation",
	}, []string{"backend"})
)

// Limiter is the in-process request gate. It is safe for concurrent use.
//
// Acquisitions are serialized: the waiting caller holds the gate, so the
// next caller measures its wait from the actual grant time of the previous one.
type Limiter struct {
	mu     sync.Mutex
	state  RateLimitState
	now    func() time.Time
	logger zerolog.Logger

	// onGrant observes each grant time under the gate (tests).
	onGrant func(time.Time)
}

// NewLimiter creates a gate enforcing minInterval between grants.
// A non-positive interval grants immediately.
func NewLimiter(minInterval time.Duration, logger zerolog.Logger) *Limiter {
	return &Limiter{
		state:  RateLimitState{MinInterval: minInterval},
		now:    time.Now,
		logger: logger,
	}
}

// Acquire blocks until at least MinInterval has elapsed since the previous
// granted acquisition. If ctx is done first it returns ctx.Err() and the
// state is left unchanged.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		rateLimitCancelledTotal.WithLabelValues("memory").Inc()
		return err
	}

	wait := l.state.WaitFrom(l.now())
	if wait > 0 {
		l.logger.Debug().
			Dur("wait", wait).
			Msg("Spacing request")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			rateLimitCancelledTotal.WithLabelValues("memory").Inc()
			return ctx.Err()
		case <-timer.C:
		}
	}

	l.state.LastRequest = l.now()
	if l.onGrant != nil {
		l.onGrant(l.state.LastRequest)
	}
	rateLimitWaitSeconds.WithLabelValues("memory").Observe(wait.Seconds())
	rateLimitGrantsTotal.WithLabelValues("memory").Inc()
	return nil
}

// Snapshot returns a copy of the current state.
func (l *Limiter) Snapshot() RateLimitState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// MinInterval returns the configured spacing.
func (l *Limiter) MinInterval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.MinInterval
}
