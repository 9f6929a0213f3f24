// Package backoff computes retry delays for Spotify Web API calls.
//
// The curve is capped exponential growth plus additive jitter:
//
//	delay = min(MaxDelay, InitialDelay * Multiplier^attempt) + U[0, Jitter)
//
// Policy is a plain value with no side effects. BackOff adapts it to the
// cenkalti/backoff interface so library retry loops follow the same curve.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"

	cbackoff "github.com/cenkalti/backoff/v4"
)

// Policy holds the backoff parameters.
type Policy struct {
	// InitialDelay is the delay before the first retry (attempt 0).
	InitialDelay time.Duration

	// MaxDelay caps the exponential part of the delay.
	MaxDelay time.Duration

	// Multiplier is the growth factor per attempt.
	Multiplier float64

	// Jitter is the upper bound of the uniform random addition.
	Jitter time.Duration

	// Rand returns a value in [0, 1). Nil uses math/rand/v2.
	Rand func() float64
}

// DefaultPolicy returns the default backoff policy (1s, 60s cap, x2, 1s jitter).
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		Jitter:       1 * time.Second,
	}
}

// Floor returns the jitter-free delay for an attempt: min(MaxDelay, InitialDelay*Multiplier^attempt).
// Negative attempts are treated as zero.
func (p Policy) Floor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if p.InitialDelay <= 0 {
		return 0
	}

	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	// Float math so large attempts saturate instead of overflowing int64.
	delay := float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt))
	if p.MaxDelay > 0 && (delay > float64(p.MaxDelay) || math.IsInf(delay, 1)) {
		return p.MaxDelay
	}
	if delay > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Delay returns the delay before the retry following the given attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	return p.Floor(attempt) + p.jitter()
}

// Ceiling returns the largest delay Delay can produce for any attempt.
func (p Policy) Ceiling() time.Duration {
	return p.MaxDelay + p.Jitter
}

func (p Policy) jitter() time.Duration {
	if p.Jitter <= 0 {
		return 0
	}
	r := p.Rand
	if r == nil {
		r = rand.Float64
	}
	return time.Duration(r() * float64(p.Jitter))
}

// BackOff returns a cenkalti/backoff BackOff that walks this policy's curve.
// Combine with cbackoff.WithMaxRetries and cbackoff.WithContext to bound it.
func (p Policy) BackOff() cbackoff.BackOff {
	return &sequence{policy: p}
}

// sequence is the stateful cursor over a Policy used by cenkalti/backoff.
type sequence struct {
	policy  Policy
	attempt int
}

// NextBackOff implements cbackoff.BackOff.
func (s *sequence) NextBackOff() time.Duration {
	d := s.policy.Delay(s.attempt)
	s.attempt++
	return d
}

// Reset implements cbackoff.BackOff.
func (s *sequence) Reset() {
	s.attempt = 0
}
