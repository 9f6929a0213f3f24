// Package ratelimit implements the request spacing gate shared by every
// outbound Spotify Web API call. All workers acquire from the same gate, so
// the minimum spacing between two requests holds globally, not per worker.
package ratelimit

import (
	"time"
)

// Redis keys for shared gate state.
const (
	RedisKeyLastRequest = "spotify:rate_limit:last_request"
)

// DefaultMinInterval is the default spacing between two outbound requests.
const DefaultMinInterval = 500 * time.Millisecond

// RateLimitState is the gate's view of the last granted request.
type RateLimitState struct {
	// LastRequest is when the previous acquisition was granted.
	// Zero means no request has been granted yet.
	LastRequest time.Time `json:"last_request"`

	// MinInterval is the minimum spacing between two grants.
	MinInterval time.Duration `json:"min_interval"`
}

// NextAllowed returns the earliest time the next request may depart.
func (s *RateLimitState) NextAllowed() time.Time {
	if s.LastRequest.IsZero() {
		return time.Time{}
	}
	return s.LastRequest.Add(s.MinInterval)
}

// WaitFrom returns how long a caller arriving at now must wait.
// Returns 0 if the interval has already elapsed.
func (s *RateLimitState) WaitFrom(now time.Time) time.Duration {
	if s.MinInterval <= 0 || s.LastRequest.IsZero() {
		return 0
	}
	wait := s.NextAllowed().Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}
