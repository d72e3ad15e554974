// Package ratelimit caps how many API requests one caller may make per
// sliding window. Callers are keyed by principal, or by client IP before
// authentication.
package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window frees a slot.
func (r *Result) RetryAfter(now time.Time) int {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return 1
	}
	return int((d + time.Second - 1) / time.Second)
}

// Store counts requests in a sliding window. Denied requests are not counted.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (*Result, error)
}

// Limit is a request budget for one endpoint class.
type Limit struct {
	Requests int
	Window   time.Duration
}
