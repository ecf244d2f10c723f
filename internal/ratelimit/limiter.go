// Package ratelimit enforces per-user event budgets. Budgets are counted in
// events, not requests, so a large batch spends more than a single swipe.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one budget check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
}

// Limiter spends n units of key's per-minute budget. n above perMinute
// can never fit and is denied without spending anything; callers split
// such batches first. Implementations return a non-nil error only when the
// backing store is unavailable; callers fail open in that case.
type Limiter interface {
	Allow(ctx context.Context, key string, n, perMinute int) (Decision, error)
}

// Key builds the budget key for a user and action.
func Key(userID, action string) string {
	return userID + ":" + action
}

func retryAfterAtLeastSecond(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	return d.Round(time.Second)
}
