package http

import (
	"sync"
	"time"
)

// CommentRateLimiter allows at most limit comments per author within a
// sliding interval.
type CommentRateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewCommentRateLimiter(limit int, interval time.Duration) *CommentRateLimiter {
	return &CommentRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// Allow records an attempt by author and reports whether it fits the window.
// A non-positive limit disables limiting.
func (rl *CommentRateLimiter) Allow(author string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[author]

	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[author] = fresh
		return false
	}

	rl.history[author] = append(fresh, now)
	return true
}
