package limiter

import (
	"context"
	"sync"
	"time"
)

// DurationLimiter represents something that will wait until the ratelimit
// has cleared.
type DurationLimiter struct {
	mu sync.Mutex

	name     string
	limit    int32
	duration time.Duration

	resetsAt  time.Time
	available int32
}

// NewDurationLimiter creates a DurationLimiter. This is useful for allowing
// a specific operation to run only X amount of times in a duration of Y.
func NewDurationLimiter(name string, limit int32, duration time.Duration) *DurationLimiter {
	return &DurationLimiter{
		name:     name,
		limit:    limit,
		duration: duration,
	}
}

// Name returns the name the limiter was created with.
func (l *DurationLimiter) Name() string {
	return l.name
}

// Wait blocks until there is an available slot in the limiter or the
// context is done.
func (l *DurationLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()

		now := time.Now()

		// If we have surpassed the resetAt, then make a new resetAt and free
		// up available.
		if !now.Before(l.resetsAt) {
			l.resetsAt = now.Add(l.duration)
			l.available = l.limit
		}

		if l.available > 0 {
			l.available--
			l.mu.Unlock()

			return nil
		}

		sleepDuration := l.resetsAt.Sub(now)
		l.mu.Unlock()

		timer := time.NewTimer(sleepDuration)

		select {
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Available returns how many slots are left in the current window.
func (l *DurationLimiter) Available() int32 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !time.Now().Before(l.resetsAt) {
		return l.limit
	}

	return l.available
}

// Reset starts a fresh window with the full limit available.
func (l *DurationLimiter) Reset() {
	l.mu.Lock()
	l.resetsAt = time.Now().Add(l.duration)
	l.available = l.limit
	l.mu.Unlock()
}
