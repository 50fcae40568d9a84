package rest

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// GlobalRequestsPerSecond is the default proactive pace across all buckets.
const GlobalRequestsPerSecond = 50

// GlobalRateLimit gates every request. It is locked out by global 429s and
// optionally paces requests before the server has to reject them.
type GlobalRateLimit struct {
	mu      sync.Mutex
	resetAt time.Time

	pace *rate.Limiter
}

// NewGlobalRateLimit creates the global gate. A requestsPerSecond of 0
// disables proactive pacing.
func NewGlobalRateLimit(requestsPerSecond int) *GlobalRateLimit {
	g := &GlobalRateLimit{}

	if requestsPerSecond > 0 {
		g.pace = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}

	return g
}

// Wait blocks until the global lockout has passed and a request may be sent.
func (g *GlobalRateLimit) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		wait := time.Until(g.resetAt)
		g.mu.Unlock()

		if wait <= 0 {
			break
		}

		globalWaitGauge.Inc()
		err := sleep(ctx, wait)
		globalWaitGauge.Dec()

		if err != nil {
			return err
		}
	}

	if g.pace != nil {
		return g.pace.Wait(ctx)
	}

	return nil
}

// Lockout pauses all requests for d. A shorter lockout never shortens an
// existing one.
func (g *GlobalRateLimit) Lockout(d time.Duration) {
	resetAt := time.Now().Add(d)

	g.mu.Lock()
	if resetAt.After(g.resetAt) {
		g.resetAt = resetAt
	}
	g.mu.Unlock()
}

// ResetAt returns when the current lockout ends.
func (g *GlobalRateLimit) ResetAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.resetAt
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
