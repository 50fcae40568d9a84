package rest

import (
	"context"
	"sync"
	"time"
)

// Bucket holds the rate limit state of a single route key and the requests
// waiting on it. Requests in a bucket are sent one at a time, in order.
type Bucket struct {
	mu sync.Mutex

	key string

	limit     int
	remaining int
	resetAt   time.Time

	queue   []*Request
	running bool
}

func newBucket(key string) *Bucket {
	return &Bucket{
		key:       key,
		remaining: 1,
	}
}

// Key returns the route key of the bucket.
func (b *Bucket) Key() string {
	return b.key
}

// Remaining returns the requests left before the bucket resets.
func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.remaining
}

// ResetAt returns when the bucket next refills.
func (b *Bucket) ResetAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.resetAt
}

// Len returns how many requests are queued, including one in flight.
func (b *Bucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.queue)
}

// wait blocks until the bucket has a request available and takes it.
func (b *Bucket) wait(ctx context.Context) error {
	for {
		b.mu.Lock()

		now := time.Now()

		if b.remaining <= 0 && now.Before(b.resetAt) {
			d := b.resetAt.Sub(now)
			b.mu.Unlock()

			if err := sleep(ctx, d); err != nil {
				return err
			}

			continue
		}

		if !b.resetAt.IsZero() && !now.Before(b.resetAt) && b.limit > 0 {
			b.remaining = b.limit
			b.resetAt = time.Time{}
		}

		if b.remaining > 0 {
			b.remaining--
		}

		b.mu.Unlock()

		return nil
	}
}

// update applies the rate limit headers of a response.
func (b *Bucket) update(h rateLimitHeaders) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if h.limit > 0 {
		b.limit = h.limit
	}

	if h.hasRemaining {
		b.remaining = h.remaining
	}

	if h.hasReset {
		b.resetAt = time.Now().Add(h.resetAfter)
	}
}

// lockout empties the bucket for at least d.
func (b *Bucket) lockout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.remaining = 0

	if resetAt := time.Now().Add(d); resetAt.After(b.resetAt) {
		b.resetAt = resetAt
	}
}
