package limiter

import (
	"context"
	"sort"
	"sync"
	"time"
)

// OrderGrace is how long a reserved ticket that has not started waiting may
// hold back the tickets queued behind it.
var OrderGrace = 15 * time.Second

type identifyTicket struct {
	ready      chan struct{}
	reservedAt time.Time
	id         int32
	waiting    bool
	granted    bool
}

// IdentifyQueue admits at most concurrency holders per rolling window.
// Reserved ids are admitted in ascending order, ids that were never reserved
// are admitted in arrival order after them.
type IdentifyQueue struct {
	mu sync.Mutex

	window      time.Duration
	grace       time.Duration
	concurrency int

	pending []*identifyTicket
	grants  []time.Time

	timer   *time.Timer
	timerAt time.Time
}

// NewIdentifyQueue creates an IdentifyQueue. A concurrency below 1 is treated as 1.
func NewIdentifyQueue(concurrency int, window time.Duration) *IdentifyQueue {
	if concurrency < 1 {
		concurrency = 1
	}

	return &IdentifyQueue{
		window:      window,
		grace:       OrderGrace,
		concurrency: concurrency,
	}
}

// Concurrency returns the amount of grants allowed per window.
func (q *IdentifyQueue) Concurrency() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.concurrency
}

// SetConcurrency changes the amount of grants allowed per window.
func (q *IdentifyQueue) SetConcurrency(concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}

	q.mu.Lock()
	q.concurrency = concurrency
	q.pumpLocked()
	q.mu.Unlock()
}

// Reserve queues ids in ascending order ahead of their Acquire call.
// Ids that already hold a ticket are ignored.
func (q *IdentifyQueue) Reserve(ids ...int32) {
	sorted := append([]int32(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()

	for _, id := range sorted {
		if q.findLocked(id) >= 0 {
			continue
		}

		q.pending = append(q.pending, &identifyTicket{
			ready:      make(chan struct{}),
			reservedAt: now,
			id:         id,
		})
	}
}

// Acquire blocks until id may identify. A cancelled wait gives up its ticket.
func (q *IdentifyQueue) Acquire(ctx context.Context, id int32) error {
	q.mu.Lock()

	index := q.findLocked(id)
	if index < 0 {
		q.pending = append(q.pending, &identifyTicket{
			ready:      make(chan struct{}),
			reservedAt: time.Now(),
			id:         id,
		})
		index = len(q.pending) - 1
	}

	ticket := q.pending[index]
	ticket.waiting = true

	q.pumpLocked()
	q.mu.Unlock()

	select {
	case <-ticket.ready:
		return nil
	case <-ctx.Done():
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	// Granted between the context finishing and taking the lock.
	if ticket.granted {
		return nil
	}

	q.removeLocked(ticket)
	q.pumpLocked()

	return ctx.Err()
}

// Cancel drops the ticket held by id, if it has not been granted.
func (q *IdentifyQueue) Cancel(id int32) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index := q.findLocked(id); index >= 0 {
		q.removeLocked(q.pending[index])
		q.pumpLocked()
	}
}

// Pending returns the ids currently holding a ticket, in admission order.
func (q *IdentifyQueue) Pending() []int32 {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]int32, len(q.pending))
	for i, ticket := range q.pending {
		ids[i] = ticket.id
	}

	return ids
}

// Close stops any scheduled wakeup.
func (q *IdentifyQueue) Close() {
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.mu.Unlock()
}

func (q *IdentifyQueue) findLocked(id int32) int {
	for i, ticket := range q.pending {
		if ticket.id == id {
			return i
		}
	}

	return -1
}

func (q *IdentifyQueue) removeLocked(ticket *identifyTicket) {
	for i, t := range q.pending {
		if t == ticket {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)

			return
		}
	}
}

// pumpLocked grants waiting tickets among the first free positions of the
// queue and schedules itself again when work is left over. A reserved ticket
// that has not started waiting keeps its position until its grace ends,
// holding back only the tickets queued after the free positions.
func (q *IdentifyQueue) pumpLocked() {
	now := time.Now()

	expired := 0
	for expired < len(q.grants) && !now.Before(q.grants[expired].Add(q.window)) {
		expired++
	}

	q.grants = q.grants[expired:]

	var graceAt time.Time

	free := q.concurrency - len(q.grants)

	for i := 0; i < len(q.pending) && free > 0; {
		ticket := q.pending[i]

		if !ticket.waiting {
			graceEnd := ticket.reservedAt.Add(q.grace)
			if now.Before(graceEnd) {
				// Still connecting. Keep its position.
				free--

				if graceAt.IsZero() || graceEnd.Before(graceAt) {
					graceAt = graceEnd
				}
			}

			i++

			continue
		}

		q.pending = append(q.pending[:i], q.pending[i+1:]...)

		ticket.granted = true
		close(ticket.ready)

		q.grants = append(q.grants, now)
		free--
	}

	if !q.hasWaitingLocked() {
		return
	}

	wakeAt := graceAt

	if len(q.grants) >= q.concurrency {
		wakeAt = q.grants[0].Add(q.window)
	}

	if wakeAt.IsZero() {
		return
	}

	q.scheduleLocked(wakeAt)
}

func (q *IdentifyQueue) hasWaitingLocked() bool {
	for _, ticket := range q.pending {
		if ticket.waiting {
			return true
		}
	}

	return false
}

func (q *IdentifyQueue) scheduleLocked(at time.Time) {
	if q.timer != nil && q.timerAt.Equal(at) {
		return
	}

	if q.timer != nil {
		q.timer.Stop()
	}

	q.timerAt = at
	q.timer = time.AfterFunc(time.Until(at), func() {
		q.mu.Lock()
		q.timer = nil
		q.pumpLocked()
		q.mu.Unlock()
	})
}
