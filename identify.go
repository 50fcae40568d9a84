package sandwich

import (
	"context"
	"time"
)

var (
	// IdentifyWindow is the rolling window the identify concurrency applies to.
	IdentifyWindow = 5 * time.Second
	IdentifyRetry  = 5 * time.Second
)

// IdentifyProvider blocks until the shard is allowed to send IDENTIFY.
type IdentifyProvider interface {
	Identify(ctx context.Context, shard *Shard) error
}

// IdentifyViaQueue uses the manager's local identify queue. Shards are let
// through in ascending order, at most max_concurrency per window.
type IdentifyViaQueue struct{}

func (IdentifyViaQueue) Identify(ctx context.Context, shard *Shard) error {
	return shard.Manager.AcquireIdentifySlot(ctx, shard.ShardID)
}
