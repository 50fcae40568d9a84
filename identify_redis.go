package sandwich

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// IdentifyViaRedis shares the identify window between processes. Each
// concurrency bucket is a key that is set for the length of the window.
// The shard waits for its local identify slot first.
type IdentifyViaRedis struct {
	client redis.UniversalClient
	window time.Duration
}

func NewIdentifyViaRedis(client redis.UniversalClient, window time.Duration) *IdentifyViaRedis {
	if window <= 0 {
		window = IdentifyWindow
	}

	return &IdentifyViaRedis{
		client: client,
		window: window,
	}
}

func identifyBucketKey(token string, shardID, maxConcurrency int32) string {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	return fmt.Sprintf("sandwich:identify:%s:%d", tokenHash(token), shardID%maxConcurrency)
}

func (i *IdentifyViaRedis) Identify(ctx context.Context, shard *Shard) error {
	err := shard.Manager.AcquireIdentifySlot(ctx, shard.ShardID)
	if err != nil {
		return err
	}

	key := identifyBucketKey(shard.Manager.Configuration().Token, shard.ShardID, shard.Manager.Concurrency())

	for {
		acquired, err := i.client.SetNX(ctx, key, shard.ShardID, i.window).Result()
		if err != nil {
			return fmt.Errorf("failed to acquire identify bucket: %w", err)
		}

		if acquired {
			return nil
		}

		wait, err := i.client.PTTL(ctx, key).Result()
		if err != nil || wait <= 0 {
			wait = 50 * time.Millisecond
		}

		shard.Logger.Debug().Str("bucket", key).Dur("wait", wait).Msg("Waiting for identify bucket")

		if err := sleepContext(ctx, wait); err != nil {
			return err
		}
	}
}
