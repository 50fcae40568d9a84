package sandwich

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	mathrand "math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/WelcomerTeam/Sandwich-Client/discord"
	"github.com/WelcomerTeam/Sandwich-Client/sandwichjson"
)

func randomHex(length int) string {
	if length <= 0 {
		return ""
	}

	buf := make([]byte, length)

	_, err := rand.Read(buf)
	if err != nil {
		return ""
	}

	return hex.EncodeToString(buf)
}

func tokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))

	return hex.EncodeToString(sum[:])
}

// returnRangeInt32 converts a string like 0-4,6-7 to [0,1,2,3,4,6,7].
// When nodeCount is more than one, only ids belonging to nodeID are kept.
func returnRangeInt32(nodeCount, nodeID int32, rangeString string, max int32) (result []int32) {
	seen := make(map[int32]bool)

	for _, split := range strings.Split(rangeString, ",") {
		split = strings.TrimSpace(split)
		if split == "" {
			continue
		}

		ranges := strings.SplitN(split, "-", 2)

		low, err := strconv.Atoi(strings.TrimSpace(ranges[0]))
		if err != nil {
			continue
		}

		hi := low

		if len(ranges) == 2 {
			hi, err = strconv.Atoi(strings.TrimSpace(ranges[1]))
			if err != nil {
				continue
			}
		}

		if low < 0 {
			low = 0
		}

		if hi >= int(max) {
			hi = int(max) - 1
		}

		for i := low; i <= hi; i++ {
			if !seen[int32(i)] {
				seen[int32(i)] = true
				result = append(result, int32(i))
			}
		}
	}

	return filterNode(nodeCount, nodeID, result)
}

// validRange reports whether every part of a range string is a non negative
// id or a low-high pair with low <= high.
func validRange(rangeString string) bool {
	for _, split := range strings.Split(rangeString, ",") {
		split = strings.TrimSpace(split)
		if split == "" {
			continue
		}

		ranges := strings.SplitN(split, "-", 2)

		low, err := strconv.ParseInt(strings.TrimSpace(ranges[0]), 10, 32)
		if err != nil || low < 0 {
			return false
		}

		if len(ranges) == 2 {
			hi, err := strconv.ParseInt(strings.TrimSpace(ranges[1]), 10, 32)
			if err != nil || hi < low {
				return false
			}
		}
	}

	return true
}

func filterNode(nodeCount, nodeID int32, ids []int32) []int32 {
	if nodeCount <= 1 {
		return ids
	}

	filtered := make([]int32, 0, len(ids)/int(nodeCount)+1)

	for _, id := range ids {
		if id%nodeCount == nodeID {
			filtered = append(filtered, id)
		}
	}

	return filtered
}

// backoff returns the wait before the given reconnect attempt, doubling from
// base up to max with jitter of half the duration either side.
func backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}

	wait := base

	for i := 1; i < attempt && wait < max; i++ {
		wait *= 2
	}

	if wait > max {
		wait = max
	}

	return wait/2 + time.Duration(mathrand.Int63n(int64(wait)))
}

// randomBetween returns a duration in [min, max].
func randomBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}

	return min + time.Duration(mathrand.Int63n(int64(max-min)+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func decodeContent(msg discord.GatewayPayload, out interface{}) error {
	if err := sandwichjson.Unmarshal(msg.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", msg.Op.String(), err)
	}

	return nil
}
