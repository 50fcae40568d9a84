package sandwich

import (
	"context"
	"encoding/json"
	"sync"
)

type EventType uint8

const (
	EventDispatch EventType = iota
	EventShardReady
	EventShardResumed
	EventShardDisconnect
	EventShardError
	EventShardStatus
	EventDebug
)

func (t EventType) String() string {
	switch t {
	case EventDispatch:
		return "DISPATCH"
	case EventShardReady:
		return "SHARD_READY"
	case EventShardResumed:
		return "SHARD_RESUMED"
	case EventShardDisconnect:
		return "SHARD_DISCONNECT"
	case EventShardError:
		return "SHARD_ERROR"
	case EventShardStatus:
		return "SHARD_STATUS"
	case EventDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// Event is emitted by shards to the configured EventProvider.
type Event struct {
	Err error `json:"-"`

	// Name is the dispatch type for EventDispatch and a message for EventDebug.
	Name    string          `json:"name,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	Sequence int64       `json:"sequence,omitempty"`
	ShardID  int32       `json:"shard_id"`
	Status   ShardStatus `json:"status,omitempty"`
	Type     EventType   `json:"type"`

	// Replayed is set on dispatches whose sequence was already seen.
	Replayed bool `json:"replayed,omitempty"`
}

// EventProvider receives events from shards. Dispatch is called from the
// shard's own goroutine, so events of one shard arrive in order.
type EventProvider interface {
	Dispatch(ctx context.Context, event Event) error
}

type EventProviderFunc func(ctx context.Context, event Event) error

func (f EventProviderFunc) Dispatch(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// ChannelEventProvider fans events from all shards into a single channel.
type ChannelEventProvider struct {
	events chan Event

	closeOnce sync.Once
	closed    chan struct{}
}

func NewChannelEventProvider(buffer int) *ChannelEventProvider {
	return &ChannelEventProvider{
		events: make(chan Event, buffer),
		closed: make(chan struct{}),
	}
}

func (p *ChannelEventProvider) Events() <-chan Event {
	return p.events
}

func (p *ChannelEventProvider) Dispatch(ctx context.Context, event Event) error {
	select {
	case p.events <- event:
		return nil
	case <-p.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events. The events channel is left open as shards
// may still be dispatching.
func (p *ChannelEventProvider) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
}

// MultiEventProvider dispatches every event to each provider in order.
type MultiEventProvider []EventProvider

func (m MultiEventProvider) Dispatch(ctx context.Context, event Event) error {
	for _, provider := range m {
		if err := provider.Dispatch(ctx, event); err != nil {
			return err
		}
	}

	return nil
}
