package sandwich

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/WelcomerTeam/Sandwich-Client/discord"
	"github.com/WelcomerTeam/Sandwich-Client/messaging"
	"github.com/WelcomerTeam/Sandwich-Client/sandwichjson"
)

type ProducedPayload struct {
	Type     string            `json:"t"`
	Data     json.RawMessage   `json:"d"`
	Sequence int64             `json:"s,omitempty"`
	Op       discord.GatewayOp `json:"op"`

	Metadata ProducedMetadata `json:"__metadata"`
}

type ProducedMetadata struct {
	Version       string            `json:"v"`
	Identifier    string            `json:"i"`
	ApplicationID discord.Snowflake `json:"id"`
	Shard         [2]int32          `json:"s"`
	Replayed      bool              `json:"r,omitempty"`
}

// ProducerEventProvider publishes dispatch events to a message broker.
// Events other than dispatches are not produced.
type ProducerEventProvider struct {
	producer messaging.Producer

	identifier    string
	applicationID func() discord.Snowflake
	shardCount    func() int32
}

func NewProducerEventProvider(producer messaging.Producer, identifier string, manager *ShardManager) *ProducerEventProvider {
	return &ProducerEventProvider{
		producer:      producer,
		identifier:    identifier,
		applicationID: func() discord.Snowflake { return discord.Snowflake(manager.UserID.Load()) },
		shardCount:    manager.ShardCount,
	}
}

func (p *ProducerEventProvider) Dispatch(ctx context.Context, event Event) error {
	if event.Type != EventDispatch {
		return nil
	}

	payload, err := sandwichjson.Marshal(ProducedPayload{
		Type:     event.Name,
		Data:     event.Payload,
		Sequence: event.Sequence,
		Op:       discord.GatewayOpDispatch,
		Metadata: ProducedMetadata{
			Version:       Version,
			Identifier:    p.identifier,
			ApplicationID: p.applicationID(),
			Shard:         [2]int32{event.ShardID, p.shardCount()},
			Replayed:      event.Replayed,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	err = p.producer.Publish(ctx, event.Name, payload)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

func (p *ProducerEventProvider) Close() error {
	return p.producer.Close()
}
