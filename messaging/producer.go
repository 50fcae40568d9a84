package messaging

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/xerrors"
)

// Producers lists all producer types that are available.
var Producers = []string{}

var (
	ErrUnknownProducer = xerrors.New("No producer named")
	ErrNotConnected    = xerrors.New("Producer is not connected")
)

// Producer forwards encoded events to a message broker.
type Producer interface {
	String() string
	Channel() string

	Connect(ctx context.Context, clientName string, args map[string]interface{}) error
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}

// NewProducer returns an unconnected producer of the given type.
func NewProducer(producerType string) (Producer, error) {
	switch strings.ToLower(producerType) {
	case "kafka":
		return &KafkaProducer{}, nil
	case "redis":
		return &RedisProducer{}, nil
	case "jetstream":
		return &JetStreamProducer{}, nil
	default:
		return nil, fmt.Errorf("%w %s", ErrUnknownProducer, producerType)
	}
}

func IsProducer(producerType string) bool {
	producerType = strings.ToLower(producerType)

	for _, name := range Producers {
		if name == producerType {
			return true
		}
	}

	return false
}
