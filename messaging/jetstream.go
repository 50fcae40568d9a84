package messaging

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/xerrors"
)

func init() {
	Producers = append(Producers, "jetstream")
}

// JetStreamProducer publishes events to a stream named after the channel,
// on subjects "<channel>.<subject>".
type JetStreamProducer struct {
	conn   *nats.Conn
	client jetstream.JetStream
	stream jetstream.Stream

	channel string
}

func (p *JetStreamProducer) String() string {
	return "jetstream"
}

func (p *JetStreamProducer) Channel() string {
	return p.channel
}

func (p *JetStreamProducer) Connect(ctx context.Context, clientName string, args map[string]interface{}) error {
	address, ok := getString(args, "Address")
	if !ok {
		return xerrors.New("jetstream connect: string type assertion failed for Address")
	}

	if p.channel, ok = getString(args, "Channel"); !ok {
		return xerrors.New("jetstream connect: string type assertion failed for Channel")
	}

	var err error

	p.conn, err = nats.Connect(address, nats.Name(clientName))
	if err != nil {
		return fmt.Errorf("jetstream connect nats: %w", err)
	}

	p.client, err = jetstream.New(p.conn)
	if err != nil {
		return fmt.Errorf("jetstream new: %w", err)
	}

	retention := jetstream.WorkQueuePolicy

	if usesInterest, _ := getString(args, "UseInterestPolicy"); mustParseBool(usesInterest) ||
		mustParseBool(os.Getenv("JETSTREAM_USE_INTEREST_POLICY")) {
		retention = jetstream.InterestPolicy
	}

	p.stream, err = p.client.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:              p.channel,
		Subjects:          []string{p.channel + ".*"},
		Retention:         retention,
		Discard:           jetstream.DiscardOld,
		MaxAge:            5 * time.Minute,
		Storage:           jetstream.MemoryStorage,
		MaxMsgsPerSubject: 1_000_000,
		MaxMsgSize:        math.MaxInt32,
		NoAck:             false,
	})
	if err != nil {
		return fmt.Errorf("jetstream create stream: %w", err)
	}

	return nil
}

func (p *JetStreamProducer) Publish(ctx context.Context, subject string, data []byte) error {
	if p.client == nil {
		return ErrNotConnected
	}

	_, err := p.client.Publish(ctx, p.channel+"."+subject, data)
	if err != nil {
		return fmt.Errorf("jetstream publish: %w", err)
	}

	return nil
}

func (p *JetStreamProducer) Close() error {
	if p.conn == nil {
		return nil
	}

	err := p.conn.Drain()
	p.conn = nil
	p.client = nil

	return err
}
