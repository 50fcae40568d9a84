package messaging

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"golang.org/x/xerrors"
)

func init() {
	Producers = append(Producers, "kafka")
}

type KafkaProducer struct {
	writer *kafka.Writer

	channel string
}

func parseKafkaBalancer(balancer string) kafka.Balancer {
	switch balancer {
	case "crc32":
		return &kafka.CRC32Balancer{}
	case "hash":
		return &kafka.Hash{}
	case "murmur2":
		return &kafka.Murmur2Balancer{}
	case "roundrobin":
		return &kafka.RoundRobin{}
	case "leastbytes":
		return &kafka.LeastBytes{}
	default:
		return nil
	}
}

func (p *KafkaProducer) String() string {
	return "kafka"
}

func (p *KafkaProducer) Channel() string {
	return p.channel
}

func (p *KafkaProducer) Connect(_ context.Context, _ string, args map[string]interface{}) error {
	address, ok := getString(args, "Address")
	if !ok {
		return xerrors.New("kafka connect: string type assertion failed for Address")
	}

	if p.channel, ok = getString(args, "Channel"); !ok {
		return xerrors.New("kafka connect: string type assertion failed for Channel")
	}

	balancer, _ := getString(args, "Balancer")
	async, _ := getString(args, "Async")

	p.writer = &kafka.Writer{
		Addr:     kafka.TCP(address),
		Balancer: parseKafkaBalancer(balancer),
		Async:    mustParseBool(async),
	}

	return nil
}

// Publish writes to the topic of the producer's channel, keyed by subject.
func (p *KafkaProducer) Publish(ctx context.Context, subject string, data []byte) error {
	if p.writer == nil {
		return ErrNotConnected
	}

	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.channel,
		Key:   []byte(subject),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}

	return nil
}

func (p *KafkaProducer) Close() error {
	if p.writer == nil {
		return nil
	}

	err := p.writer.Close()
	p.writer = nil

	return err
}
