package messaging

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"golang.org/x/xerrors"
)

func init() {
	Producers = append(Producers, "redis")
}

// RedisProducer publishes events over redis pub/sub on "<channel>.<subject>".
type RedisProducer struct {
	client *redis.Client

	channel string
}

func (p *RedisProducer) String() string {
	return "redis"
}

func (p *RedisProducer) Channel() string {
	return p.channel
}

func (p *RedisProducer) Connect(ctx context.Context, clientName string, args map[string]interface{}) error {
	address, ok := getString(args, "Address")
	if !ok {
		return xerrors.New("redis connect: string type assertion failed for Address")
	}

	if p.channel, ok = getString(args, "Channel"); !ok {
		return xerrors.New("redis connect: string type assertion failed for Channel")
	}

	password, _ := getString(args, "Password")

	var db int

	if dbStr, ok := getString(args, "DB"); ok {
		var err error

		db, err = strconv.Atoi(dbStr)
		if err != nil {
			return fmt.Errorf("redis connect db atoi: %w", err)
		}
	}

	p.client = redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
		OnConnect: func(ctx context.Context, cn *redis.Conn) error {
			return cn.ClientSetName(ctx, clientName).Err()
		},
	})

	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connect ping: %w", err)
	}

	return nil
}

func (p *RedisProducer) Publish(ctx context.Context, subject string, data []byte) error {
	if p.client == nil {
		return ErrNotConnected
	}

	return p.client.Publish(ctx, p.channel+"."+subject, data).Err()
}

func (p *RedisProducer) Close() error {
	if p.client == nil {
		return nil
	}

	err := p.client.Close()
	p.client = nil

	return err
}
