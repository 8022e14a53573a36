package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"equipshare-backend/internal/domain"
	"equipshare-backend/internal/logger"
	"equipshare-backend/internal/repository"
)

const DefaultChannel = "equipshare:events"

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher pushes events onto a Redis pub/sub channel for the
// real-time UI feed.
type RedisPublisher struct {
	client  publisher
	channel string
}

func NewRedisPublisher(client publisher, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Listen(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	logger.ExternalServiceCall("redis", "publish", "channel", p.channel, "event", ev.Type)
	err = p.client.Publish(ctx, p.channel, payload).Err()
	logger.ExternalServiceResult("redis", "publish", err, "channel", p.channel)
	if err != nil {
		return &repository.TransientError{Op: "redis publish", Err: err}
	}
	return nil
}
