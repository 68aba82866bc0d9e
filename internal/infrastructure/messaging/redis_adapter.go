package messaging

import (
	"context"

	redisinfra "github.com/refnet-platform/progression-engine/internal/infrastructure/persistence/redis"
)

// cacheRedisClient adapts the shared persistence Redis client to the
// RedisClient interface the event bus works against.
type cacheRedisClient struct {
	cache *redisinfra.Cache
}

// NewCacheRedisClient wraps an existing Redis cache client for Pub/Sub use.
// The underlying connection stays owned by the caller: Close here is a no-op.
func NewCacheRedisClient(cache *redisinfra.Cache) RedisClient {
	return &cacheRedisClient{cache: cache}
}

func (c *cacheRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	return c.cache.Publish(ctx, channel, message)
}

func (c *cacheRedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error) {
	sub := c.cache.Subscribe(ctx, channels...)

	// Wait for the subscription to be confirmed before handing out the channel.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan RedisMessage)

	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (c *cacheRedisClient) Close() error {
	return nil
}
