package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-chat/internal/config"
	"github.com/weiawesome/wes-chat/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// DefaultTombstoneTTL outlives any store read a concurrent loader may be in.
const DefaultTombstoneTTL = 30 * time.Second

// setUnlessStale writes KEYS[1] unless the tombstone KEYS[2] exists.
var setUnlessStale = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
if tonumber(ARGV[2]) > 0 then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
else
	redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

type RedisMessageCache struct {
	client       *redis.Client
	prefix       string
	tombstoneTTL time.Duration
}

type Option func(*RedisMessageCache)

// WithTombstoneTTL sets how long Set is refused after Invalidate.
func WithTombstoneTTL(ttl time.Duration) Option {
	return func(c *RedisMessageCache) {
		if ttl > 0 {
			c.tombstoneTTL = ttl
		}
	}
}

// NewRedisMessageCache connects to Redis and verifies the connection.
func NewRedisMessageCache(cfg config.RedisConfig, prefix string, opts ...Option) (*RedisMessageCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	c := &RedisMessageCache{
		client:       client,
		prefix:       prefix,
		tombstoneTTL: DefaultTombstoneTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *RedisMessageCache) key(id string) string {
	return fmt.Sprintf("%s:%s", c.prefix, id)
}

func (c *RedisMessageCache) tombstoneKey(id string) string {
	return fmt.Sprintf("%s:%s:stale", c.prefix, id)
}

func (c *RedisMessageCache) Get(ctx context.Context, id string) (*domain.Message, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	msg.EditedAt = msg.EditedAt.UTC()

	return &msg, nil
}

func (c *RedisMessageCache) Set(ctx context.Context, msg *domain.Message, ttl time.Duration) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	keys := []string{c.key(msg.ID), c.tombstoneKey(msg.ID)}
	if err := setUnlessStale.Run(ctx, c.client, keys, data, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	return nil
}

func (c *RedisMessageCache) Invalidate(ctx context.Context, id string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.tombstoneKey(id), 1, c.tombstoneTTL)
		pipe.Del(ctx, c.key(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate in redis: %w", err)
	}
	return nil
}

func (c *RedisMessageCache) Close() error {
	return c.client.Close()
}
