package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-chat/pkg/log"
)

type redisSubscription struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
}

// RedisPubSub relays events over Redis PUBLISH/SUBSCRIBE. Redis fans every
// message out to all subscribed connections, so each instance sees every
// event without extra configuration.
type RedisPubSub struct {
	client *redis.Client
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[string]*redisSubscription
}

// NewRedisPubSub connects to Redis and verifies the connection.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis relay: %w", err)
	}

	return &RedisPubSub{
		client: client,
		logger: log.Component("redis-relay"),
		subs:   make(map[string]*redisSubscription),
	}, nil
}

// Publish sends event to every subscriber of channel.
func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := r.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	r.logger.Debug().Str("channel", channel).Int64("receivers", receivers).Msg("event published")
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so events
// published afterwards are delivered. A channel can be subscribed once.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[channel]; ok {
		return nil, fmt.Errorf("already subscribed to %s", channel)
	}

	ps := r.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	r.subs[channel] = &redisSubscription{ps: ps, cancel: cancel}

	out := make(chan *Event, eventBufferSize)
	go r.pump(subCtx, channel, ps, out)
	return out, nil
}

func (r *RedisPubSub) pump(ctx context.Context, channel string, ps *redis.PubSub, out chan<- *Event) {
	defer close(out)

	l := r.logger.With().Str("channel", channel).Logger()
	messages := ps.Channel(redis.WithChannelSize(eventBufferSize))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			event, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				l.Warn().Err(err).Msg("discarding malformed relay event")
				continue
			}
			if !offer(ctx, out, event, l) {
				return
			}
		}
	}
}

// Unsubscribe ends the subscription to channel. Unknown channels are a no-op.
func (r *RedisPubSub) Unsubscribe(ctx context.Context, channel string) error {
	r.mu.Lock()
	sub, ok := r.subs[channel]
	delete(r.subs, channel)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	sub.cancel()
	return sub.ps.Close()
}

// Close ends every subscription and closes the client.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]*redisSubscription)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		_ = sub.ps.Close()
	}
	return r.client.Close()
}
