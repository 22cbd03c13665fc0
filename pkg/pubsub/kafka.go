package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-chat/pkg/log"
)

const (
	kafkaPollTimeout  = 500 * time.Millisecond
	kafkaFlushTimeout = 5 * time.Second
)

type kafkaSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// KafkaPubSub relays events through one Kafka topic per channel. Events are
// keyed by origin, so events from one instance keep their order. Each
// instance consumes with its own consumer group and sees every event.
type KafkaPubSub struct {
	cfg      KafkaConfig
	producer *kafka.Producer
	logger   zerolog.Logger
	events   chan struct{}

	mu     sync.Mutex
	topics map[string]bool
	subs   map[string]*kafkaSubscription
}

// NewKafkaPubSub creates the producer. Topics are created on first use.
func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	if cfg.Brokers == "" {
		return nil, errors.New("kafka relay requires brokers")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("kafka relay requires a group id")
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = 1
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	k := &KafkaPubSub{
		cfg:      cfg,
		producer: p,
		logger:   log.Component("kafka-relay"),
		events:   make(chan struct{}),
		topics:   make(map[string]bool),
		subs:     make(map[string]*kafkaSubscription),
	}
	go k.watchProducer()
	return k, nil
}

// watchProducer logs client-level errors. Delivery reports go to the
// per-message channel used by Publish.
func (k *KafkaPubSub) watchProducer() {
	defer close(k.events)
	for e := range k.producer.Events() {
		if kerr, ok := e.(kafka.Error); ok {
			k.logger.Error().Err(kerr).Bool("fatal", kerr.IsFatal()).Msg("kafka producer error")
		}
	}
}

func (k *KafkaPubSub) ensureTopic(ctx context.Context, topic string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.topics[topic] {
		return
	}

	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		k.logger.Warn().Err(err).Msg("failed to create kafka admin client")
		return
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             topic,
		NumPartitions:     k.cfg.Partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		k.logger.Warn().Err(err).Str("topic", topic).Msg("failed to create kafka topic")
		return
	}
	for _, r := range results {
		if code := r.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			k.logger.Warn().Err(r.Error).Str("topic", r.Topic).Msg("failed to create kafka topic")
			return
		}
	}
	k.topics[topic] = true
}

// Publish produces event and waits for the broker acknowledgement or ctx.
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	topic := topicName(channel)
	k.ensureTopic(ctx, topic)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	report := make(chan kafka.Event, 1)
	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.Origin),
		Value:          data,
		Timestamp:      event.Timestamp,
	}, report)
	if err != nil {
		return fmt.Errorf("failed to produce to %s: %w", topic, err)
	}

	select {
	case e := <-report:
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			return fmt.Errorf("kafka delivery to %s failed: %w", topic, m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe starts a consumer for channel's topic. Consumption begins at the
// latest offset.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	topic := topicName(channel)
	k.ensureTopic(ctx, topic)

	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.subs[channel]; ok {
		return nil, fmt.Errorf("already subscribed to %s", channel)
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":       k.cfg.Brokers,
		"group.id":                k.cfg.GroupID,
		"auto.offset.reset":       "latest",
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := c.Subscribe(topic, nil); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSubscription{cancel: cancel, done: make(chan struct{})}
	k.subs[channel] = sub

	out := make(chan *Event, eventBufferSize)
	go k.consume(subCtx, c, topic, out, sub.done)
	return out, nil
}

// consume owns c and closes it on exit.
func (k *KafkaPubSub) consume(ctx context.Context, c *kafka.Consumer, topic string, out chan<- *Event, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	l := k.logger.With().Str("topic", topic).Logger()
	defer func() {
		if err := c.Close(); err != nil {
			l.Warn().Err(err).Msg("failed to close kafka consumer")
		}
	}()

	for ctx.Err() == nil {
		msg, err := c.ReadMessage(kafkaPollTimeout)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) {
				if kerr.IsTimeout() {
					continue
				}
				if kerr.IsFatal() {
					l.Error().Err(kerr).Msg("fatal kafka consumer error")
					return
				}
			}
			l.Warn().Err(err).Msg("kafka consumer error")
			continue
		}

		event, err := decodeEvent(msg.Value)
		if err != nil {
			l.Warn().Err(err).Str("key", string(msg.Key)).Msg("discarding malformed relay event")
			continue
		}
		if !offer(ctx, out, event, l) {
			return
		}
	}
}

// Unsubscribe stops the consumer for channel and waits for it to close.
func (k *KafkaPubSub) Unsubscribe(ctx context.Context, channel string) error {
	k.mu.Lock()
	sub, ok := k.subs[channel]
	delete(k.subs, channel)
	k.mu.Unlock()

	if !ok {
		return nil
	}
	sub.cancel()
	select {
	case <-sub.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops every consumer, flushes pending messages and closes the
// producer.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	subs := k.subs
	k.subs = make(map[string]*kafkaSubscription)
	k.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}

	if remaining := k.producer.Flush(int(kafkaFlushTimeout / time.Millisecond)); remaining > 0 {
		k.logger.Warn().Int("remaining", remaining).Msg("kafka producer closed with unflushed messages")
	}
	k.producer.Close()
	<-k.events
	return nil
}
