package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// eventBufferSize bounds the per-subscription delivery channel.
const eventBufferSize = 256

// Event is the envelope published on a channel. Origin names the instance
// that published it.
type Event struct {
	Type      string          `json:"type"`
	Origin    string          `json:"origin,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent marshals payload into a timestamped event.
func NewEvent(eventType, origin string, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return &Event{
		Type:      eventType,
		Origin:    origin,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// UnmarshalPayload decodes the event payload into v.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

func decodeEvent(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	if event.Type == "" {
		return nil, fmt.Errorf("event has no type")
	}
	return &event, nil
}

// offer hands event to a subscriber without blocking the transport loop.
// It reports false only when ctx is done.
func offer(ctx context.Context, out chan<- *Event, event *Event, l zerolog.Logger) bool {
	select {
	case out <- event:
		return true
	case <-ctx.Done():
		return false
	default:
		l.Warn().Str("type", event.Type).Str("origin", event.Origin).Msg("subscriber buffer full, dropping event")
		return true
	}
}

// Publisher publishes events to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, event *Event) error
}

// Subscriber receives events from a channel. The returned channel is closed
// when the subscription ends.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan *Event, error)
	Unsubscribe(ctx context.Context, channel string) error
}

// PubSub is a full relay transport.
type PubSub interface {
	Publisher
	Subscriber
	Close() error
}
