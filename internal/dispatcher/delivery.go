package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weiawesome/wes-chat/internal/domain"
	"github.com/weiawesome/wes-chat/pkg/pubsub"
)

// Broadcaster is the part of the connection registry the dispatcher needs.
type Broadcaster interface {
	Broadcast(payload []byte) int
}

// Delivery pushes one broadcast message towards connected clients.
type Delivery interface {
	Deliver(ctx context.Context, msg domain.BroadcastMessage) (int, error)
}

// LocalDelivery broadcasts directly into this instance's hub. It returns
// the number of delivery attempts.
type LocalDelivery struct {
	hub Broadcaster
}

// NewLocalDelivery creates a delivery into hub.
func NewLocalDelivery(hub Broadcaster) *LocalDelivery {
	return &LocalDelivery{hub: hub}
}

func (d *LocalDelivery) Deliver(ctx context.Context, msg domain.BroadcastMessage) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal broadcast: %w", err)
	}
	return d.hub.Broadcast(data), nil
}

// RelayDelivery publishes to the cross-instance relay channel. Every
// instance's Relay forwards the event into its own hub, so the returned
// count is always zero.
type RelayDelivery struct {
	publisher pubsub.Publisher
	channel   string
	origin    string
}

// NewRelayDelivery creates a relay publisher. origin identifies this
// instance in published events.
func NewRelayDelivery(publisher pubsub.Publisher, origin string) *RelayDelivery {
	return &RelayDelivery{
		publisher: publisher,
		channel:   pubsub.BroadcastChannel,
		origin:    origin,
	}
}

func (d *RelayDelivery) Deliver(ctx context.Context, msg domain.BroadcastMessage) (int, error) {
	event, err := pubsub.NewEvent(pubsub.EventChatMessage, d.origin, msg)
	if err != nil {
		return 0, fmt.Errorf("failed to build relay event: %w", err)
	}

	if err := d.publisher.Publish(ctx, d.channel, event); err != nil {
		return 0, fmt.Errorf("failed to publish relay event: %w", err)
	}
	return 0, nil
}
