package dispatcher

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-chat/pkg/log"
	"github.com/weiawesome/wes-chat/pkg/pubsub"
)

// Relay forwards chat events from the relay channel into the local hub.
type Relay struct {
	subscriber pubsub.Subscriber
	hub        Broadcaster
	channel    string
	logger     zerolog.Logger
}

// NewRelay creates a relay consumer for this instance.
func NewRelay(subscriber pubsub.Subscriber, hub Broadcaster) *Relay {
	return &Relay{
		subscriber: subscriber,
		hub:        hub,
		channel:    pubsub.BroadcastChannel,
		logger:     log.Component("relay"),
	}
}

// Start subscribes to the relay channel. Events are forwarded until ctx is
// done or the subscription ends; done is closed afterwards.
func (r *Relay) Start(ctx context.Context) (done <-chan struct{}, err error) {
	events, err := r.subscriber.Subscribe(ctx, r.channel)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to relay: %w", err)
	}

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		r.forward(ctx, events)
	}()
	return finished, nil
}

func (r *Relay) forward(ctx context.Context, events <-chan *pubsub.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				r.logger.Warn().Str("channel", r.channel).Msg("relay subscription closed")
				return
			}
			if event.Type != pubsub.EventChatMessage {
				r.logger.Debug().Str("type", event.Type).Msg("ignoring relay event")
				continue
			}
			n := r.hub.Broadcast(event.Payload)
			r.logger.Debug().
				Str("origin", event.Origin).
				Int(log.FieldSubscribers, n).
				Msg("relay event broadcast")
		}
	}
}
