package hub

import "context"

// Transport delivers payloads to one connected client. Send must honor ctx
// cancellation. Close releases the underlying connection.
type Transport interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// subscriber is one registry entry. queue and quit are owned by the hub
// loop; the writer goroutine only reads them.
type subscriber struct {
	id        string
	userID    string
	transport Transport
	queue     chan []byte
	quit      chan struct{}
}

func newSubscriber(id, userID string, t Transport, queueSize int) *subscriber {
	return &subscriber{
		id:        id,
		userID:    userID,
		transport: t,
		queue:     make(chan []byte, queueSize),
		quit:      make(chan struct{}),
	}
}

// writePump sends queued payloads in order until the subscriber is removed
// or a send fails. Items still queued at removal are discarded.
func (h *Hub) writePump(s *subscriber) {
	defer h.writers.Done()
	defer func() {
		if err := s.transport.Close(); err != nil {
			h.logger.Debug().Err(err).Str(fieldSubscription, s.id).Msg("transport close failed")
		}
	}()

	for {
		select {
		case <-s.quit:
			return
		case payload := <-s.queue:
			select {
			case <-s.quit:
				return
			default:
			}

			if err := h.send(s, payload); err != nil {
				h.logger.Warn().
					Err(err).
					Str(fieldSubscription, s.id).
					Str(fieldUserID, s.userID).
					Msg("send failed, dropping subscriber")
				h.Unsubscribe(s.id)
				return
			}
		}
	}
}

func (h *Hub) send(s *subscriber, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SendTimeout)
	defer cancel()

	// A transport that ignores ctx and returns late still counts as timed out.
	err := s.transport.Send(ctx, payload)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return err
}
