package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-chat/internal/domain"
	"github.com/weiawesome/wes-chat/pkg/log"
)

// Config controls the notification queue.
type Config struct {
	QueueSize      int
	DeliverTimeout time.Duration
}

// Dispatcher fans persisted messages out to subscribers. Notify never
// blocks; a single worker delivers notifications in the order they were
// accepted.
type Dispatcher struct {
	delivery Delivery
	cfg      Config
	logger   zerolog.Logger

	queue  chan domain.BroadcastMessage
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// New creates a dispatcher and starts its worker.
func New(delivery Delivery, cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = 5 * time.Second
	}

	d := &Dispatcher{
		delivery: delivery,
		cfg:      cfg,
		logger:   log.Component("dispatcher"),
		queue:    make(chan domain.BroadcastMessage, cfg.QueueSize),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify queues a persisted message for fan-out. It reports false when the
// notification was dropped because the queue is full or the dispatcher is
// closed.
func (d *Dispatcher) Notify(msg *domain.Message, author domain.UserIdentity) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}

	select {
	case d.queue <- domain.NewBroadcastMessage(msg, author):
		return true
	default:
		d.logger.Warn().
			Str(log.FieldMessageID, msg.ID).
			Int("queue_size", d.cfg.QueueSize).
			Msg("fan-out queue full, dropping notification")
		return false
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.DeliverTimeout)
		attempts, err := d.delivery.Deliver(ctx, msg)
		cancel()

		if err != nil {
			d.logger.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("fan-out delivery failed")
			continue
		}
		d.logger.Debug().
			Str(log.FieldMessageID, msg.ID).
			Int(log.FieldSubscribers, attempts).
			Msg("message fanned out")
	}
}

// Close stops accepting notifications and waits until queued ones are
// delivered or ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
