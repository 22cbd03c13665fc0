package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-chat/pkg/log"
)

// ErrClosed is returned by operations on a closed hub.
var ErrClosed = errors.New("hub is closed")

const (
	fieldSubscription = log.FieldSubscriptionID
	fieldUserID       = log.FieldUserID
)

// Config controls per-subscriber buffering.
type Config struct {
	QueueSize   int
	SendTimeout time.Duration
}

type registration struct {
	sub   *subscriber
	reply chan error
}

type broadcastRequest struct {
	payload []byte
	reply   chan int
}

// Hub is the connection registry. A single goroutine owns the subscriber
// map; every operation is a command processed in arrival order, so each
// broadcast sees a consistent snapshot of subscribers.
type Hub struct {
	cfg    Config
	logger zerolog.Logger

	subscribers map[string]*subscriber

	register   chan registration
	unregister chan string
	broadcast  chan broadcastRequest
	count      chan chan int
	quit       chan chan struct{}
	done       chan struct{}

	writers sync.WaitGroup
}

// New creates a hub and starts its loop.
func New(cfg Config) *Hub {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}

	h := &Hub{
		cfg:         cfg,
		logger:      log.Component("hub"),
		subscribers: make(map[string]*subscriber),
		register:    make(chan registration),
		unregister:  make(chan string),
		broadcast:   make(chan broadcastRequest),
		count:       make(chan chan int),
		quit:        make(chan chan struct{}),
		done:        make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.done)

	for {
		select {
		case reg := <-h.register:
			h.subscribers[reg.sub.id] = reg.sub
			h.writers.Add(1)
			go h.writePump(reg.sub)
			h.logger.Debug().
				Str(fieldSubscription, reg.sub.id).
				Str(fieldUserID, reg.sub.userID).
				Int(log.FieldSubscribers, len(h.subscribers)).
				Msg("subscriber registered")
			reg.reply <- nil

		case id := <-h.unregister:
			if h.remove(id) {
				h.logger.Debug().
					Str(fieldSubscription, id).
					Int(log.FieldSubscribers, len(h.subscribers)).
					Msg("subscriber unregistered")
			}

		case req := <-h.broadcast:
			attempts := 0
			for id, s := range h.subscribers {
				attempts++
				select {
				case s.queue <- req.payload:
				default:
					h.logger.Warn().
						Str(fieldSubscription, id).
						Str(fieldUserID, s.userID).
						Msg("subscriber queue full, dropping subscriber")
					h.remove(id)
				}
			}
			req.reply <- attempts

		case reply := <-h.count:
			reply <- len(h.subscribers)

		case ack := <-h.quit:
			for id := range h.subscribers {
				h.remove(id)
			}
			close(ack)
			return
		}
	}
}

// remove deletes a subscriber and signals its writer. Only the loop calls it.
func (h *Hub) remove(id string) bool {
	s, ok := h.subscribers[id]
	if !ok {
		return false
	}
	delete(h.subscribers, id)
	close(s.quit)
	return true
}

// Subscribe registers a transport and returns its subscription id. userID
// may be empty for anonymous subscribers.
func (h *Hub) Subscribe(t Transport, userID string) (string, error) {
	s := newSubscriber(uuid.New().String(), userID, t, h.cfg.QueueSize)
	reply := make(chan error, 1)

	select {
	case h.register <- registration{sub: s, reply: reply}:
		return s.id, <-reply
	case <-h.done:
		return "", ErrClosed
	}
}

// Unsubscribe removes a subscriber and closes its transport. Unknown ids are
// ignored.
func (h *Hub) Unsubscribe(id string) {
	select {
	case h.unregister <- id:
	case <-h.done:
	}
}

// Broadcast enqueues payload for every current subscriber and returns the
// number of delivery attempts. It never blocks on a slow subscriber.
func (h *Hub) Broadcast(payload []byte) int {
	reply := make(chan int, 1)

	select {
	case h.broadcast <- broadcastRequest{payload: payload, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	reply := make(chan int, 1)

	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Close removes every subscriber, waits for their writers to exit and stops
// the loop. Calling Close again returns ErrClosed.
func (h *Hub) Close() error {
	ack := make(chan struct{})

	select {
	case h.quit <- ack:
	case <-h.done:
		return ErrClosed
	}

	<-ack
	h.writers.Wait()
	return nil
}
