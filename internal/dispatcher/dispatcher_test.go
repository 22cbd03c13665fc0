package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-chat/internal/domain"
	"github.com/weiawesome/wes-chat/pkg/pubsub"
)

type recordingHub struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (h *recordingHub) Broadcast(payload []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.payloads = append(h.payloads, payload)
	return 2
}

func (h *recordingHub) decoded(t *testing.T) []domain.BroadcastMessage {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.BroadcastMessage, 0, len(h.payloads))
	for _, p := range h.payloads {
		var bm domain.BroadcastMessage
		require.NoError(t, json.Unmarshal(p, &bm))
		out = append(out, bm)
	}
	return out
}

func (h *recordingHub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.payloads)
}

type blockingDelivery struct {
	release chan struct{}
	mu      sync.Mutex
	got     []string
}

func (d *blockingDelivery) Deliver(ctx context.Context, msg domain.BroadcastMessage) (int, error) {
	<-d.release
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, msg.ID)
	return 1, nil
}

type failingDelivery struct{ calls int }

func (d *failingDelivery) Deliver(ctx context.Context, msg domain.BroadcastMessage) (int, error) {
	d.calls++
	return 0, errors.New("relay down")
}

var alice = domain.UserIdentity{ID: "u-alice", Username: "alice", DisplayName: "Alice"}

func message(id, content string) *domain.Message {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &domain.Message{ID: id, Content: content, AuthorID: alice.ID, CreatedAt: at, EditedAt: at}
}

func TestNotifyDeliversInOrder(t *testing.T) {
	hub := &recordingHub{}
	d := New(NewLocalDelivery(hub), Config{QueueSize: 16})

	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		assert.True(t, d.Notify(message(id, "hi "+id), alice))
	}
	require.NoError(t, d.Close(context.Background()))

	got := hub.decoded(t)
	require.Len(t, got, len(ids))
	for i, bm := range got {
		assert.Equal(t, ids[i], bm.ID)
		assert.Equal(t, domain.MsgTypeChatMessage, bm.Type)
		assert.Equal(t, "Alice", bm.AuthorDisplayName)
		assert.Equal(t, alice.ID, bm.AuthorID)
		assert.Equal(t, "hi "+ids[i], bm.Content)
	}
}

func TestNotifyDropsWhenQueueFull(t *testing.T) {
	delivery := &blockingDelivery{release: make(chan struct{})}
	d := New(delivery, Config{QueueSize: 1})

	// The worker holds at most one message, the queue one more.
	accepted := 0
	for _, id := range []string{"1", "2", "3", "4"} {
		if d.Notify(message(id, "x"), alice) {
			accepted++
		}
	}
	assert.GreaterOrEqual(t, accepted, 1)
	assert.LessOrEqual(t, accepted, 2)

	close(delivery.release)
	require.NoError(t, d.Close(context.Background()))
	assert.Len(t, delivery.got, accepted)
}

func TestNotifyAfterClose(t *testing.T) {
	d := New(NewLocalDelivery(&recordingHub{}), Config{})
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	assert.False(t, d.Notify(message("late", "x"), alice))
}

func TestDeliveryErrorDoesNotStopWorker(t *testing.T) {
	delivery := &failingDelivery{}
	d := New(delivery, Config{})

	d.Notify(message("1", "x"), alice)
	d.Notify(message("2", "y"), alice)
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, 2, delivery.calls)
}

func TestCloseHonorsContext(t *testing.T) {
	delivery := &blockingDelivery{release: make(chan struct{})}
	d := New(delivery, Config{})
	d.Notify(message("1", "x"), alice)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	close(delivery.release)
}

func TestRelayRoundTripOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ps, err := pubsub.NewRedisPubSub(pubsub.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := &recordingHub{}
	done, err := NewRelay(ps, hub).Start(ctx)
	require.NoError(t, err)

	d := New(NewRelayDelivery(ps, "instance-a"), Config{})
	d.Notify(message("m1", "hi"), alice)
	require.NoError(t, d.Close(context.Background()))

	require.Eventually(t, func() bool { return hub.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	got := hub.decoded(t)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "Alice", got[0].AuthorDisplayName)
	assert.Equal(t, "hi", got[0].Content)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRelayIgnoresOtherEvents(t *testing.T) {
	events := make(chan *pubsub.Event, 2)
	hub := &recordingHub{}
	r := NewRelay(&stubSubscriber{events: events}, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done, err := r.Start(ctx)
	require.NoError(t, err)

	events <- &pubsub.Event{Type: "presence", Payload: json.RawMessage(`{}`)}
	events <- &pubsub.Event{Type: pubsub.EventChatMessage, Payload: json.RawMessage(`{"id":"x"}`)}
	close(events)

	<-done
	assert.Equal(t, 1, hub.len())
}

type stubSubscriber struct {
	events chan *pubsub.Event
}

func (s *stubSubscriber) Subscribe(ctx context.Context, channel string) (<-chan *pubsub.Event, error) {
	return s.events, nil
}

func (s *stubSubscriber) Unsubscribe(ctx context.Context, channel string) error { return nil }
