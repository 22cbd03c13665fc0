package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisPubSub(t *testing.T) (*RedisPubSub, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	ps, err := NewRedisPubSub(RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })
	return ps, mr
}

func TestRedisPubSubRoundTrip(t *testing.T) {
	ps, _ := newTestRedisPubSub(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := ps.Subscribe(ctx, BroadcastChannel)
	require.NoError(t, err)

	evt, err := NewEvent(EventChatMessage, "instance-a", map[string]string{"content": "hi"})
	require.NoError(t, err)
	require.NoError(t, ps.Publish(ctx, BroadcastChannel, evt))

	select {
	case got := <-events:
		assert.Equal(t, EventChatMessage, got.Type)
		assert.Equal(t, "instance-a", got.Origin)
		var payload map[string]string
		require.NoError(t, got.UnmarshalPayload(&payload))
		assert.Equal(t, "hi", payload["content"])
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}

func TestRedisPubSubSkipsMalformedEvents(t *testing.T) {
	ps, mr := newTestRedisPubSub(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := ps.Subscribe(ctx, BroadcastChannel)
	require.NoError(t, err)

	mr.Publish(BroadcastChannel, "not json")
	mr.Publish(BroadcastChannel, `{"payload":{}}`)

	evt, err := NewEvent(EventChatMessage, "instance-a", map[string]string{"id": "1"})
	require.NoError(t, err)
	require.NoError(t, ps.Publish(ctx, BroadcastChannel, evt))

	select {
	case got := <-events:
		assert.Equal(t, EventChatMessage, got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}

func TestRedisPubSubSubscribeOnce(t *testing.T) {
	ps, _ := newTestRedisPubSub(t)
	ctx := context.Background()

	events, err := ps.Subscribe(ctx, BroadcastChannel)
	require.NoError(t, err)

	_, err = ps.Subscribe(ctx, BroadcastChannel)
	assert.ErrorContains(t, err, "already subscribed")

	require.NoError(t, ps.Unsubscribe(ctx, BroadcastChannel))
	require.NoError(t, ps.Unsubscribe(ctx, BroadcastChannel))

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription channel not closed")
	}
}

func TestRedisPubSubConnectFailure(t *testing.T) {
	_, err := NewRedisPubSub(RedisConfig{Address: "127.0.0.1:1"})
	require.Error(t, err)
}

func TestNewPubSubUnknownDriver(t *testing.T) {
	_, err := NewPubSub(Config{Driver: "nats"})
	require.ErrorContains(t, err, "unsupported pubsub driver")
}
