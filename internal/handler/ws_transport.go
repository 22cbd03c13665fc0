package handler

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport serializes writes to one websocket connection. The hub writer,
// direct replies and the pinger all write through it.
type wsTransport struct {
	conn      *websocket.Conn
	writeWait time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
}

func newWSTransport(conn *websocket.Conn, writeWait time.Duration) *wsTransport {
	return &wsTransport{conn: conn, writeWait: writeWait}
}

func (t *wsTransport) deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(t.writeWait)
}

// Send writes one text frame, bounded by ctx's deadline.
func (t *wsTransport) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.conn.SetWriteDeadline(t.deadline(ctx)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

func (t *wsTransport) ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeWait))
}

// Close sends a close frame and closes the connection. Safe to call more
// than once.
func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.mu.Unlock()
		err = t.conn.Close()
	})
	return err
}
