package fanout

import (
	"context"
	"time"

	"nhooyr.io/websocket"
)

// wsWriteTimeout bounds one subscriber write. A stalled peer fails the
// write and is evicted instead of holding up the publish loop.
const wsWriteTimeout = 5 * time.Second

// WSSubscriber adapts a WebSocket connection to the Subscriber interface.
type WSSubscriber struct {
	conn *websocket.Conn
}

// NewWSSubscriber wraps an accepted WebSocket connection.
func NewWSSubscriber(conn *websocket.Conn) *WSSubscriber {
	return &WSSubscriber{conn: conn}
}

// Write pushes one JSON message with a bounded deadline.
func (s *WSSubscriber) Write(msg []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, msg)
}
