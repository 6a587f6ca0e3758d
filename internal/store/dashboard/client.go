package dashboard

import (
	"context"
	"sync"

	"github.com/coder/websocket"
)

// client is one connected WebSocket with its pending messages.
type client struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte

	once sync.Once
	done chan struct{}
}

func newClient(conn *websocket.Conn, remote string) *client {
	return &client{
		conn:   conn,
		remote: remote,
		send:   make(chan []byte, clientQueue),
		done:   make(chan struct{}),
	}
}

// enqueue reports false when the queue is full or the client is closed.
func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// writeLoop drains the queue until the client closes or ctx ends.
func (c *client) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close(code, reason)
	})
}
