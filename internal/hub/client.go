// internal/hub/client.go
package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Client is one connected websocket session.
type Client struct {
	Session    string
	Conn       *websocket.Conn
	LastActive time.Time

	send    chan []byte
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
}

func newClient(session string, conn *websocket.Conn, buffer int, limit rate.Limit, burst int) *Client {
	return &Client{
		Session:    session,
		Conn:       conn,
		LastActive: time.Now(),
		send:       make(chan []byte, buffer),
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// enqueue hands data to the write pump without blocking. It reports false when the buffer is
// full or the client is already closed.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend stops the write pump, which then sends a close frame and drops the connection.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
