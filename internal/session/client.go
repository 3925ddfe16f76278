package session

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/abhaydixit07/codehive-server/internal/models"
)

// Client is one participant connection. The ID is minted at upgrade time and
// dies with the connection. Writes are serialized so concurrent fan-out from
// different rooms cannot interleave frames on the wire.
type Client struct {
	ID   string
	Conn *websocket.Conn
	mu   sync.Mutex
	hook func(models.Frame)
}

func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{ID: id, Conn: conn}
}

// SetSendHook replaces the default WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func(models.Frame)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// Send delivers a frame best-effort. Write errors are swallowed: a slow or
// dead recipient must never block or fail delivery to anyone else.
func (c *Client) Send(frame models.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hook != nil {
		c.hook(frame)
		return
	}
	if c.Conn == nil {
		return
	}
	_ = c.Conn.WriteJSON(frame)
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}
