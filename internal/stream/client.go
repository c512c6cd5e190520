// internal/stream/client.go
package stream

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Client is one subscriber connection. The stream is one-way: inbound frames
// beyond protocol pongs are read and discarded to keep the connection alive.
type Client struct {
	hub               *Hub
	conn              *websocket.Conn
	send              chan []byte
	checkoutRequestID string
	closeOnce         sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, checkoutRequestID string) *Client {
	return &Client{
		hub:               hub,
		conn:              conn,
		send:              make(chan []byte, 16),
		checkoutRequestID: checkoutRequestID,
	}
}

// Send queues a payload for the write pump, disconnecting slow consumers
// instead of blocking the hub. The detach goes through a goroutine because
// Send runs inside the hub loop, which also drains the unregister channel.
func (c *Client) Send(payload []byte) {
	select {
	case c.send <- payload:
	default:
		go func() { c.hub.unregister <- c }()
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close is idempotent; both the hub shutdown and the unregister path hit it.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}
