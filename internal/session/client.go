package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emihleChallotteBooi/editingList/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Sink receives events addressed to one connection. Send must not block.
type Sink interface {
	Send(frame models.WSFrame)
}

// Client is the WebSocket-backed Sink. Frames are queued and written by WritePump.
type Client struct {
	Conn    *websocket.Conn
	mu      sync.Mutex
	hook    func(models.WSFrame)
	send    chan models.WSFrame
	closed  bool
	dropped int
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{Conn: conn, send: make(chan models.WSFrame, sendBuffer)}
}

// SetSendHook replaces the default WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func(models.WSFrame)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// Send queues frame for delivery. A full queue drops the frame rather than stall the caller.
func (c *Client) Send(frame models.WSFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hook != nil {
		c.hook(frame)
		return
	}
	if c.Conn == nil || c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
		c.dropped++
	}
}

// Dropped reports how many frames were discarded because the queue was full.
func (c *Client) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// WritePump drains the send queue to the socket and keeps the peer alive with pings.
// It returns once Close is called or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// PrepareRead applies the read limit and pong-driven deadline to the socket.
func (c *Client) PrepareRead() {
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// Close stops WritePump. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
