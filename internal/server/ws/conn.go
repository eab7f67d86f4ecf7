package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10 // must stay below pongWait
	maxMessageSize = 4096
	sendBuffer     = 256
)

// subscription is the message a client sends to change its channels.
type subscription struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

type conn struct {
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]bool
}

func newConn(h *Hub, ws *websocket.Conn) *conn {
	return &conn{
		hub:      h,
		ws:       ws,
		send:     make(chan []byte, sendBuffer),
		channels: map[string]bool{ChannelSteps: true, ChannelStatus: true},
	}
}

// offer queues data without blocking and reports whether it fit.
func (c *conn) offer(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *conn) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channel]
}

func (c *conn) apply(s subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range s.Channels {
		switch s.Action {
		case "subscribe":
			c.channels[ch] = true
		case "unsubscribe":
			delete(c.channels, ch)
		}
	}
}

// readLoop applies subscription changes until the peer goes away.
func (c *conn) readLoop() {
	defer func() {
		select {
		case c.hub.leave <- c:
		case <-c.hub.done:
		}
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
		var s subscription
		if sonnet.Unmarshal(msg, &s) == nil && s.Action != "" {
			c.apply(s)
		}
	}
}

// writeLoop drains send as text frames and keeps the peer alive with pings.
// A closed send channel ends the connection.
func (c *conn) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
