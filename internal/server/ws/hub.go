// Package ws broadcasts logged arena values to WebSocket clients while a run
// is in progress.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"

	"github.com/anthias-labs/arena/internal/domain"
)

// Channels a client can subscribe to.
const (
	ChannelSteps  = "steps"
	ChannelStatus = "status"
)

// backlogSize is how many recent step frames a late subscriber is replayed.
const backlogSize = 128

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Envelope is the JSON frame sent to clients.
type Envelope struct {
	Type    string `json:"type"`
	RunID   string `json:"run_id,omitempty"`
	Payload any    `json:"payload"`
}

// Config captures metadata sent to clients in the status frame on connect.
type Config struct {
	StrategyName string
	StartedAt    time.Time
}

type frame struct {
	channel string
	data    []byte
}

// Hub fans published frames out to subscribed connections. Connection state
// is owned by the Run goroutine. It implements domain.StepPublisher.
type Hub struct {
	frames chan frame
	join   chan *conn
	leave  chan *conn
	done   chan struct{}

	conns   map[*conn]struct{}
	backlog [][]byte
	count   atomic.Int64

	strategy  string
	startedAt time.Time
	logger    *slog.Logger
}

var _ domain.StepPublisher = (*Hub)(nil)

// NewHub creates a hub. Call Run to start it.
func NewHub(logger *slog.Logger, cfg Config) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		frames:    make(chan frame, 256),
		join:      make(chan *conn),
		leave:     make(chan *conn),
		done:      make(chan struct{}),
		conns:     make(map[*conn]struct{}),
		strategy:  strings.TrimSpace(cfg.StrategyName),
		startedAt: cfg.StartedAt,
		logger:    logger.With(slog.String("component", "ws_hub")),
	}
	if h.strategy == "" {
		h.strategy = "unknown"
	}
	if h.startedAt.IsZero() {
		h.startedAt = time.Now().UTC()
	}
	return h
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int { return int(h.count.Load()) }

// Run delivers frames until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.conns {
				h.drop(c)
			}
			return ctx.Err()

		case c := <-h.join:
			h.conns[c] = struct{}{}
			h.count.Add(1)
			for _, data := range h.backlog {
				c.offer(data)
			}
			h.logger.Info("ws: client connected", slog.Int64("total_clients", h.count.Load()))

		case c := <-h.leave:
			if _, ok := h.conns[c]; ok {
				h.drop(c)
				h.logger.Info("ws: client disconnected", slog.Int64("total_clients", h.count.Load()))
			}

		case f := <-h.frames:
			if f.channel == ChannelSteps {
				h.remember(f.data)
			}
			for c := range h.conns {
				if c.subscribed(f.channel) && !c.offer(f.data) {
					h.logger.Warn("ws: dropping message for slow client")
				}
			}
		}
	}
}

func (h *Hub) drop(c *conn) {
	delete(h.conns, c)
	close(c.send)
	h.count.Add(-1)
}

func (h *Hub) remember(data []byte) {
	if len(h.backlog) == backlogSize {
		copy(h.backlog, h.backlog[1:])
		h.backlog = h.backlog[:backlogSize-1]
	}
	h.backlog = append(h.backlog, data)
}

// Publish broadcasts rec on the steps channel.
func (h *Hub) Publish(ctx context.Context, runID string, rec domain.StepRecord) error {
	return h.enqueue(ctx, ChannelSteps, Envelope{Type: "step", RunID: runID, Payload: rec})
}

// PublishStatus broadcasts a run state change on the status channel.
func (h *Hub) PublishStatus(ctx context.Context, runID, state string) error {
	return h.enqueue(ctx, ChannelStatus, Envelope{
		Type:    "status",
		RunID:   runID,
		Payload: map[string]any{"state": state, "strategy_name": h.strategy},
	})
}

func (h *Hub) enqueue(ctx context.Context, channel string, env Envelope) error {
	data, err := sonnet.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case h.frames <- frame{channel: channel, data: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleWS upgrades the request and attaches the connection to the hub,
// subscribed to every channel.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := newConn(h, ws)
	c.offer(h.greeting())

	select {
	case h.join <- c:
	case <-h.done:
		_ = ws.Close()
		return
	case <-r.Context().Done():
		_ = ws.Close()
		return
	}
	go c.writeLoop()
	go c.readLoop()
}

// greeting is the status frame sent before anything else.
func (h *Hub) greeting() []byte {
	data, _ := sonnet.Marshal(Envelope{
		Type: "status",
		Payload: map[string]any{
			"strategy_name":  h.strategy,
			"uptime_seconds": max(int64(time.Since(h.startedAt).Seconds()), 0),
		},
	})
	return data
}
