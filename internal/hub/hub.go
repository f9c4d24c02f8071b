// internal/hub/hub.go
// Provides the Hub that owns websocket sessions and routes their messages to game engines.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/erilali/gameroom/internal/chat"
	"github.com/erilali/gameroom/internal/game"
	"github.com/erilali/gameroom/internal/logger"
	"github.com/erilali/gameroom/internal/metrics"
	"github.com/erilali/gameroom/internal/records"
	"github.com/erilali/gameroom/internal/room"
	"github.com/gorilla/websocket"
)

// Options tunes the websocket side of the hub.
type Options struct {
	ReadLimit      int64
	SendBuffer     int
	MessageRate    float64
	MessageBurst   int
	AllowedOrigins []string
	SweepInterval  time.Duration
}

func (o *Options) defaults() {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 4096
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.MessageRate <= 0 {
		o.MessageRate = 20
	}
	if o.MessageBurst <= 0 {
		o.MessageBurst = 40
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 5 * time.Minute
	}
}

// Deps are the services the hub dispatches to. Recorder and Events may be nil.
type Deps struct {
	Rooms    *room.Registry
	Engines  game.Registry
	Chat     *chat.Service
	Recorder *records.Recorder
	Events   *Events
	Metrics  *metrics.Metrics
}

// Hub manages connected clients and their routing to room engines.
type Hub struct {
	rooms    *room.Registry
	engines  game.Registry
	chat     *chat.Service
	recorder *records.Recorder
	events   *Events
	metrics  *metrics.Metrics
	logger   *logger.Logger
	opts     Options
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*Client

	unregister chan *Client
	done       chan struct{}
	StartTime  time.Time
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub(deps Deps, opts Options, log *logger.Logger) *Hub {
	opts.defaults()
	if log == nil {
		log = logger.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	h := &Hub{
		rooms:      deps.Rooms,
		engines:    deps.Engines,
		chat:       deps.Chat,
		recorder:   deps.Recorder,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logger:     log,
		opts:       opts,
		clients:    make(map[string]*Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		StartTime:  time.Now(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run processes disconnects and runs the room sweeper until ctx is cancelled, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	go h.runSweeper(ctx)
	defer close(h.done)

	for {
		select {
		case client := <-h.unregister:
			h.mu.Lock()
			current, ok := h.clients[client.Session]
			if ok && current == client {
				delete(h.clients, client.Session)
			}
			h.mu.Unlock()
			client.closeSend()

			// A replaced connection leaves the session's rooms alone.
			if ok && current == client {
				h.metrics.Sessions.Dec()
				h.logger.Infof("Client unregistered: %s", client.Session)
				h.disconnect(client.Session)
			}

		case <-ctx.Done():
			h.mu.Lock()
			for session, client := range h.clients {
				client.closeSend()
				delete(h.clients, session)
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return
		}
	}
}

// register adds client, replacing and closing an older connection of the same session.
func (h *Hub) register(client *Client) {
	h.mu.Lock()
	old, replaced := h.clients[client.Session]
	h.clients[client.Session] = client
	h.mu.Unlock()

	if replaced {
		old.closeSend()
		h.logger.Infof("Client %s reconnected, old connection replaced", client.Session)
		return
	}
	h.metrics.Sessions.Inc()
	h.logger.Infof("Client registered: %s", client.Session)
}

// release hands client to the Run loop. It gives up once the hub has stopped.
func (h *Hub) release(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Sessions returns the number of connected sessions.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Connected reports whether session has a live connection.
func (h *Hub) Connected(session string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[session]
	return ok
}

func (h *Hub) client(session string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[session]
}
