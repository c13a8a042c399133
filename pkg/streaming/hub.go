// Package streaming pushes picks, passes and batch status to WebSocket
// clients. Each client filters the stream by event type, capper and game.
package streaming

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/phenomenon0/capper-engine/pkg/sports"
)

// EventType names a stream event.
type EventType string

const (
	EventTypePick      EventType = "pick"
	EventTypePass      EventType = "pass"
	EventTypeBatch     EventType = "batch"
	EventTypeStage     EventType = "stage"
	EventTypeError     EventType = "error"
	EventTypeHeartbeat EventType = "heartbeat"

	// EventTypeSubscribed acknowledges a subscription change. It goes only
	// to the client that asked and cannot be filtered out.
	EventTypeSubscribed EventType = "subscribed"
)

var allEvents = []EventType{
	EventTypePick, EventTypePass, EventTypeBatch, EventTypeStage, EventTypeError, EventTypeHeartbeat,
}

// Event is one stream message. Capper and GameID drive client filters.
type Event struct {
	Type      EventType   `json:"type"`
	Capper    string      `json:"capper,omitempty"`
	GameID    string      `json:"game_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

const (
	queueSize    = 256
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	maxRequest   = 4096
)

// Hub fans events out to connected clients. Broadcast never blocks: a full
// queue drops the event and a client that falls behind is disconnected.
type Hub struct {
	queue chan Event
	log   *zap.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool

	upgrader  websocket.Upgrader
	heartbeat time.Duration
}

// NewHub creates a hub. A nil logger discards hub logs.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		queue:   make(chan Event, queueSize),
		log:     log,
		clients: make(map[*Client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin checks are left to the router's CORS middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		heartbeat: 30 * time.Second,
	}
}

// Run delivers queued events until ctx is done, then disconnects every
// client and refuses new ones.
func (h *Hub) Run(ctx context.Context) {
	tick := time.NewTicker(h.heartbeat)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case ev := <-h.queue:
			h.fanOut(ev)
		case <-tick.C:
			h.fanOut(Event{
				Type:      EventTypeHeartbeat,
				Timestamp: time.Now(),
				Data:      map[string]int{"clients": h.ClientCount()},
			})
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}

// fanOut encodes the event once and hands it to every client whose filter
// matches.
func (h *Hub) fanOut(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("encode stream event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(ev) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.log.Debug("stream client too slow, disconnecting")
			h.dropLocked(c)
		}
	}
}

// dropLocked removes a client. h.mu must be held for writing.
func (h *Hub) dropLocked(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	h.dropLocked(c)
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("stream client disconnected", zap.Int("clients", n))
}

// reply sends an event to one client if it is still connected.
func (h *Hub) reply(c *Client, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Broadcast queues an event. It is dropped when the queue is full.
func (h *Hub) Broadcast(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case h.queue <- ev:
	default:
		h.log.Warn("stream queue full, dropping event",
			zap.String("type", string(ev.Type)),
			zap.String("capper", ev.Capper),
			zap.String("game_id", ev.GameID),
		)
	}
}

// BroadcastPick streams a published pick.
func (h *Hub) BroadcastPick(p *sports.Pick) {
	h.Broadcast(Event{Type: EventTypePick, Capper: p.Capper, GameID: p.GameID, Data: p})
}

// BroadcastPass streams a pass record.
func (h *Hub) BroadcastPass(p *sports.PassRecord) {
	h.Broadcast(Event{Type: EventTypePass, Capper: p.Capper, GameID: p.GameID, Data: p})
}

// BroadcastBatch streams a capper's batch summary.
func (h *Hub) BroadcastBatch(capper string, summary interface{}) {
	h.Broadcast(Event{Type: EventTypeBatch, Capper: capper, Data: summary})
}

// BroadcastStage streams a stage completion for a capper's batch.
func (h *Hub) BroadcastStage(capper string, stage interface{}) {
	h.Broadcast(Event{Type: EventTypeStage, Capper: capper, Data: stage})
}

// BroadcastError streams an error that is not tied to one capper.
func (h *Hub) BroadcastError(err error, where string) {
	h.Broadcast(Event{
		Type: EventTypeError,
		Data: map[string]string{"error": err.Error(), "context": where},
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and starts streaming. The initial filter
// comes from the query (?types=pick,pass&capper=sharp&game=g1) and can be
// changed later with Request messages.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "stream shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("stream upgrade failed", zap.Error(err))
		return
	}

	c := newClient(h, conn, subscriptionFromQuery(r.URL.Query()))
	if !h.add(c) {
		conn.Close()
		return
	}
	h.log.Debug("stream client connected", zap.Int("clients", h.ClientCount()), zap.Any("filter", c.filter()))

	go c.writePump()
	go c.readPump()
}
