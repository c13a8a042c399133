package streaming

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is one WebSocket connection and its subscription.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu  sync.RWMutex
	sub *subscription
}

func newClient(h *Hub, conn *websocket.Conn, sub *subscription) *Client {
	return &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, queueSize),
		sub:  sub,
	}
}

func (c *Client) wants(ev Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sub.matches(ev)
}

func (c *Client) filter() Filter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sub.filter()
}

// handle applies a Request and reports whether it was understood.
func (c *Client) handle(msg []byte) bool {
	var req Request
	if err := json.Unmarshal(msg, &req); err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub.apply(req)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxRequest)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("stream read error", zap.Error(err))
			}
			return
		}
		if !c.handle(msg) {
			continue
		}
		c.hub.reply(c, Event{Type: EventTypeSubscribed, Timestamp: time.Now(), Data: c.filter()})
	}
}

func (c *Client) writePump() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
