package websocket

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chessrelay/game/router"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Move envelopes are small;
	// anything larger is rejected by the read loop.
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins in development
		// TODO: Configure this for production
		return true
	},
}

// MessageHandler receives connection lifecycle and message events. The
// router implements it; the hub stays ignorant of game semantics.
type MessageHandler interface {
	HandleConnect(connectionID, userID string) error
	HandleMessage(connectionID string, data []byte)
	HandleDisconnect(connectionID string)
}

// Client represents one WebSocket connection.
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	connectionID string
	userID       string

	closeOnce sync.Once
}

// Hub maintains the set of active clients keyed by connection id and
// implements the router's PushGateway: Send answers synchronously
// whether the target connection still exists.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	handler MessageHandler
}

// NewHub creates an empty hub. SetHandler must be called before the
// first connection is served.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// SetHandler wires the message handler. Done after construction because
// the handler (the router) is itself constructed with the hub as its
// push gateway.
func (h *Hub) SetHandler(handler MessageHandler) {
	h.handler = handler
}

// ServeWS upgrades the HTTP request and runs the connection under the
// given server-assigned connection id.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, connectionID, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:          h,
		conn:         conn,
		send:         make(chan []byte, 256),
		connectionID: connectionID,
		userID:       userID,
	}

	// A colliding connection id closes the new socket and leaves the
	// existing client untouched; it must never be evicted from the map
	// while its socket is still open.
	if !h.addClient(client) {
		log.Printf("Duplicate connection id conn=%s, closing new connection", connectionID)
		conn.Close()
		return
	}

	// Registration must succeed before any traffic is processed.
	if err := h.handler.HandleConnect(connectionID, userID); err != nil {
		h.removeClient(client)
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Send delivers a payload to the connection, or reports Gone when the
// connection no longer exists. A client whose send buffer is full is
// evicted and also reported Gone; a reader that slow is as good as
// disconnected.
func (h *Hub) Send(connectionID string, payload []byte) router.Delivery {
	h.mu.RLock()
	client, ok := h.clients[connectionID]
	h.mu.RUnlock()

	if !ok {
		return router.Gone
	}

	select {
	case client.send <- payload:
		return router.Delivered
	default:
		h.removeClient(client)
		client.conn.Close()
		return router.Gone
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// addClient tracks a new connection. It reports false when the id is
// already taken, leaving the existing client in place.
func (h *Hub) addClient(client *Client) bool {
	h.mu.Lock()
	if _, exists := h.clients[client.connectionID]; exists {
		h.mu.Unlock()
		return false
	}
	h.clients[client.connectionID] = client
	total := len(h.clients)
	h.mu.Unlock()

	log.Printf("Client connected conn=%s (total: %d)", client.connectionID, total)
	return true
}

// removeClient stops tracking a connection and closes its send channel.
// Safe to call more than once per client.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if current, ok := h.clients[client.connectionID]; ok && current == client {
		delete(h.clients, client.connectionID)
	}
	h.mu.Unlock()

	client.closeOnce.Do(func() {
		close(client.send)
	})
}

// readPump pumps messages from the WebSocket connection to the handler.
// Messages from a single connection are processed in arrival order.
func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.hub.handler.HandleDisconnect(c.connectionID)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error conn=%s: %v", c.connectionID, err)
			}
			break
		}
		c.hub.handler.HandleMessage(c.connectionID, data)
	}
}

// writePump pumps frames from the send channel to the WebSocket
// connection and keeps the connection alive with pings.
func (c *Client) writePump() {
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
				// The hub closed the channel
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
