package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rideshare/internal/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames.
	maxMessageSize = 1024

	sendBufferSize = 64
)

// Hub streams reservation events to connected drivers and passengers. A
// driver receives events for the trips they own, a passenger for their own
// reservations.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

// Client is one websocket connection.
type Client struct {
	key  string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	once sync.Once
}

// NewHub creates a new Hub. checkOrigin may be nil to accept same-origin
// requests only.
func NewHub(logger *slog.Logger, checkOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger:  logger,
		clients: make(map[string]map[*Client]struct{}),
	}
}

func subscriberKey(role domain.Role, userID string) string {
	return string(role) + ":" + userID
}

// Serve upgrades the request and streams events for the actor until the
// connection closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, actor domain.Actor) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		key:  subscriberKey(actor.Role, actor.UserID),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		hub:  h,
	}
	h.register(client)

	go client.writePump()
	go client.readPump()
	return nil
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.key]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.key] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("websocket_connected", slog.String("subscriber", c.key))
}

func (h *Hub) unregister(c *Client) {
	c.once.Do(func() {
		h.mu.Lock()
		if set, ok := h.clients[c.key]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.clients, c.key)
			}
		}
		close(c.send)
		h.mu.Unlock()

		h.logger.Info("websocket_disconnected", slog.String("subscriber", c.key))
	})
}

// ConnectionCount returns the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Publish delivers the event to the trip's driver and the reservation's
// passenger. Slow clients whose buffer is full miss the event.
func (h *Hub) Publish(ctx context.Context, event domain.ReservationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	keys := []string{subscriberKey(domain.RolePassenger, event.PassengerID)}
	if event.DriverID != "" {
		keys = append(keys, subscriberKey(domain.RoleDriver, event.DriverID))
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, key := range keys {
		for c := range h.clients[key] {
			select {
			case c.send <- payload:
			default:
				h.logger.Warn("websocket_buffer_full",
					slog.String("subscriber", key),
					slog.String("reservation_id", event.ReservationID),
				)
			}
		}
	}
	return nil
}

// readPump discards client messages and detects closed connections.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump sends queued events and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
