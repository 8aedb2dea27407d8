// Package hub fans loan events out to connected WebSocket clients,
// grouped into rooms: "all", "country:<CC>" and "loan:<id>" (spec
// §4.F). It is grounded on the teacher's pgnotify event-bus plumbing
// for goroutine/mutex shape, adapted from a generic pub/sub bus to a
// fixed three-room broadcast model mirroring the original Socket.IO
// namespace's on_subscribe_country/on_subscribe_loan handlers.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const roomAll = "all"

func countryRoom(code string) string { return "country:" + code }
func loanRoom(id string) string      { return "loan:" + id }

// Client is a single connected WebSocket session, tracked by which
// rooms it has joined.
type Client struct {
	conn *websocket.Conn
	send chan []byte

	mu    sync.Mutex
	rooms map[string]bool
}

// Hub holds all connected clients and their room memberships.
type Hub struct {
	log *logrus.Logger

	mu       sync.RWMutex
	byRoom   map[string]map[*Client]bool
	clients  map[*Client]bool
}

// New returns an empty Hub.
func New(log *logrus.Logger) *Hub {
	return &Hub{
		log:     log,
		byRoom:  make(map[string]map[*Client]bool),
		clients: make(map[*Client]bool),
	}
}

// Register adds a new connection to the hub, joining the "all" room by
// default, starts a goroutine that pumps queued messages to the socket
// until Unregister closes the send channel, and returns the Client handle.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	c := &Client{conn: conn, send: make(chan []byte, 32), rooms: map[string]bool{}}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	h.join(c, roomAll)
	go h.writePump(c)
	return c
}

// Unregister removes a client from every room it belongs to and closes
// its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		if members, ok := h.byRoom[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.byRoom, room)
			}
		}
	}
	close(c.send)
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byRoom[room] == nil {
		h.byRoom[room] = make(map[*Client]bool)
	}
	h.byRoom[room][c] = true
	c.mu.Lock()
	c.rooms[room] = true
	c.mu.Unlock()
}

func (h *Hub) leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.byRoom[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.byRoom, room)
		}
	}
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

// SubscribeCountry joins the client to a country room.
func (h *Hub) SubscribeCountry(c *Client, countryCode string) { h.join(c, countryRoom(countryCode)) }

// UnsubscribeCountry leaves a country room.
func (h *Hub) UnsubscribeCountry(c *Client, countryCode string) { h.leave(c, countryRoom(countryCode)) }

// SubscribeLoan joins the client to a single loan's room.
func (h *Hub) SubscribeLoan(c *Client, loanID string) { h.join(c, loanRoom(loanID)) }

// UnsubscribeLoan leaves a loan room.
func (h *Hub) UnsubscribeLoan(c *Client, loanID string) { h.leave(c, loanRoom(loanID)) }

func (h *Hub) broadcast(room string, event string, data map[string]interface{}) {
	payload := map[string]interface{}{"event": event}
	for k, v := range data {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		h.log.WithError(err).Error("hub: marshal event")
		return
	}

	h.mu.RLock()
	members := h.byRoom[room]
	targets := make([]*Client, 0, len(members))
	for c := range members {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- body:
		default:
			h.log.Warn("hub: client send buffer full, dropping message")
		}
	}
}

// EmitLoanCreated broadcasts a new loan to "all" and its country room.
func (h *Hub) EmitLoanCreated(loanID, countryCode string, loanData map[string]interface{}) {
	data := map[string]interface{}{"loan_id": loanID, "country_code": countryCode, "data": loanData}
	h.broadcast(roomAll, "loan_created", data)
	h.broadcast(countryRoom(countryCode), "loan_created", data)
}

// EmitLoanUpdated broadcasts a general field update to all three rooms.
func (h *Hub) EmitLoanUpdated(loanID, countryCode string, changes map[string]interface{}) {
	data := map[string]interface{}{"loan_id": loanID, "country_code": countryCode, "changes": changes}
	h.broadcast(roomAll, "loan_updated", data)
	h.broadcast(countryRoom(countryCode), "loan_updated", data)
	h.broadcast(loanRoom(loanID), "loan_updated", data)
}

// EmitStatusChanged broadcasts a status transition to all three rooms.
func (h *Hub) EmitStatusChanged(loanID, countryCode, oldStatus, newStatus string) {
	data := map[string]interface{}{
		"loan_id": loanID, "country_code": countryCode,
		"old_status": oldStatus, "new_status": newStatus,
	}
	h.broadcast(roomAll, "status_changed", data)
	h.broadcast(countryRoom(countryCode), "status_changed", data)
	h.broadcast(loanRoom(loanID), "status_changed", data)
}

func (h *Hub) writePump(c *Client) {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.WithError(err).Debug("hub: write failed, dropping client")
			return
		}
	}
	_ = c.conn.Close()
}
