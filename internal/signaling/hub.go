// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package signaling implements a WebSocket relay for WebRTC session negotiation.
//
// Clients are grouped into rooms; offers, answers and ICE candidates are relayed
// to the other members of the room.
package signaling

import (
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrHubClosed is returned when a connection is served after the hub was closed.
var ErrHubClosed = errors.New("signaling hub is closed")

// Hub keeps track of rooms and clients.
type Hub struct {
	logger *zap.Logger

	// room ID -> client ID -> client
	rooms map[string]map[string]*Client

	cfg Config

	// waitgroup to wait for client pumps to finish
	wg sync.WaitGroup

	// synchronizing access to rooms, Client.room and closed
	mu sync.RWMutex

	closed bool
}

// NewHub creates a Hub.
func NewHub(cfg Config, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Hub{
		cfg:    cfg,
		logger: logger,
		rooms:  map[string]map[string]*Client{},
	}
}

// Serve registers the connection as a new client in the room and starts its pumps.
//
// Serve takes ownership of the connection.
func (h *Hub) Serve(conn *websocket.Conn, roomID string) (*Client, error) {
	if roomID == "" {
		roomID = DefaultRoom
	}

	id, err := uuid.NewV7()
	if err != nil {
		conn.Close() //nolint:errcheck

		return nil, err
	}

	limit := rate.Inf
	if h.cfg.MessageRate > 0 {
		limit = rate.Limit(h.cfg.MessageRate)
	}

	c := &Client{
		ID:      id.String(),
		hub:     h,
		conn:    conn,
		send:    make(chan Message, h.cfg.SendQueueSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(limit, h.cfg.MessageBurst),
	}

	h.mu.Lock()

	if h.closed {
		h.mu.Unlock()
		conn.Close() //nolint:errcheck

		return nil, ErrHubClosed
	}

	h.addLocked(c, roomID)

	h.wg.Add(2)

	h.mu.Unlock()

	c.enqueue(Message{
		Type:     TypeConnected,
		ClientID: c.ID,
		RoomID:   roomID,
		Data:     "connected to signaling server",
	})

	go func() {
		defer h.wg.Done()
		c.writePump()
	}()

	go func() {
		defer h.wg.Done()
		c.readPump()
	}()

	return c, nil
}

// Close disconnects all clients and waits for them to finish.
func (h *Hub) Close() {
	h.mu.Lock()

	h.closed = true

	var clients []*Client

	for _, room := range h.rooms {
		for _, c := range room {
			clients = append(clients, c)
		}
	}

	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}

	h.wg.Wait()
}

// Rooms returns the IDs of the non-empty rooms.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.rooms))

	for id := range h.rooms {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// RoomSize returns the number of clients in the room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[roomID])
}

// join moves the client to another room.
func (h *Hub) join(c *Client, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.removed || c.room == roomID {
		return false
	}

	h.deleteLocked(c)
	h.addLocked(c, roomID)

	return true
}

// room returns the current room of the client.
func (h *Hub) room(c *Client) string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return c.room
}

// relay delivers the message to the other clients of the sender's room, or only to
// msg.To if it is set.
func (h *Hub) relay(sender *Client, msg Message) {
	var slow []*Client

	h.mu.RLock()

	msg.RoomID = sender.room

	for id, c := range h.rooms[sender.room] {
		if id == sender.ID || (msg.To != "" && msg.To != id) {
			continue
		}

		if !c.offer(msg) {
			slow = append(slow, c)
		}
	}

	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping client, send queue is full", zap.String("client_id", c.ID))

		h.remove(c)
	}
}

// remove unregisters the client and stops its pumps.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()

	if c.removed {
		h.mu.Unlock()

		return
	}

	c.removed = true
	h.deleteLocked(c)

	h.mu.Unlock()

	close(c.done)
}

func (h *Hub) addLocked(c *Client, roomID string) {
	room, ok := h.rooms[roomID]
	if !ok {
		room = map[string]*Client{}
		h.rooms[roomID] = room

		h.logger.Debug("created room", zap.String("room_id", roomID))
	}

	room[c.ID] = c
	c.room = roomID

	h.logger.Debug("client joined room", zap.String("client_id", c.ID), zap.String("room_id", roomID))
}

func (h *Hub) deleteLocked(c *Client) {
	room := h.rooms[c.room]

	delete(room, c.ID)

	h.logger.Debug("client left room", zap.String("client_id", c.ID), zap.String("room_id", c.room))

	if len(room) == 0 {
		delete(h.rooms, c.room)

		h.logger.Debug("removed empty room", zap.String("room_id", c.room))
	}
}
