// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package signaling

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const writeWait = 10 * time.Second

// Client is a single WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	limiter *rate.Limiter

	// outgoing messages, never closed
	send chan Message

	// closed when the client is removed from the hub
	done chan struct{}

	ID string

	// current room, guarded by hub.mu
	room string

	// guarded by hub.mu
	removed bool
}

// offer queues the message without blocking, reporting false if the queue is full.
func (c *Client) offer(msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// enqueue queues the message, dropping the client if the queue is full.
func (c *Client) enqueue(msg Message) {
	if !c.offer(msg) {
		c.hub.logger.Warn("dropping client, send queue is full", zap.String("client_id", c.ID))

		c.hub.remove(c)
	}
}

// readPump handles incoming messages from the client.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close() //nolint:errcheck
	}()

	pongWait := 2 * c.hub.cfg.PingInterval

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message

		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Info("websocket error", zap.String("client_id", c.ID), zap.Error(err))
			}

			return
		}

		if !c.limiter.Allow() {
			c.enqueue(Message{
				Type:     TypeError,
				ClientID: c.ID,
				Data:     "rate limit exceeded",
			})

			continue
		}

		c.handle(msg)
	}
}

func (c *Client) handle(msg Message) {
	if msg.ClientID == "" {
		msg.ClientID = c.ID
	}

	// the sender can't be spoofed
	msg.From = c.ID

	c.hub.logger.Debug("received message", zap.String("client_id", c.ID), zap.String("type", msg.Type))

	switch msg.Type {
	case TypeJoin:
		if msg.RoomID == "" {
			c.enqueue(Message{
				Type:     TypeError,
				ClientID: c.ID,
				Data:     "room_id is required",
			})

			return
		}

		c.hub.join(c, msg.RoomID)

		c.enqueue(Message{
			Type:     TypeJoined,
			ClientID: c.ID,
			RoomID:   c.hub.room(c),
		})
	case TypePing:
		c.enqueue(Message{
			Type:     TypePong,
			ClientID: c.ID,
			RoomID:   c.hub.room(c),
		})
	default:
		// offer, answer, ice-candidate and unknown messages are relayed as is
		c.hub.relay(c, msg)
	}
}

// writePump handles outgoing messages to the client.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)

	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck

			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.logger.Info("failed to write message", zap.String("client_id", c.ID), zap.Error(err))

				c.hub.remove(c)

				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.remove(c)

				return
			}
		case <-c.done:
			c.conn.WriteControl( //nolint:errcheck
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)

			return
		}
	}
}
