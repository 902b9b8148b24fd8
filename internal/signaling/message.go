// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package signaling

// Message is the signaling wire message, encoded as JSON.
type Message struct {
	Data     any    `json:"data,omitempty"`
	Type     string `json:"type"`
	RoomID   string `json:"room_id,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	SDP      string `json:"sdp,omitempty"`
}

// Message types.
const (
	TypeConnected    = "connected"
	TypeJoin         = "join"
	TypeJoined       = "joined"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeError        = "error"
)

// DefaultRoom is used when the client doesn't specify a room.
const DefaultRoom = "default"
