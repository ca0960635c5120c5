// Package protocol defines the JSON messages exchanged with the room server
// over the bidirectional transport.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType represents the type of message
type MessageType int

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeJoin
	MessageTypeChat
	MessageTypePing
	MessageTypeJoined
	MessageTypeUserJoined
	MessageTypeUserLeft
	MessageTypeError
	MessageTypePong
)

var typeNames = map[MessageType]string{
	MessageTypeJoin:       "join",
	MessageTypeChat:       "chat",
	MessageTypePing:       "ping",
	MessageTypeJoined:     "joined",
	MessageTypeUserJoined: "user_joined",
	MessageTypeUserLeft:   "user_left",
	MessageTypeError:      "error",
	MessageTypePong:       "pong",
}

// String returns the wire name of MessageType
func (mt MessageType) String() string {
	if name, ok := typeNames[mt]; ok {
		return name
	}
	return "unknown"
}

// ParseMessageType maps a wire name back to its MessageType.
// Unrecognised names yield MessageTypeUnknown.
func ParseMessageType(name string) MessageType {
	for mt, n := range typeNames {
		if n == name {
			return mt
		}
	}
	return MessageTypeUnknown
}

// MarshalJSON encodes the type as its wire name.
func (mt MessageType) MarshalJSON() ([]byte, error) {
	if mt == MessageTypeUnknown {
		return nil, fmt.Errorf("cannot encode unknown message type")
	}
	return json.Marshal(mt.String())
}

// UnmarshalJSON decodes a wire name. Unknown names are not an error so newer
// servers can add message types without breaking older clients.
func (mt *MessageType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("message type must be a string: %w", err)
	}
	*mt = ParseMessageType(name)
	return nil
}

// ClientMessage is a frame sent from the client to the server.
type ClientMessage struct {
	Type     MessageType `json:"type"`
	RoomID   string      `json:"room_id,omitempty"`
	Username string      `json:"username,omitempty"`
	Password string      `json:"password,omitempty"`
	Content  string      `json:"content,omitempty"`
}

// NewJoin builds the join control message sent as soon as the transport opens.
func NewJoin(roomID, username, password string) ClientMessage {
	return ClientMessage{Type: MessageTypeJoin, RoomID: roomID, Username: username, Password: password}
}

// NewChat builds a chat message.
func NewChat(username, content string) ClientMessage {
	return ClientMessage{Type: MessageTypeChat, Username: username, Content: content}
}

// NewPing builds a keepalive ping.
func NewPing() ClientMessage {
	return ClientMessage{Type: MessageTypePing}
}

// Encode encodes the message into a JSON frame
func (m *ClientMessage) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// Decode decodes a JSON frame into the message
func (m *ClientMessage) Decode(data []byte) error {
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}

// ServerMessage is a frame sent from the server to the client.
type ServerMessage struct {
	Type      MessageType `json:"type"`
	RoomID    string      `json:"room_id,omitempty"`
	UserID    string      `json:"user_id,omitempty"`
	Username  string      `json:"username,omitempty"`
	Content   string      `json:"content,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp *time.Time  `json:"timestamp,omitempty"`
}

// Encode encodes the message into a JSON frame
func (m *ServerMessage) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// Decode decodes a JSON frame into the message
func (m *ServerMessage) Decode(data []byte) error {
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}

// TimestampOr returns the message timestamp in UTC, or fallback when the
// server did not send one.
func (m *ServerMessage) TimestampOr(fallback time.Time) time.Time {
	if m.Timestamp == nil || m.Timestamp.IsZero() {
		return fallback.UTC()
	}
	return m.Timestamp.UTC()
}
