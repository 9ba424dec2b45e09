package schema

import (
	"fmt"
	"strings"
)

// EventName identifies a named event on the Socket.IO channel.
type EventName string

// SessionID identifies a streaming transcript utterance.
type SessionID string

// StreamerID identifies a streamer the director can follow.
type StreamerID string

// ConnectionState reports the transport lifecycle.
type ConnectionState int

const (
	// Disconnected means no channel is open; the transport may be waiting to retry.
	Disconnected ConnectionState = iota
	// Connecting means a dial or handshake is in flight.
	Connecting
	// Connected means the namespace handshake completed.
	Connected
)

// String returns the lower-case state name.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state as its name.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *ConnectionState) UnmarshalText(text []byte) error {
	state, ok := ParseConnectionState(string(text))
	if !ok {
		return fmt.Errorf("%w: unknown connection state %q", ErrInvalidRequest, text)
	}
	*s = state
	return nil
}

// ParseConnectionState parses a state name.
func ParseConnectionState(value string) (ConnectionState, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "disconnected":
		return Disconnected, true
	case "connecting":
		return Connecting, true
	case "connected":
		return Connected, true
	default:
		return Disconnected, false
	}
}

// Streamer is an entry of the collaborator streamer list.
type Streamer struct {
	ID          StreamerID `json:"id"`
	DisplayName string     `json:"display_name"`
}

// StreamersConfig is the collaborator streamer list document.
type StreamersConfig struct {
	Streamers []Streamer `json:"streamers"`
}
