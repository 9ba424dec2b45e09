// Package wire encodes and decodes the Engine.IO v4 and Socket.IO v5 text
// packets carried over a websocket frame.
//
// A frame is one Engine.IO packet: a single type digit followed by data. A
// message packet (type 4) carries one Socket.IO packet:
//
//	<type>[<namespace>,][<ack id>][<json>]
//
// Binary attachments are not supported; the backend only emits JSON.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"pkt.systems/directorsync/schema"
)

// EngineType is the Engine.IO packet type.
type EngineType byte

const (
	EngineOpen    EngineType = '0'
	EngineClose   EngineType = '1'
	EnginePing    EngineType = '2'
	EnginePong    EngineType = '3'
	EngineMessage EngineType = '4'
	EngineUpgrade EngineType = '5'
	EngineNoop    EngineType = '6'
)

// SocketType is the Socket.IO packet type.
type SocketType byte

const (
	SocketConnect      SocketType = '0'
	SocketDisconnect   SocketType = '1'
	SocketEvent        SocketType = '2'
	SocketAck          SocketType = '3'
	SocketConnectError SocketType = '4'
	SocketBinaryEvent  SocketType = '5'
	SocketBinaryAck    SocketType = '6'
)

// DefaultNamespace is the root Socket.IO namespace.
const DefaultNamespace = "/"

// Open is the Engine.IO handshake sent by the server on a new connection.
type Open struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// Packet is a decoded Socket.IO packet.
type Packet struct {
	Type      SocketType
	Namespace string
	AckID     int64
	HasAck    bool
	Data      json.RawMessage
}

// DecodeEngine splits a frame into its Engine.IO type and data.
func DecodeEngine(frame []byte) (EngineType, []byte, error) {
	if len(frame) == 0 {
		return 0, nil, fmt.Errorf("%w: empty frame", schema.ErrMalformedPacket)
	}
	typ := EngineType(frame[0])
	if typ < EngineOpen || typ > EngineNoop {
		return 0, nil, fmt.Errorf("%w: engine type %q", schema.ErrMalformedPacket, frame[0])
	}
	return typ, frame[1:], nil
}

// DecodeOpen parses the data of an open packet.
func DecodeOpen(data []byte) (Open, error) {
	var open Open
	if err := json.Unmarshal(data, &open); err != nil {
		return Open{}, fmt.Errorf("%w: open payload: %v", schema.ErrHandshake, err)
	}
	if open.SID == "" {
		return Open{}, fmt.Errorf("%w: open payload missing sid", schema.ErrHandshake)
	}
	if open.PingInterval < 0 || open.PingTimeout < 0 {
		return Open{}, fmt.Errorf("%w: negative ping timing", schema.ErrHandshake)
	}
	return open, nil
}

// DecodeSocket parses the data of a message packet.
func DecodeSocket(data []byte) (Packet, error) {
	if len(data) == 0 {
		return Packet{}, fmt.Errorf("%w: empty socket packet", schema.ErrMalformedPacket)
	}
	pkt := Packet{Type: SocketType(data[0]), Namespace: DefaultNamespace}
	if pkt.Type < SocketConnect || pkt.Type > SocketBinaryAck {
		return Packet{}, fmt.Errorf("%w: socket type %q", schema.ErrMalformedPacket, data[0])
	}
	if pkt.Type == SocketBinaryEvent || pkt.Type == SocketBinaryAck {
		return Packet{}, fmt.Errorf("%w: binary packets are not supported", schema.ErrMalformedPacket)
	}
	rest := data[1:]
	if len(rest) > 0 && rest[0] == '/' {
		end := bytes.IndexByte(rest, ',')
		if end == -1 {
			pkt.Namespace = string(rest)
			rest = nil
		} else {
			pkt.Namespace = string(rest[:end])
			rest = rest[end+1:]
		}
	}
	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.ParseInt(string(rest[:digits]), 10, 64)
		if err != nil {
			return Packet{}, fmt.Errorf("%w: ack id: %v", schema.ErrMalformedPacket, err)
		}
		pkt.AckID = id
		pkt.HasAck = true
		rest = rest[digits:]
	}
	if len(rest) > 0 {
		if !json.Valid(rest) {
			return Packet{}, fmt.Errorf("%w: invalid json data", schema.ErrMalformedPacket)
		}
		pkt.Data = json.RawMessage(rest)
	}
	return pkt, nil
}

// Event extracts the event name and first argument of an event packet.
// Additional arguments are ignored; a missing argument yields JSON null.
func (p Packet) Event() (schema.EventName, json.RawMessage, error) {
	if p.Type != SocketEvent {
		return "", nil, fmt.Errorf("%w: not an event packet", schema.ErrMalformedPacket)
	}
	var args []json.RawMessage
	if err := json.Unmarshal(p.Data, &args); err != nil || len(args) == 0 {
		return "", nil, fmt.Errorf("%w: event arguments", schema.ErrMalformedPacket)
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil || name == "" {
		return "", nil, fmt.Errorf("%w: event name", schema.ErrMalformedPacket)
	}
	if len(args) < 2 {
		return schema.EventName(name), json.RawMessage("null"), nil
	}
	return schema.EventName(name), args[1], nil
}

// ConnectError extracts the message of a connect error packet.
func (p Packet) ConnectError() string {
	var body struct {
		Message string `json:"message"`
	}
	if len(p.Data) > 0 && json.Unmarshal(p.Data, &body) == nil && body.Message != "" {
		return body.Message
	}
	return string(p.Data)
}

// EncodeConnect returns the frame requesting a namespace connection.
func EncodeConnect(namespace string) []byte {
	frame := []byte{byte(EngineMessage), byte(SocketConnect)}
	return appendNamespace(frame, namespace)
}

// EncodeDisconnect returns the frame leaving a namespace.
func EncodeDisconnect(namespace string) []byte {
	frame := []byte{byte(EngineMessage), byte(SocketDisconnect)}
	return appendNamespace(frame, namespace)
}

// EncodeEvent returns the frame emitting name with a single JSON argument.
func EncodeEvent(namespace string, name schema.EventName, payload any) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: event name is required", schema.ErrInvalidRequest)
	}
	args, err := json.Marshal([]any{string(name), payload})
	if err != nil {
		return nil, err
	}
	frame := []byte{byte(EngineMessage), byte(SocketEvent)}
	frame = appendNamespace(frame, namespace)
	return append(frame, args...), nil
}

// EncodePong returns the pong frame answering a server ping.
func EncodePong(data []byte) []byte {
	return append([]byte{byte(EnginePong)}, data...)
}

func appendNamespace(frame []byte, namespace string) []byte {
	if namespace == "" || namespace == DefaultNamespace {
		return frame
	}
	frame = append(frame, namespace...)
	return append(frame, ',')
}
