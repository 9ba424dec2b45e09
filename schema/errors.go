package schema

import "errors"

var (
	// ErrNotConnected indicates an emit was attempted while the channel is down.
	ErrNotConnected = errors.New("not connected")
	// ErrSendQueueFull indicates the outbound queue could not accept the emit.
	ErrSendQueueFull = errors.New("send queue full")
	// ErrClosed indicates the transport or client has been closed.
	ErrClosed = errors.New("closed")
	// ErrMalformedPayload indicates an inbound payload is missing expected fields.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrMalformedPacket indicates a wire packet could not be decoded.
	ErrMalformedPacket = errors.New("malformed packet")
	// ErrHandshake indicates the Engine.IO or namespace handshake failed.
	ErrHandshake = errors.New("handshake failed")
	// ErrNoPendingSuggestion indicates accept was requested with an empty pending slot.
	ErrNoPendingSuggestion = errors.New("no pending suggestion")
	// ErrInvalidRequest indicates a malformed consumer request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidConfig indicates the service configuration is invalid.
	ErrInvalidConfig = errors.New("invalid config")
)
