package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/directorsync/internal/wire"
	"pkt.systems/directorsync/schema"
	"pkt.systems/pslog"
)

// session is one websocket connection. Only writeLoop writes to ws after
// the handshake.
type session struct {
	ws           *websocket.Conn
	out          chan []byte
	writeTimeout time.Duration
	log          pslog.Logger

	queued  atomic.Uint64
	written atomic.Uint64

	done chan struct{}
	once sync.Once
}

func newSession(ws *websocket.Conn, queue int, writeTimeout time.Duration, log pslog.Logger) *session {
	return &session{
		ws:           ws,
		out:          make(chan []byte, queue),
		writeTimeout: writeTimeout,
		log:          log,
		done:         make(chan struct{}),
	}
}

// handshake reads the Engine.IO open packet and joins the namespace.
// Any unexpected frame is a handshake failure.
func (s *session) handshake(namespace string, timeout time.Duration) (wire.Open, error) {
	deadline := time.Now().Add(timeout)
	_ = s.ws.SetReadDeadline(deadline)
	frame, err := s.readText()
	if err != nil {
		return wire.Open{}, fmt.Errorf("%w: read open: %v", schema.ErrHandshake, err)
	}
	typ, data, err := wire.DecodeEngine(frame)
	if err != nil || typ != wire.EngineOpen {
		return wire.Open{}, fmt.Errorf("%w: expected open packet, got %q", schema.ErrHandshake, frame)
	}
	open, err := wire.DecodeOpen(data)
	if err != nil {
		return wire.Open{}, err
	}
	_ = s.ws.SetWriteDeadline(deadline)
	if err := s.ws.WriteMessage(websocket.TextMessage, wire.EncodeConnect(namespace)); err != nil {
		return wire.Open{}, fmt.Errorf("%w: write connect: %v", schema.ErrHandshake, err)
	}
	for {
		frame, err := s.readText()
		if err != nil {
			return wire.Open{}, fmt.Errorf("%w: read connect ack: %v", schema.ErrHandshake, err)
		}
		typ, data, err := wire.DecodeEngine(frame)
		if err != nil {
			return wire.Open{}, fmt.Errorf("%w: %v", schema.ErrHandshake, err)
		}
		switch typ {
		case wire.EnginePing:
			if err := s.ws.WriteMessage(websocket.TextMessage, wire.EncodePong(data)); err != nil {
				return wire.Open{}, fmt.Errorf("%w: write pong: %v", schema.ErrHandshake, err)
			}
			continue
		case wire.EngineNoop:
			continue
		case wire.EngineMessage:
		default:
			return wire.Open{}, fmt.Errorf("%w: unexpected engine packet %q", schema.ErrHandshake, frame)
		}
		pkt, err := wire.DecodeSocket(data)
		if err != nil {
			return wire.Open{}, fmt.Errorf("%w: %v", schema.ErrHandshake, err)
		}
		if pkt.Namespace != namespace {
			continue
		}
		switch pkt.Type {
		case wire.SocketConnect:
			_ = s.ws.SetReadDeadline(time.Time{})
			_ = s.ws.SetWriteDeadline(time.Time{})
			return open, nil
		case wire.SocketConnectError:
			return wire.Open{}, fmt.Errorf("%w: connect error: %s", schema.ErrHandshake, pkt.ConnectError())
		default:
			return wire.Open{}, fmt.Errorf("%w: unexpected socket packet %q", schema.ErrHandshake, frame)
		}
	}
}

// readLoop serves frames until the socket fails or ctx ends. Malformed
// frames are logged and skipped.
func (s *session) readLoop(ctx context.Context, namespace string, open wire.Open, sink Sink) error {
	stop := context.AfterFunc(ctx, s.shutdown)
	defer stop()
	liveness := time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond
	for {
		if liveness > 0 {
			_ = s.ws.SetReadDeadline(time.Now().Add(liveness))
		}
		frame, err := s.readText()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		typ, data, err := wire.DecodeEngine(frame)
		if err != nil {
			s.log.Warn("transport frame dropped", "err", err)
			continue
		}
		switch typ {
		case wire.EnginePing:
			if err := s.enqueue(wire.EncodePong(data)); err != nil {
				s.log.Warn("transport pong dropped", "err", err)
			}
		case wire.EngineClose:
			return errors.New("server closed the engine session")
		case wire.EngineMessage:
			if err := s.handleMessage(ctx, namespace, data, sink); err != nil {
				return err
			}
		case wire.EngineNoop, wire.EnginePong, wire.EngineOpen, wire.EngineUpgrade:
		}
	}
}

func (s *session) handleMessage(ctx context.Context, namespace string, data []byte, sink Sink) error {
	pkt, err := wire.DecodeSocket(data)
	if err != nil {
		s.log.Warn("transport packet dropped", "err", err)
		return nil
	}
	if pkt.Namespace != namespace {
		return nil
	}
	switch pkt.Type {
	case wire.SocketEvent:
		name, payload, err := pkt.Event()
		if err != nil {
			s.log.Warn("transport event dropped", "err", err)
			return nil
		}
		s.log.Trace("transport event", "event", string(name), "payload_len", len(payload))
		sink.HandleEvent(ctx, schema.InboundEvent{
			Name:       name,
			Payload:    payload,
			ReceivedAt: time.Now(),
		})
	case wire.SocketDisconnect:
		return errServerDisconnect
	case wire.SocketConnectError:
		return fmt.Errorf("connect error: %s", pkt.ConnectError())
	}
	return nil
}

func (s *session) readText() ([]byte, error) {
	for {
		kind, frame, err := s.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage {
			return frame, nil
		}
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.out:
			_ = s.ws.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Warn("transport write failed", "err", err)
				s.shutdown()
				return
			}
			s.written.Add(1)
		}
	}
}

func (s *session) enqueue(frame []byte) error {
	select {
	case <-s.done:
		return schema.ErrNotConnected
	default:
	}
	select {
	case s.out <- frame:
		s.queued.Add(1)
		return nil
	default:
		return schema.ErrSendQueueFull
	}
}

func (s *session) flush(ctx context.Context) error {
	target := s.queued.Load()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for s.written.Load() < target {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return schema.ErrNotConnected
		case <-ticker.C:
		}
	}
	return nil
}

func (s *session) shutdown() {
	s.once.Do(func() {
		close(s.done)
		_ = s.ws.Close()
	})
}
