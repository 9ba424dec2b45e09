package logx

import (
	"context"

	"pkt.systems/directorsync/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	endpointKey contextKey = iota
	clientKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithEndpoint annotates the logger with the backend endpoint if present.
func WithEndpoint(ctx context.Context, endpoint string) pslog.Logger {
	log := pslog.Ctx(ctx)
	if endpoint != "" {
		if current, ok := ctx.Value(endpointKey).(string); ok && current == endpoint {
			return log
		}
		log = log.With("endpoint", endpoint)
	}
	return log
}

// WithClient annotates the logger with the client instance and endpoint.
func WithClient(ctx context.Context, clientID, endpoint string) pslog.Logger {
	log := WithEndpoint(ctx, endpoint)
	if clientID != "" {
		if current, ok := ctx.Value(clientKey).(string); ok && current == clientID {
			return log
		}
		log = log.With("client", clientID)
	}
	return log
}

// WithEvent annotates the logger with an inbound or outbound event name.
func WithEvent(log pslog.Logger, name schema.EventName) pslog.Logger {
	if name != "" {
		log = log.With("event", string(name))
	}
	return log
}

// WithSession annotates the logger with a transcript session id when available.
func WithSession(log pslog.Logger, sessionID schema.SessionID) pslog.Logger {
	if sessionID != "" {
		log = log.With("session", string(sessionID))
	}
	return log
}

// ContextWithEndpoint stores the endpoint marker on the context for log de-duplication.
func ContextWithEndpoint(ctx context.Context, endpoint string) context.Context {
	if ctx == nil || endpoint == "" {
		return ctx
	}
	return context.WithValue(ctx, endpointKey, endpoint)
}

// ContextWithClient stores the client marker on the context for log de-duplication.
func ContextWithClient(ctx context.Context, clientID string) context.Context {
	if ctx == nil || clientID == "" {
		return ctx
	}
	return context.WithValue(ctx, clientKey, clientID)
}

// ContextWithClientLogger attaches the logger and client/endpoint markers to the context.
func ContextWithClientLogger(ctx context.Context, log pslog.Logger, clientID, endpoint string) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithClient(ContextWithEndpoint(ctx, endpoint), clientID)
}
