package transport

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"pkt.systems/directorsync/internal/wire"
	"pkt.systems/directorsync/schema"
)

const (
	defaultPath             = "/socket.io/"
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultBaseDelay        = time.Second
	defaultMaxDelay         = 5 * time.Second
	defaultSendQueue        = 64
)

// Config defines the backend endpoint and reconnect policy.
type Config struct {
	// URL is the backend base URL (http, https, ws or wss).
	URL string
	// Path is the Engine.IO endpoint path.
	Path string
	// Namespace is the Socket.IO namespace to join.
	Namespace        string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// BaseDelay is the first reconnect delay; each failed attempt doubles it
	// up to MaxDelay. Retries never stop.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Jitter randomizes each delay by up to ±Jitter of its value (0..1).
	Jitter    float64
	SendQueue int
}

func normalizeConfig(cfg Config) (Config, error) {
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.URL == "" {
		return Config{}, fmt.Errorf("%w: endpoint url is required", schema.ErrInvalidConfig)
	}
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		cfg.Path = "/" + cfg.Path
	}
	if cfg.Namespace == "" {
		cfg.Namespace = wire.DefaultNamespace
	}
	if !strings.HasPrefix(cfg.Namespace, "/") {
		return Config{}, fmt.Errorf("%w: namespace must start with /", schema.ErrInvalidConfig)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		return Config{}, fmt.Errorf("%w: max delay %s is below base delay %s", schema.ErrInvalidConfig, cfg.MaxDelay, cfg.BaseDelay)
	}
	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		return Config{}, fmt.Errorf("%w: jitter must be within [0,1]", schema.ErrInvalidConfig)
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaultSendQueue
	}
	return cfg, nil
}

// endpointURL builds the websocket URL of the Engine.IO endpoint.
func endpointURL(cfg Config) (string, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return "", fmt.Errorf("%w: endpoint url: %v", schema.ErrInvalidConfig, err)
	}
	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported endpoint scheme %q", schema.ErrInvalidConfig, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: endpoint url must include a host", schema.ErrInvalidConfig)
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + cfg.Path
	query := parsed.Query()
	query.Set("EIO", "4")
	query.Set("transport", "websocket")
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
