// Package directorsync keeps a local, bounded mirror of a Director Engine's
// live state and relays operator commands back to it.
package directorsync

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pkt.systems/directorsync/core"
	"pkt.systems/directorsync/httpapi"
	"pkt.systems/directorsync/internal/appconfig"
	"pkt.systems/directorsync/internal/collab"
	"pkt.systems/directorsync/internal/dispatch"
	"pkt.systems/directorsync/internal/eventbus"
	"pkt.systems/directorsync/internal/logx"
	"pkt.systems/directorsync/internal/transport"
	"pkt.systems/directorsync/schema"
	"pkt.systems/pslog"
)

// Client composes the transport, the event dispatcher, the state service,
// the collaborator poller, and the HTTP bridge.
type Client interface {
	Start(ctx context.Context) error
	Wait() error
	Close(ctx context.Context) error
	// Flush waits until queued commands have been written to the backend.
	Flush(ctx context.Context) error

	ID() string
	Status() schema.ConnectionState
	Service() core.Service
	Streamers() []schema.Streamer
	Collab() (collab.Status, bool)
}

// ClientConfig configures the compositor.
type ClientConfig struct {
	Service        schema.ServiceConfig
	Transport      transport.Config
	Collab         collab.Config
	CollabInterval time.Duration
	HTTP           httpapi.Config
}

// ClientDeps captures optional collaborators of the client.
type ClientDeps struct {
	Logger pslog.Logger
	Now    func() time.Time
	// OnState observes every connection state change after the service.
	OnState transport.StateObserver
	// Transport options are appended to the client's own.
	Transport []transport.Option
	// HTTPListener replaces listening on HTTP.Addr.
	HTTPListener net.Listener
}

// ClientOption toggles client components.
type ClientOption func(*clientOptions)

type clientOptions struct {
	enableHTTP   bool
	enableCollab bool
}

// WithHTTP enables the consumer bridge.
func WithHTTP() ClientOption {
	return func(o *clientOptions) { o.enableHTTP = true }
}

// WithCollab enables periodic collaborator surface refresh.
func WithCollab() ClientOption {
	return func(o *clientOptions) { o.enableCollab = true }
}

// ConfigFromApp maps the file configuration onto a ClientConfig.
func ConfigFromApp(cfg appconfig.Config) ClientConfig {
	return ClientConfig{
		Service: cfg.Service(),
		Transport: transport.Config{
			URL:              cfg.Endpoint.URL,
			Path:             cfg.Endpoint.Path,
			Namespace:        cfg.Endpoint.Namespace,
			HandshakeTimeout: time.Duration(cfg.Endpoint.HandshakeTimeoutSeconds) * time.Second,
			WriteTimeout:     time.Duration(cfg.Endpoint.WriteTimeoutSeconds) * time.Second,
			BaseDelay:        cfg.Reconnect.BaseDelay(),
			MaxDelay:         cfg.Reconnect.MaxDelay(),
			Jitter:           cfg.Reconnect.Jitter,
			SendQueue:        cfg.Endpoint.SendQueue,
		},
		Collab: collab.Config{
			BaseURL:         cfg.Collab.BaseURL,
			StreamersPath:   cfg.Collab.StreamersPath,
			BreadcrumbsPath: cfg.Collab.BreadcrumbsPath,
			SummaryPath:     cfg.Collab.SummaryPath,
			Timeout:         time.Duration(cfg.Collab.TimeoutSeconds) * time.Second,
		},
		CollabInterval: cfg.Collab.PollInterval(),
		HTTP: httpapi.Config{
			Addr:        cfg.HTTP.Addr,
			BasePath:    cfg.HTTP.BasePath,
			HistorySize: cfg.HTTP.HistorySize,
		},
	}
}

// New constructs a client. Nothing connects until Start.
func New(cfg ClientConfig, deps ClientDeps, opts ...ClientOption) (Client, error) {
	options := clientOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	normalized, err := schema.NormalizeServiceConfig(cfg.Service)
	if err != nil {
		return nil, err
	}
	cfg.Service = normalized

	id := uuid.NewString()
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	logger = logger.With("client", id)

	c := &client{
		id:      id,
		cfg:     cfg,
		options: options,
		logger:  logger,
	}

	dispatcher := dispatch.New(logger)
	transportOpts := []transport.Option{
		transport.WithLogger(logger),
		transport.WithStateObserver(stateFanout{observers: []transport.StateObserver{
			c.onState,
			deps.OnState,
		}}.observe),
	}
	transportOpts = append(transportOpts, deps.Transport...)
	conn, err := transport.New(cfg.Transport, dispatcher, transportOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn

	service, err := core.NewService(cfg.Service, core.ServiceDeps{
		Sender: conn,
		Logger: logger,
		Now:    deps.Now,
	})
	if err != nil {
		return nil, err
	}
	core.RegisterHandlers(dispatcher, service)
	c.service = service
	c.dispatcher = dispatcher

	if options.enableCollab {
		if cfg.CollabInterval <= 0 {
			return nil, errors.New("collab poll interval must be positive")
		}
		collabClient, err := collab.NewClient(cfg.Collab, collab.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		c.surface = collab.NewSurface(collabClient, logger)
	}

	if options.enableHTTP {
		if cfg.HTTP.Addr == "" && deps.HTTPListener == nil {
			return nil, errors.New("http addr is required")
		}
		c.hub = httpapi.NewHub(cfg.HTTP.HistorySize, logger)
		var httpOpts []httpapi.Option
		if c.surface != nil {
			httpOpts = append(httpOpts, httpapi.WithCollab(c.surface))
		}
		if deps.Now != nil {
			httpOpts = append(httpOpts, httpapi.WithClock(deps.Now))
		}
		c.httpSrv = httpapi.NewServer(cfg.HTTP, service, c.hub, httpOpts...)
		c.listener = deps.HTTPListener
	}
	return c, nil
}

type client struct {
	id         string
	cfg        ClientConfig
	options    clientOptions
	logger     pslog.Logger
	conn       *transport.Conn
	dispatcher *dispatch.Dispatcher
	service    core.Service
	surface    *collab.Surface
	hub        *httpapi.Hub
	httpSrv    *httpapi.Server
	listener   net.Listener

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	done    chan struct{}
	waitErr error
	started bool
}

func (c *client) onState(state schema.ConnectionState) {
	c.service.OnConnectionState(state)
}

func (c *client) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		c.logger.Warn("client start rejected", "reason", "already started")
		return errors.New("client already started")
	}
	ctx = logx.ContextWithClientLogger(ctx, c.logger, c.id, c.cfg.Transport.URL)
	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)
	c.ctx = ctx
	c.cancel = cancel
	c.group = group
	c.done = make(chan struct{})
	c.started = true
	c.mu.Unlock()

	log := logx.WithClient(ctx, c.id, c.cfg.Transport.URL)
	log.Info(
		"client start",
		"endpoint", c.conn.Target(),
		"http", c.options.enableHTTP,
		"http_addr", c.cfg.HTTP.Addr,
		"collab", c.options.enableCollab,
	)

	group.Go(func() error {
		return c.conn.Run(gctx)
	})
	if c.surface != nil {
		if err := c.surface.Start(gctx, c.cfg.CollabInterval); err != nil {
			cancel()
			return err
		}
		group.Go(func() error {
			<-gctx.Done()
			c.surface.Stop()
			return nil
		})
	}
	if c.httpSrv != nil {
		collabTopic := c.collabTopic()
		group.Go(func() error {
			return c.hub.Follow(gctx, c.service.Topics(), collabTopic)
		})
		group.Go(func() error {
			var err error
			if c.listener != nil {
				err = httpapi.Serve(gctx, c.listener, c.httpSrv.Handler())
			} else {
				err = httpapi.ListenAndServe(gctx, c.cfg.HTTP.Addr, c.httpSrv.Handler())
			}
			if err != nil {
				log.Error("http bridge failed", "err", err)
			}
			return err
		})
	}
	go func() {
		err := group.Wait()
		if errors.Is(err, context.Canceled) || errors.Is(err, schema.ErrClosed) {
			err = nil
		}
		c.mu.Lock()
		c.waitErr = err
		c.mu.Unlock()
		close(c.done)
	}()
	return nil
}

func (c *client) collabTopic() *eventbus.Topic[collab.Status] {
	if c.surface == nil {
		return nil
	}
	return c.surface.Topic()
}

func (c *client) Wait() error {
	c.mu.Lock()
	done := c.done
	started := c.started
	c.mu.Unlock()
	if !started {
		return errors.New("client not started")
	}
	<-done
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waitErr != nil {
		c.logger.Error("client stopped", "err", c.waitErr)
	}
	return c.waitErr
}

func (c *client) Close(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	started := c.started
	c.mu.Unlock()
	c.logger.Info("client close requested")
	if cancel != nil {
		cancel()
	}
	_ = c.conn.Close()
	if c.surface != nil {
		c.surface.Stop()
	}
	if !started {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		c.logger.Warn("client close timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		c.logger.Info("client closed")
		return nil
	}
}

func (c *client) Flush(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.conn.Flush(ctx)
}

func (c *client) ID() string {
	return c.id
}

func (c *client) Status() schema.ConnectionState {
	return c.conn.Status()
}

func (c *client) Service() core.Service {
	return c.service
}

func (c *client) Streamers() []schema.Streamer {
	if c.surface == nil {
		return schema.DefaultStreamers()
	}
	return c.surface.Streamers()
}

func (c *client) Collab() (collab.Status, bool) {
	if c.surface == nil {
		return collab.Status{}, false
	}
	return c.surface.Status(), true
}
