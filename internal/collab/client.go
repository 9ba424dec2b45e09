// Package collab reads the collaborator HTTP surface: the streamer list and
// the debug JSON endpoints that sit next to the Director Engine.
package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pkt.systems/directorsync/schema"
	"pkt.systems/pslog"
)

// BreadcrumbsFallback is the formatted context reported when the breadcrumbs
// endpoint cannot be read.
const BreadcrumbsFallback = "[Error fetching context]"

const maxBodyBytes = 4 << 20

// Config locates the collaborator endpoints.
type Config struct {
	BaseURL         string
	StreamersPath   string
	BreadcrumbsPath string
	SummaryPath     string
	Timeout         time.Duration
}

// Breadcrumbs is the breadcrumbs document.
type Breadcrumbs struct {
	FormattedContext string `json:"formatted_context"`
}

// Client fetches collaborator documents. Fetch helpers never fail: each
// falls back to a fixed value and logs the cause.
type Client struct {
	base *url.URL
	cfg  Config
	http *http.Client
	log  pslog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger pslog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.log = logger
		}
	}
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("%w: collab base url is required", schema.ErrInvalidConfig)
	}
	base, err := url.Parse(raw)
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("%w: collab base url %q", schema.ErrInvalidConfig, raw)
	}
	if cfg.StreamersPath == "" {
		cfg.StreamersPath = "/assets/streamers.json"
	}
	if cfg.BreadcrumbsPath == "" {
		cfg.BreadcrumbsPath = "/breadcrumbs"
	}
	if cfg.SummaryPath == "" {
		cfg.SummaryPath = "/summary_data"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	c := &Client{
		base: base,
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  pslog.Ctx(context.Background()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.log = c.log.With("collab", base.Host)
	return c, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// FetchJSON performs a GET on path and decodes the JSON body into out.
func (c *Client) FetchJSON(ctx context.Context, path string, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	target := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

// Streamers fetches the streamer list. A document without a streamers field
// yields an empty list.
func (c *Client) Streamers(ctx context.Context) ([]schema.Streamer, error) {
	var doc schema.StreamersConfig
	if err := c.FetchJSON(ctx, c.cfg.StreamersPath, &doc); err != nil {
		return nil, err
	}
	out := make([]schema.Streamer, 0, len(doc.Streamers))
	for _, s := range doc.Streamers {
		id, err := schema.NormalizeStreamerID(string(s.ID))
		if err != nil {
			c.log.Debug("collab streamer skipped", "id", s.ID, "err", err)
			continue
		}
		s.ID = id
		out = append(out, s)
	}
	return out, nil
}

// FetchStreamers returns the streamer list, or the default list when the
// fetch fails.
func (c *Client) FetchStreamers(ctx context.Context) []schema.Streamer {
	list, err := c.Streamers(ctx)
	if err != nil {
		c.log.Warn("collab streamers fetch failed", "err", err)
		return schema.DefaultStreamers()
	}
	return list
}

// FetchBreadcrumbs returns the breadcrumbs document, or BreadcrumbsFallback
// when the fetch fails.
func (c *Client) FetchBreadcrumbs(ctx context.Context) Breadcrumbs {
	var out Breadcrumbs
	if err := c.FetchJSON(ctx, c.cfg.BreadcrumbsPath, &out); err != nil {
		c.log.Warn("collab breadcrumbs fetch failed", "err", err)
		return Breadcrumbs{FormattedContext: BreadcrumbsFallback}
	}
	return out
}

// FetchSummaryData returns the raw summary document, or nil when the fetch
// fails.
func (c *Client) FetchSummaryData(ctx context.Context) json.RawMessage {
	var out json.RawMessage
	if err := c.FetchJSON(ctx, c.cfg.SummaryPath, &out); err != nil {
		c.log.Warn("collab summary fetch failed", "err", err)
		return nil
	}
	if string(out) == "null" {
		return nil
	}
	return out
}
