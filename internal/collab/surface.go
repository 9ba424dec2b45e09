package collab

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"pkt.systems/directorsync/internal/eventbus"
	"pkt.systems/directorsync/internal/schedule"
	"pkt.systems/directorsync/schema"
	"pkt.systems/pslog"
)

// Status is the last known state of the collaborator surface.
type Status struct {
	Streamers   []schema.Streamer `json:"streamers"`
	Breadcrumbs Breadcrumbs       `json:"breadcrumbs"`
	Summary     json.RawMessage   `json:"summary"`
	UpdatedAt   time.Time         `json:"updated_at,omitzero"`
	LastError   string            `json:"last_error,omitempty"`
}

func (s Status) clone() Status {
	out := s
	out.Streamers = append([]schema.Streamer(nil), s.Streamers...)
	out.Summary = append(json.RawMessage(nil), s.Summary...)
	return out
}

// Surface keeps Status fresh on a schedule and publishes every refresh.
type Surface struct {
	client *Client
	task   *schedule.Task
	topic  *eventbus.Topic[Status]
	now    func() time.Time

	mu     sync.Mutex
	status Status
}

// NewSurface returns a Surface holding the fallback status until the first
// refresh.
func NewSurface(client *Client, logger pslog.Logger) *Surface {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Surface{
		client: client,
		task:   schedule.New("collab refresh", logger),
		topic:  eventbus.NewTopic[Status]("collab", logger),
		now:    time.Now,
		status: Status{
			Streamers:   schema.DefaultStreamers(),
			Breadcrumbs: Breadcrumbs{FormattedContext: BreadcrumbsFallback},
		},
	}
}

// Refresh fetches every collaborator document once. The streamer fetch error,
// if any, is returned after the fallback list has been stored.
func (s *Surface) Refresh(ctx context.Context) error {
	streamers, err := s.client.Streamers(ctx)
	if err != nil {
		streamers = schema.DefaultStreamers()
	}
	next := Status{
		Streamers:   streamers,
		Breadcrumbs: s.client.FetchBreadcrumbs(ctx),
		Summary:     s.client.FetchSummaryData(ctx),
		UpdatedAt:   s.now(),
	}
	if err != nil {
		next.LastError = err.Error()
	}
	s.mu.Lock()
	s.status = next
	s.mu.Unlock()
	s.topic.Publish(next.clone())
	return err
}

// Start refreshes now and then every interval until Stop or ctx ends.
func (s *Surface) Start(ctx context.Context, interval time.Duration) error {
	return s.task.Start(ctx, interval, s.Refresh)
}

// Stop halts the refresh loop.
func (s *Surface) Stop() {
	s.task.Stop()
}

// Status returns a copy of the last known status.
func (s *Surface) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.clone()
}

// Streamers returns the last known streamer list.
func (s *Surface) Streamers() []schema.Streamer {
	return s.Status().Streamers
}

// Topic publishes every refreshed Status.
func (s *Surface) Topic() *eventbus.Topic[Status] {
	return s.topic
}
