package taskkit

import (
	"context"
	"log/slog"

	"github.com/saryou/taskkit/event"
)

// Controller is a thin wrapper over the Backend's event bus. SendX
// publishes; each ProcessHost subscribes once via Subscribe and routes
// events to its Scheduler and worker pools.
type Controller struct {
	backend Backend
	log     *slog.Logger
}

// NewController wraps backend.
func NewController(backend Backend, log *slog.Logger) *Controller {
	return &Controller{backend: backend, log: log}
}

// SendShutdown publishes a shutdown event scoped to groups (all groups if
// empty).
func (c *Controller) SendShutdown(ctx context.Context, groups ...string) error {
	return c.backend.PublishEvent(ctx, event.Shutdown(groups...))
}

// SendPause publishes a pause event scoped to groups (all groups if
// empty).
func (c *Controller) SendPause(ctx context.Context, groups ...string) error {
	return c.backend.PublishEvent(ctx, event.Pause(groups...))
}

// SendResume publishes a resume event scoped to groups (all groups if
// empty).
func (c *Controller) SendResume(ctx context.Context, groups ...string) error {
	return c.backend.PublishEvent(ctx, event.Resume(groups...))
}

// Subscribe opens one event stream from the backend. The returned channel
// delivers every event published cluster-wide; routing/filtering by group
// is the caller's responsibility (ProcessHost does this for its
// Scheduler and pool).
func (c *Controller) Subscribe(ctx context.Context) (<-chan event.Event, func(), error) {
	return c.backend.SubscribeEvents(ctx)
}
