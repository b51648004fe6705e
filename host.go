package taskkit

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/saryou/taskkit/event"
	"github.com/saryou/taskkit/internal"
	"github.com/saryou/taskkit/schedule"
)

// HostConfig configures a ProcessHost.
type HostConfig struct {
	// Groups maps each group this host serves to its worker-pool
	// configuration.
	Groups map[string]GroupConfig
	// Entries are registered with the Scheduler before it starts.
	Entries []*schedule.Entry
	// Location is the timezone recurrences evaluate in; nil means UTC.
	Location *time.Location
	// StopTimeout bounds how long Terminate waits for the Pool and
	// Scheduler to each finish shutting down.
	StopTimeout time.Duration
	// Housekeeping configures the periodic Backend.Housekeeping driver.
	Housekeeping HousekeeperConfig
}

func (c HostConfig) withDefaults() HostConfig {
	if c.StopTimeout <= 0 {
		c.StopTimeout = 30 * time.Second
	}
	return c
}

// ProcessHost composes one Scheduler and one Pool behind a single
// Start/Terminate lifecycle and a single event subscription. It is the
// unit a Supervisor spawns and restarts: each process owns exactly one
// Scheduler and one worker pool.
type ProcessHost struct {
	lcBase
	cfg         HostConfig
	backend     Backend
	scheduler   *Scheduler
	pool        *Pool
	housekeeper *Housekeeper
	log         *slog.Logger

	unsubscribe func()
	cancel      context.CancelFunc
	stopErr     error
	doneCh      chan struct{}
}

// NewProcessHost constructs a ProcessHost. registry must already have every
// handler this host will ever dispatch registered; NewProcessHost calls
// registry.Freeze() so the dispatch hot path never takes a lock.
func NewProcessHost(cfg HostConfig, backend Backend, registry *Registry, encoder Encoder, clock Clock, log *slog.Logger) *ProcessHost {
	cfg = cfg.withDefaults()
	registry.Freeze()
	return &ProcessHost{
		cfg:         cfg,
		backend:     backend,
		scheduler:   NewScheduler(backend, clock, log, cfg.Location),
		pool:        NewPool(backend, registry, encoder, clock, log, cfg.Groups),
		housekeeper: NewHousekeeper(backend, clock, log, cfg.Housekeeping),
		log:         log,
		doneCh:      make(chan struct{}),
	}
}

// IsActive reports whether the host has been started and Terminate has
// not yet been called; it turns false as soon as Terminate begins.
func (h *ProcessHost) IsActive() bool { return h.isActive() }

// Done returns a channel closed once the host has fully terminated,
// whether Terminate was called by the embedding process or triggered
// internally by a cluster-wide shutdown event observed on the backend.
func (h *ProcessHost) Done() <-chan struct{} { return h.doneCh }

// Start launches the Scheduler, the Pool, and the event-routing goroutine
// that fans backend events out to both. Entries configured on HostConfig
// are registered with the Scheduler before it starts.
func (h *ProcessHost) Start(ctx context.Context) error {
	if err := h.tryStart(); err != nil {
		return err
	}
	ctx, h.cancel = context.WithCancel(ctx)

	for _, e := range h.cfg.Entries {
		h.scheduler.AddEntry(e)
	}
	if err := h.scheduler.Start(ctx); err != nil {
		return err
	}
	if err := h.pool.Start(ctx); err != nil {
		return err
	}
	if err := h.housekeeper.Start(ctx); err != nil {
		return err
	}

	events, unsubscribe, err := h.backend.SubscribeEvents(ctx)
	if err != nil {
		return err
	}
	h.unsubscribe = unsubscribe
	go h.routeEvents(ctx, events)
	return nil
}

func (h *ProcessHost) routeEvents(ctx context.Context, events <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			h.scheduler.HandleEvent(e)
			h.pool.HandleEvent(e)
			if e.Kind == event.KindShutdown {
				if len(e.Groups) == 0 {
					// Terminate runs on its own goroutine and this loop
					// returns at once: Terminate cancels this loop's ctx
					// and closes the event stream in any case.
					go func() {
						if err := h.Terminate(); err != nil && err != ErrDoubleStopped {
							h.log.Error("shutdown-triggered terminate failed", "err", err)
						}
					}()
					return
				}
				// Group-scoped shutdown: stop only the named groups'
				// workers. The rest of the host, including the
				// scheduler and any other group, keeps running.
				groups := e.Groups
				go func() {
					for _, group := range groups {
						if err := h.pool.StopGroup(group, h.cfg.StopTimeout); err != nil {
							h.log.Error("group shutdown failed", "group", group, "err", err)
						}
					}
				}()
			}
		}
	}
}

// Terminate gracefully stops the Pool and Scheduler, waiting up to
// cfg.StopTimeout for each, and unsubscribes from the event stream.
// Errors from each stage are combined rather than short-circuited so a
// slow pool doesn't hide a scheduler shutdown failure.
func (h *ProcessHost) Terminate() error {
	err := h.tryStop(h.cfg.StopTimeout, func() internal.DoneChan {
		h.cancel()
		if h.unsubscribe != nil {
			h.unsubscribe()
		}
		done := make(internal.DoneChan)
		go func() {
			var merr *multierror.Error
			if e := h.pool.Stop(h.cfg.StopTimeout); e != nil {
				merr = multierror.Append(merr, e)
			}
			if e := h.scheduler.Stop(h.cfg.StopTimeout); e != nil {
				merr = multierror.Append(merr, e)
			}
			if e := h.housekeeper.Stop(h.cfg.StopTimeout); e != nil {
				merr = multierror.Append(merr, e)
			}
			h.stopErr = merr.ErrorOrNil()
			close(done)
			close(h.doneCh)
		}()
		return done
	})
	if err != nil {
		return err
	}
	return h.stopErr
}
