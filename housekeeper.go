package taskkit

import (
	"context"
	"log/slog"
	"time"

	"github.com/saryou/taskkit/internal"
)

// HousekeeperConfig configures a Housekeeper.
type HousekeeperConfig struct {
	// Interval is how often Backend.Housekeeping is invoked.
	Interval time.Duration
}

func (c HousekeeperConfig) withDefaults() HousekeeperConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	return c
}

// Housekeeper periodically drives Backend.Housekeeping: each tick
// reclaims expired leases, expires overdue unclaimed tasks, and retires
// old results in one call. A Housekeeper may run on every ProcessHost in
// a cluster; every operation it drives is idempotent, so running it
// redundantly is harmless.
type Housekeeper struct {
	lcBase
	backend Backend
	clock   Clock
	log     *slog.Logger
	cfg     HousekeeperConfig
	task    internal.TimerTask
}

// NewHousekeeper constructs a Housekeeper. It is not started automatically.
func NewHousekeeper(backend Backend, clock Clock, log *slog.Logger, cfg HousekeeperConfig) *Housekeeper {
	return &Housekeeper{backend: backend, clock: clock, log: log, cfg: cfg.withDefaults()}
}

func (h *Housekeeper) tick(ctx context.Context) {
	if err := h.backend.Housekeeping(ctx, h.clock.Now()); err != nil {
		h.log.Error("housekeeping failed", "err", err)
	}
}

// Start begins the periodic Housekeeping tick.
func (h *Housekeeper) Start(ctx context.Context) error {
	if err := h.tryStart(); err != nil {
		return err
	}
	h.task.Start(ctx, h.tick, h.cfg.Interval)
	return nil
}

// Stop terminates the background tick, waiting up to timeout.
func (h *Housekeeper) Stop(timeout time.Duration) error {
	return h.tryStop(timeout, h.task.Stop)
}
