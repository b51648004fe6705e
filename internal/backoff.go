package internal

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffConfig parameterizes an exponential-with-jitter retry delay
// calculator, shared by the worker pool's idle-fetch sleep, transient
// backend error retries, and the supervisor's respawn throttle.
type BackoffConfig struct {
	MaxRetries          uint32
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// Backoff computes successive retry delays from a BackoffConfig.
type Backoff struct {
	BackoffConfig
}

// NewBackoff constructs a Backoff from cfg, applying sane defaults for any
// zero-valued field so callers may pass a partially-populated config.
func NewBackoff(cfg BackoffConfig) *Backoff {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 50 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2
	}
	return &Backoff{BackoffConfig: cfg}
}

// Next returns the delay to wait before attempt (1-indexed), and whether
// the caller should retry at all. MaxRetries == 0 means unlimited retries.
func (b *Backoff) Next(attempt uint32) (time.Duration, bool) {
	if b.MaxRetries > 0 && attempt > b.MaxRetries {
		return 0, false
	}
	if attempt == 0 {
		attempt = 1
	}
	exp := float64(b.InitialInterval) * math.Pow(b.Multiplier, float64(attempt-1))
	if exp > float64(b.MaxInterval) {
		exp = float64(b.MaxInterval)
	}
	if b.RandomizationFactor > 0 {
		delta := b.RandomizationFactor * exp
		minExp := exp - delta
		maxExp := exp + delta
		exp = minExp + rand.Float64()*(maxExp-minExp)
	}
	return time.Duration(exp), true
}
