// Package throttle implements a sliding-window self-imposed rate limit for
// calls against the vision-model endpoint. It tracks both raw request count
// and estimated token consumption over a trailing 60-second horizon.
package throttle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// window is the sliding horizon over which admissions are counted.
	window = time.Minute

	// safetyMargin pads each computed wait so we land comfortably past the
	// oldest entry's expiry rather than racing it.
	safetyMargin = time.Second
)

// Config holds the throttle caps.
type Config struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	TokensPerMinute   int `yaml:"tokens_per_minute" mapstructure:"tokens_per_minute"`
	TokensPerCall     int `yaml:"tokens_per_call" mapstructure:"tokens_per_call"`
}

// DefaultConfig returns the caps used against the vision endpoint.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 450,
		TokensPerMinute:   180000,
		TokensPerCall:     1500,
	}
}

// Limiter admits calls while both the request window and the token-slot
// window are under their caps. It is an approximation: each call consumes a
// single fixed-size token slot, and waits carry a one-second safety margin.
// State lives only in memory; a restart re-accrues from zero, which is
// acceptable for a self-protective throttle.
type Limiter struct {
	mu         sync.Mutex
	cfg        Config
	requests   []time.Time
	tokenSlots []time.Time

	// now and sleep are injectable for deterministic tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Limiter with the given caps. Zero or negative cap values
// fall back to the defaults.
func New(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.TokensPerMinute <= 0 {
		cfg.TokensPerMinute = def.TokensPerMinute
	}
	if cfg.TokensPerCall <= 0 {
		cfg.TokensPerCall = def.TokensPerCall
	}
	return &Limiter{
		cfg:   cfg,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Admit blocks the calling goroutine until both windows have capacity, then
// records the admission in both and returns. Unrelated goroutines are not
// blocked beyond the admission check itself. Returns the context's error if
// it is cancelled while waiting.
func (l *Limiter) Admit(ctx context.Context) error {
	for {
		wait, ok := l.tryAdmit()
		if ok {
			return nil
		}
		zap.L().Debug("throttle: at capacity, waiting",
			zap.Duration("wait", wait),
		)
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// tryAdmit prunes expired entries, then either records an admission and
// returns ok=true, or returns the duration to wait before re-checking.
func (l *Limiter) tryAdmit() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)
	l.requests = prune(l.requests, cutoff)
	l.tokenSlots = prune(l.tokenSlots, cutoff)

	if len(l.requests) >= l.cfg.RequestsPerMinute {
		return window - now.Sub(l.requests[0]) + safetyMargin, false
	}
	if len(l.tokenSlots) >= l.tokenSlotCap() {
		return window - now.Sub(l.tokenSlots[0]) + safetyMargin, false
	}

	l.requests = append(l.requests, now)
	l.tokenSlots = append(l.tokenSlots, now)
	return 0, true
}

// tokenSlotCap converts the token budget into equivalent whole-call slots.
func (l *Limiter) tokenSlotCap() int {
	return l.cfg.TokensPerMinute / l.cfg.TokensPerCall
}

// prune drops entries at or before the cutoff. Entries are appended in time
// order, so the first retained index bounds the drop.
func prune(entries []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(entries) && !entries[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return entries
	}
	return append(entries[:0], entries[i:]...)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
