// Package ratemon tracks the request budget advertised by the search API
// and converts quota exhaustion into cooperative backpressure.
//
// Workers call Checkpoint before every outbound call. When the budget
// drops below the safety buffer, Checkpoint blocks until the advertised
// reset time has passed, then optimistically restores the budget so
// traffic resumes; the next real response corrects the estimate.
package ratemon

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Options configures a Monitor. The zero value is usable; defaults are
// applied by New.
type Options struct {
	// SafetyBuffer is the remaining-request floor below which Checkpoint
	// blocks. Default 5.
	SafetyBuffer int

	// OptimisticDefault is the budget assumed at startup and restored
	// after a reset sleep. Default 5000.
	OptimisticDefault int

	// Now and Sleep are injectable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o Options) defaults() Options {
	if o.SafetyBuffer == 0 {
		o.SafetyBuffer = 5
	}
	if o.OptimisticDefault == 0 {
		o.OptimisticDefault = 5000
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = sleepCtx
	}
	return o
}

// State is a point-in-time copy of the monitor's view of the budget.
type State struct {
	Remaining  int   `json:"remaining"`
	ResetEpoch int64 `json:"reset_epoch"`
}

// Monitor holds the latest rate-budget figures reported by the API.
// All methods are safe for concurrent use.
type Monitor struct {
	mu         sync.Mutex
	remaining  int
	resetEpoch int64
	opts       Options
}

// New creates a Monitor that assumes a full budget until the first
// response header says otherwise.
func New(opts Options) *Monitor {
	opts = opts.defaults()
	return &Monitor{
		remaining: opts.OptimisticDefault,
		opts:      opts,
	}
}

// UpdateFromHeaders overwrites the budget from a response's rate headers.
// Header lookup is case-insensitive; a malformed value is logged and
// ignored, keeping the previous figure.
func (m *Monitor) UpdateFromHeaders(h http.Header) {
	remaining := h.Get("X-RateLimit-Remaining")
	reset := h.Get("X-RateLimit-Reset")

	m.mu.Lock()
	defer m.mu.Unlock()

	if remaining != "" {
		n, err := strconv.Atoi(remaining)
		if err != nil {
			slog.Warn("ratemon: bad remaining header", "value", remaining, "error", err)
		} else {
			m.remaining = n
		}
	}
	if reset != "" {
		n, err := strconv.ParseInt(reset, 10, 64)
		if err != nil {
			slog.Warn("ratemon: bad reset header", "value", reset, "error", err)
		} else {
			m.resetEpoch = n
		}
	}
}

// Checkpoint is the sole suspension point for rate-limit backpressure.
// If the budget is at or above the safety buffer it returns immediately.
// Otherwise it sleeps until one second past the advertised reset epoch,
// restores the optimistic budget, and returns. The only error is a
// cancelled context during the sleep.
func (m *Monitor) Checkpoint(ctx context.Context, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.remaining >= m.opts.SafetyBuffer {
		return nil
	}

	wait := time.Duration(max(0, m.resetEpoch-m.opts.Now().Unix()+1)) * time.Second
	slog.Warn("ratemon: budget exhausted, pausing",
		"caller", label,
		"remaining", m.remaining,
		"wait", wait)

	if err := m.opts.Sleep(ctx, wait); err != nil {
		return err
	}

	// Optimistic: the next real response corrects this.
	m.remaining = m.opts.OptimisticDefault
	return nil
}

// Snapshot returns the current budget figures.
func (m *Monitor) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{Remaining: m.remaining, ResetEpoch: m.resetEpoch}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
