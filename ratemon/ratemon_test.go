package ratemon_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/hazyhaar/prospect/ratemon"
)

func TestCheckpointAboveBuffer(t *testing.T) {
	slept := false
	m := ratemon.New(ratemon.Options{
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = true
			return nil
		},
	})

	// Fresh monitor assumes a full budget.
	if err := m.Checkpoint(context.Background(), "scout"); err != nil {
		t.Fatal(err)
	}
	if slept {
		t.Fatal("checkpoint slept with a full budget")
	}
}

// WHAT: a budget sitting exactly at the safety buffer proceeds; only
// dropping below it blocks.
// WHY: the buffer is a floor to stay above, not a value to stop at —
// pausing at the boundary would waste the last allowed requests.
func TestCheckpointAtBufferBoundary(t *testing.T) {
	slept := false
	m := ratemon.New(ratemon.Options{
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = true
			return nil
		},
	})

	h := http.Header{}
	h.Set("X-RateLimit-Remaining", "5") // == default SafetyBuffer
	m.UpdateFromHeaders(h)
	if err := m.Checkpoint(context.Background(), "scout"); err != nil {
		t.Fatal(err)
	}
	if slept {
		t.Fatal("checkpoint slept with the budget at the buffer, not below it")
	}

	h.Set("X-RateLimit-Remaining", "4")
	m.UpdateFromHeaders(h)
	if err := m.Checkpoint(context.Background(), "scout"); err != nil {
		t.Fatal(err)
	}
	if !slept {
		t.Fatal("checkpoint did not sleep once the budget fell below the buffer")
	}
}

// WHAT: an exhausted budget sleeps until one second past the reset epoch,
// then restores the optimistic default.
// WHY: this is the backpressure contract — quota exhaustion must become a
// pause, never a failed request.
func TestCheckpointSleepsUntilReset(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var slept time.Duration
	m := ratemon.New(ratemon.Options{
		Now: func() time.Time { return now },
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = d
			return nil
		},
	})

	h := http.Header{}
	h.Set("X-RateLimit-Remaining", "2")
	h.Set("X-RateLimit-Reset", "1700000010") // now + 10s
	m.UpdateFromHeaders(h)

	if err := m.Checkpoint(context.Background(), "scout"); err != nil {
		t.Fatal(err)
	}
	if want := 11 * time.Second; slept != want {
		t.Fatalf("slept %v, want %v", slept, want)
	}

	st := m.Snapshot()
	if st.Remaining != 5000 {
		t.Fatalf("remaining = %d, want optimistic 5000 after reset", st.Remaining)
	}
}

func TestCheckpointResetInPast(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var slept time.Duration = -1
	m := ratemon.New(ratemon.Options{
		Now: func() time.Time { return now },
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = d
			return nil
		},
	})

	h := http.Header{}
	h.Set("X-RateLimit-Remaining", "0")
	h.Set("X-RateLimit-Reset", "1699999990") // already passed
	m.UpdateFromHeaders(h)

	if err := m.Checkpoint(context.Background(), "scout"); err != nil {
		t.Fatal(err)
	}
	if slept < 0 || slept > time.Second {
		t.Fatalf("slept %v, want at most 1s for a stale reset", slept)
	}
}

func TestCheckpointCancelled(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := ratemon.New(ratemon.Options{
		Now: func() time.Time { return now },
		Sleep: func(ctx context.Context, d time.Duration) error {
			return context.Canceled
		},
	})

	h := http.Header{}
	h.Set("X-RateLimit-Remaining", "1")
	h.Set("X-RateLimit-Reset", "1700000100")
	m.UpdateFromHeaders(h)

	err := m.Checkpoint(context.Background(), "scout")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	// An interrupted sleep must not fake a restored budget.
	if st := m.Snapshot(); st.Remaining != 1 {
		t.Fatalf("remaining = %d, want 1 after cancelled sleep", st.Remaining)
	}
}

// WHAT: header names match regardless of case.
// WHY: proxies and test doubles disagree on header casing; the monitor
// must not miss a budget update over it.
func TestUpdateFromHeadersCase(t *testing.T) {
	m := ratemon.New(ratemon.Options{})

	h := http.Header{}
	h.Set("x-ratelimit-remaining", "42")
	h.Set("X-RATELIMIT-RESET", "1700000099")
	m.UpdateFromHeaders(h)

	st := m.Snapshot()
	if st.Remaining != 42 {
		t.Fatalf("remaining = %d, want 42", st.Remaining)
	}
	if st.ResetEpoch != 1700000099 {
		t.Fatalf("reset = %d, want 1700000099", st.ResetEpoch)
	}
}

func TestUpdateFromHeadersMalformed(t *testing.T) {
	m := ratemon.New(ratemon.Options{})

	h := http.Header{}
	h.Set("X-RateLimit-Remaining", "plenty")
	m.UpdateFromHeaders(h)

	// Unparseable values keep the previous figure.
	if st := m.Snapshot(); st.Remaining != 5000 {
		t.Fatalf("remaining = %d, want 5000 untouched", st.Remaining)
	}
}

func TestUpdateFromHeadersAbsent(t *testing.T) {
	m := ratemon.New(ratemon.Options{})
	m.UpdateFromHeaders(http.Header{})

	if st := m.Snapshot(); st.Remaining != 5000 || st.ResetEpoch != 0 {
		t.Fatalf("state changed on empty headers: %+v", st)
	}
}

func TestPacerFirstCallImmediate(t *testing.T) {
	p := ratemon.NewPacer(0, 0) // defaults

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("first wait should use the burst allowance: %v", err)
	}
}
