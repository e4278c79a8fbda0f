package slicer_test

import (
	"testing"
	"time"

	"github.com/hazyhaar/prospect/hunt/internal/slicer"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// WHAT: a window whose probe exceeds the cap splits into two halves
// sharing the midpoint day.
// WHY: the halves must partition the parent exactly; a gap between them
// would silently drop every repository created in it.
func TestDecideSplitsOverCap(t *testing.T) {
	w := slicer.NewWindow(day("2024-01-01"), day("2024-01-03"))

	plan := slicer.Decide(1500, 1000, 10, w)
	if !plan.Split {
		t.Fatal("expected a split")
	}
	if got := plan.Left.String(); got != "2024-01-01..2024-01-02" {
		t.Fatalf("left = %s", got)
	}
	if got := plan.Right.String(); got != "2024-01-02..2024-01-03" {
		t.Fatalf("right = %s", got)
	}
	if !plan.Left.End.Equal(plan.Right.Start) {
		t.Fatal("halves must share the midpoint")
	}
}

func TestDecideEnumeratesUnderCap(t *testing.T) {
	w := slicer.NewWindow(day("2024-01-01"), day("2024-01-03"))

	plan := slicer.Decide(847, 1000, 100, w)
	if plan.Split {
		t.Fatal("unexpected split under the cap")
	}
	if plan.Pages != 9 {
		t.Fatalf("pages = %d, want ceil(847/100) = 9", plan.Pages)
	}
	if plan.Forced {
		t.Fatal("under-cap window should not be forced")
	}
}

func TestDecideExactCap(t *testing.T) {
	w := slicer.NewWindow(day("2024-01-01"), day("2024-01-03"))

	plan := slicer.Decide(1000, 1000, 100, w)
	if plan.Split {
		t.Fatal("total equal to the cap is safe, not a split")
	}
	if plan.Pages != 10 {
		t.Fatalf("pages = %d, want 10", plan.Pages)
	}
}

func TestDecideEmptyWindow(t *testing.T) {
	w := slicer.NewWindow(day("2024-01-01"), day("2024-01-03"))

	plan := slicer.Decide(0, 1000, 100, w)
	if plan.Split || plan.Pages != 0 {
		t.Fatalf("empty window should yield nothing, got %+v", plan)
	}
}

// WHAT: a day-wide window over the cap stops recursing and enumerates
// the cap's worth of pages.
// WHY: the date filter cannot shrink below one day; without this floor
// the bisection would recurse forever on a hot day.
func TestDecideForcedAtFloor(t *testing.T) {
	w := slicer.NewWindow(day("2024-01-01"), day("2024-01-02"))

	plan := slicer.Decide(5000, 1000, 100, w)
	if plan.Split {
		t.Fatal("day-wide window must not split")
	}
	if !plan.Forced {
		t.Fatal("over-cap floor window should be marked forced")
	}
	if plan.Pages != 10 {
		t.Fatalf("pages = %d, want cap/pageSize = 10", plan.Pages)
	}
}

// WHAT: repeated splitting always reaches the one-day floor.
// WHY: termination of the whole discovery recursion rests on every
// split producing strictly narrower halves.
func TestSplitTerminates(t *testing.T) {
	w := slicer.NewWindow(day("2020-01-01"), day("2024-01-01"))

	for i := 0; i < 64; i++ {
		if !w.Splittable() {
			return
		}
		left, right := w.Split()
		if !left.End.Before(w.End) {
			t.Fatalf("left half did not shrink: %s -> %s", w, left)
		}
		if !right.Start.After(w.Start) {
			t.Fatalf("right half did not shrink: %s -> %s", w, right)
		}
		w = left
	}
	t.Fatal("bisection did not reach the floor within 64 splits")
}

func TestWindowFilter(t *testing.T) {
	w := slicer.NewWindow(day("2024-01-01"), day("2024-01-03"))
	if got := w.Filter("created"); got != "created:2024-01-01..2024-01-03" {
		t.Fatalf("filter = %q", got)
	}
}

func TestNewWindowTruncates(t *testing.T) {
	start := time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC)
	end := time.Date(2024, 1, 3, 23, 59, 59, 0, time.UTC)
	w := slicer.NewWindow(start, end)

	if w.Start.Hour() != 0 || w.End.Hour() != 0 {
		t.Fatalf("bounds not truncated to midnight: %+v", w)
	}
}
