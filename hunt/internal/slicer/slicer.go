// Package slicer implements recursive date-range bisection.
//
// The search API refuses to enumerate more than a fixed number of
// results per query. Slicing the creation-date dimension defeats the
// cap: a window whose probe count exceeds it is split at the midpoint
// into two half-window probes, recursively, until every window is small
// enough to page through in full. Each window ends up either bisected
// or enumerated, so no result is skipped.
package slicer

import (
	"fmt"
	"time"
)

// minWindow is the narrowest splittable window. The date filter has
// day granularity, so below this a split cannot shrink the range.
const minWindow = 24 * time.Hour

// Window is an inclusive date range at UTC-midnight granularity.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow truncates both bounds to UTC midnight.
func NewWindow(start, end time.Time) Window {
	return Window{Start: midnight(start), End: midnight(end)}
}

func midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Split halves the window at the midpoint day. The midpoint belongs to
// both halves: the API's date filter is inclusive, so a result created
// exactly on the midpoint is caught either way, and a result is never
// lost between the halves.
func (w Window) Split() (Window, Window) {
	mid := midnight(w.Start.Add(w.End.Sub(w.Start) / 2))
	return Window{Start: w.Start, End: mid}, Window{Start: mid, End: w.End}
}

// Splittable reports whether the window is wide enough to bisect.
func (w Window) Splittable() bool {
	return w.End.Sub(w.Start) > minWindow
}

// Filter renders the window as a search qualifier, e.g.
// "created:2024-01-01..2024-01-03".
func (w Window) Filter(field string) string {
	return fmt.Sprintf("%s:%s..%s",
		field, w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
}

func (w Window) String() string {
	return w.Start.Format("2006-01-02") + ".." + w.End.Format("2006-01-02")
}

// Plan is the outcome of probing one window.
type Plan struct {
	// Split set: enqueue two discovery tasks for Left and Right at one
	// priority above the parent, so deep recursion drains before breadth.
	Split bool
	Left  Window
	Right Window

	// Split unset: enqueue Pages search tasks over the window.
	Pages int

	// Forced marks a window at the minimum width whose count still
	// exceeds the cap. Everything past the cap is unreachable; the
	// caller enumerates what the API will serve and logs the loss.
	Forced bool
}

// Decide routes a probed window: bisect when the result count exceeds
// the cap and the window can still shrink, otherwise page through it.
func Decide(total, cap, pageSize int, w Window) Plan {
	if pageSize <= 0 {
		pageSize = 10
	}

	if total > cap {
		if w.Splittable() {
			left, right := w.Split()
			return Plan{Split: true, Left: left, Right: right}
		}
		// Day-wide and still over the cap: enumerate the reachable part.
		return Plan{Pages: pages(cap, pageSize), Forced: true}
	}
	return Plan{Pages: pages(total, pageSize)}
}

func pages(total, pageSize int) int {
	return (total + pageSize - 1) / pageSize
}
