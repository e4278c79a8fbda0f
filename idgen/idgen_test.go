package idgen

import (
	"sort"
	"strings"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	gen := UUIDv7()
	id := gen()
	// UUID format: 8-4-4-4-12
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		t.Fatalf("UUIDv7: expected 5 parts, got %d in %q", len(parts), id)
	}
	if len(id) != 36 {
		t.Fatalf("UUIDv7: expected length 36, got %d", len(id))
	}
}

func TestUUIDv7_Uniqueness(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := gen()
		if _, ok := seen[id]; ok {
			t.Fatalf("UUIDv7: duplicate at iteration %d", i)
		}
		seen[id] = struct{}{}
	}
}

// WHAT: UUIDv7 IDs generated in sequence sort in generation order.
// WHY: the task queue breaks priority ties by id, which assumes
// time-sortable identifiers.
func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = gen()
	}
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	for i := range ids {
		if ids[i] != sorted[i] {
			t.Fatalf("ids not time-sorted at %d: %q vs %q", i, ids[i], sorted[i])
		}
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("task_", UUIDv7())
	id := gen()
	if !strings.HasPrefix(id, "task_") {
		t.Fatalf("Prefixed: expected prefix 'task_', got %q", id)
	}
	if len(id) != 5+36 {
		t.Fatalf("Prefixed: expected length 41, got %d", len(id))
	}
}

func TestSequential(t *testing.T) {
	gen := Sequential("t")
	for i, want := range []string{"t1", "t2", "t3"} {
		if got := gen(); got != want {
			t.Fatalf("Sequential call %d = %q, want %q", i+1, got, want)
		}
	}
}

func TestDefault_IsUUID(t *testing.T) {
	id := New()
	if len(id) != 36 {
		t.Fatalf("New: expected length 36, got %d for %q", len(id), id)
	}
}
