// Package idgen provides pluggable ID generation.
//
// Constructors across the project accept a Generator, making the ID strategy
// a startup-time decision rather than a compile-time one. Tests substitute a
// deterministic Generator to keep fixtures stable.
package idgen

import (
	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator producing RFC 9562 UUID v7 strings.
// Time-sortable, so queue and finding IDs order by creation when compared
// lexically.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
// Used for type-scoped identifiers ("task_", "fnd_", "msn_", "cyc_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequential returns a Generator producing "<prefix>1", "<prefix>2", …
// Intended for tests that need predictable IDs. Not safe for concurrent use.
func Sequential(prefix string) Generator {
	n := 0
	return func() string {
		n++
		return prefix + itoa(n)
	}
}

// Default is the project default: UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
