package hunt

import (
	"errors"

	"github.com/hazyhaar/prospect/hunt/internal/store"
	"github.com/hazyhaar/prospect/hunt/internal/workers"
)

// ErrInvalidInput is returned when a request fails validation.
var ErrInvalidInput = errors.New("hunt: invalid input")

// ErrStrategyRejected is returned when a proposed strategy fails
// validation and is not applied.
var ErrStrategyRejected = errors.New("hunt: strategy rejected")

// Sentinels surfaced from the internal packages, re-exported so callers
// only ever import hunt.
var (
	// ErrDuplicateFinding signals an idempotent no-op save: the URL is
	// already stored. Distinct from both success and failure.
	ErrDuplicateFinding = store.ErrDuplicateFinding

	// ErrMissionNotFound is returned when a mission name resolves to
	// nothing.
	ErrMissionNotFound = store.ErrMissionNotFound

	// ErrMalformedPayload marks a task payload that can never be
	// decoded; such tasks fail without retries.
	ErrMalformedPayload = workers.ErrMalformedPayload
)
