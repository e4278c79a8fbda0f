package hunt

import (
	"github.com/hazyhaar/prospect/hunt/internal/store"
)

// Storage types re-exported for API, MCP and CLI consumers.
type (
	Finding           = store.Finding
	FindingFilter     = store.FindingFilter
	FindingStatus     = store.FindingStatus
	Mission           = store.Mission
	PerformanceRecord = store.PerformanceRecord
	Strategy          = store.Strategy
	TacticYield       = store.TacticYield
	FeedbackSummary   = store.FeedbackSummary
)

// Finding feedback states.
const (
	FindingPending  = store.FindingPending
	FindingLiked    = store.FindingLiked
	FindingDisliked = store.FindingDisliked
	FindingArchived = store.FindingArchived
)
