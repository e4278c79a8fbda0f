package tactics

import "sync"

// Acceptance-threshold bounds.
const (
	DefaultThreshold = 0.25
	thresholdFloor   = 0.1
	thresholdCeil    = 0.6
)

// Adjustment is the action Adjust decided on.
type Adjustment int

const (
	AdjustNone Adjustment = iota
	// AdjustRotate: success collapsed; the caller should force a tactic
	// rotation instead of touching the threshold.
	AdjustRotate
	AdjustLowered
	AdjustRaised
)

func (a Adjustment) String() string {
	switch a {
	case AdjustRotate:
		return "rotate"
	case AdjustLowered:
		return "lowered"
	case AdjustRaised:
		return "raised"
	default:
		return "none"
	}
}

// Thresholds maintains the per-mission acceptance threshold, nudged
// after each cycle by the rolling success rate. Safe for concurrent use.
type Thresholds struct {
	mu        sync.Mutex
	byMission map[string]float64
}

func NewThresholds() *Thresholds {
	return &Thresholds{byMission: make(map[string]float64)}
}

// Get returns the mission's threshold, defaulting to DefaultThreshold.
func (t *Thresholds) Get(mission string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if v, ok := t.byMission[mission]; ok {
		return v
	}
	return DefaultThreshold
}

// Set imposes a threshold directly, clamped to [0.1, 0.6].
func (t *Thresholds) Set(mission string, v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byMission[mission] = min(thresholdCeil, max(thresholdFloor, v))
}

// Adjust inspects the average success rate over the most recent cycles
// (callers pass up to the last three) and nudges the threshold:
// under 10% asks for a tactic rotation, 10-20% lowers the threshold by
// 15% (floor 0.1), over 60% raises it by 15% (ceiling 0.6). An empty
// rate list is a no-op.
func (t *Thresholds) Adjust(mission string, rates []float64) Adjustment {
	if len(rates) == 0 {
		return AdjustNone
	}
	var sum float64
	for _, r := range rates {
		sum += r
	}
	avg := sum / float64(len(rates))

	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.byMission[mission]
	if !ok {
		cur = DefaultThreshold
	}

	switch {
	case avg < 0.10:
		return AdjustRotate
	case avg < 0.20:
		t.byMission[mission] = max(thresholdFloor, cur*0.85)
		return AdjustLowered
	case avg > 0.60:
		t.byMission[mission] = min(thresholdCeil, cur*1.15)
		return AdjustRaised
	default:
		return AdjustNone
	}
}
