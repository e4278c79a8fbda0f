package tactics

import (
	"math/rand/v2"
	"sync"
	"time"
)

const (
	historyCap    = 10
	rotateExclude = 3

	// Weight bounds. UpdateWeight clamps to [0.3, 2.0]; externally
	// imposed weights (strategy proposals) may go as low as 0.1.
	weightFloor    = 0.3
	weightCeil     = 2.0
	setWeightFloor = 0.1
)

// Options configures an Engine. The zero value seeds the standard
// catalog with a randomly seeded source.
type Options struct {
	Pool []Tactic
	Rand *rand.Rand
	Now  func() time.Time
}

func (o Options) defaults() Options {
	if o.Pool == nil {
		o.Pool = Catalog()
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Engine owns the tactic pool, per-mission selection history, and the
// weighted draw. Safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	pool    []Tactic
	index   map[string]int
	history map[string][]string
	rng     *rand.Rand
	now     func() time.Time
}

// NewEngine builds an engine over the given pool.
func NewEngine(opts Options) *Engine {
	opts = opts.defaults()
	e := &Engine{
		pool:    opts.Pool,
		index:   make(map[string]int, len(opts.Pool)),
		history: make(map[string][]string),
		rng:     opts.Rand,
		now:     opts.Now,
	}
	for i, t := range opts.Pool {
		e.index[t.Name] = i
	}
	return e
}

// Select draws a tactic for the mission. Each tactic's effective weight
// is its base weight scaled by observed success (0.3 + 0.7*rate) when
// performance data exists; the most recent selection for this mission is
// halved so consecutive draws vary. The draw is recorded in the
// mission's history.
func (e *Engine) Select(mission string, perf map[string]float64) Tactic {
	e.mu.Lock()
	defer e.mu.Unlock()

	var last string
	if h := e.history[mission]; len(h) > 0 {
		last = h[len(h)-1]
	}

	weights := make([]float64, len(e.pool))
	var total float64
	for i, t := range e.pool {
		w := t.Weight
		if rate, ok := perf[t.Name]; ok {
			w *= 0.3 + 0.7*rate
		}
		if t.Name == last {
			w *= 0.5
		}
		weights[i] = w
		total += w
	}

	idx := len(e.pool) - 1
	if total > 0 {
		r := e.rng.Float64() * total
		for i, w := range weights {
			r -= w
			if r < 0 {
				idx = i
				break
			}
		}
	} else {
		idx = e.rng.IntN(len(e.pool))
	}

	chosen := e.pool[idx]
	e.record(mission, chosen.Name)
	return chosen
}

// Rotate force-selects a tactic outside the mission's last three
// choices, falling back to the full pool when everything is excluded.
// Used when recent success collapses.
func (e *Engine) Rotate(mission string) Tactic {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := e.history[mission]
	exclude := make(map[string]bool, rotateExclude)
	for i := max(0, len(h)-rotateExclude); i < len(h); i++ {
		exclude[h[i]] = true
	}

	candidates := make([]Tactic, 0, len(e.pool))
	for _, t := range e.pool {
		if !exclude[t.Name] {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		candidates = e.pool
	}

	chosen := candidates[e.rng.IntN(len(candidates))]
	e.record(mission, chosen.Name)
	return chosen
}

// UpdateWeight recomputes a tactic's base weight from the latest cycle's
// success rate: clamp(0.5 + 1.5*rate, 0.3, 2.0). Not a moving average —
// the weight tracks only the most recent observation and can swing fully
// between cycles. Returns the new weight, or false for an unknown tactic.
func (e *Engine) UpdateWeight(name string, successRate float64) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i, ok := e.index[name]
	if !ok {
		return 0, false
	}
	w := min(weightCeil, max(weightFloor, 0.5+1.5*successRate))
	e.pool[i].Weight = w
	return w, true
}

// SetWeight imposes a weight directly, as strategy proposals do,
// clamped to [0.1, 2.0]. Returns false for an unknown tactic.
func (e *Engine) SetWeight(name string, w float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	i, ok := e.index[name]
	if !ok {
		return false
	}
	e.pool[i].Weight = min(weightCeil, max(setWeightFloor, w))
	return true
}

// Get returns the tactic by name.
func (e *Engine) Get(name string) (Tactic, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i, ok := e.index[name]
	if !ok {
		return Tactic{}, false
	}
	return e.pool[i], true
}

// Weights snapshots the current base weights.
func (e *Engine) Weights() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]float64, len(e.pool))
	for _, t := range e.pool {
		out[t.Name] = t.Weight
	}
	return out
}

// History returns the mission's recent selections, oldest first.
func (e *Engine) History(mission string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := e.history[mission]
	out := make([]string, len(h))
	copy(out, h)
	return out
}

func (e *Engine) record(mission, name string) {
	h := append(e.history[mission], name)
	if len(h) > historyCap {
		h = h[len(h)-historyCap:]
	}
	e.history[mission] = h
}
