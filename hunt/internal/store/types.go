package store

// FindingStatus is the feedback state of a finding. The pipeline only
// ever creates findings as pending; the other states are set through
// the external feedback surfaces.
type FindingStatus string

const (
	FindingPending  FindingStatus = "pending"
	FindingLiked    FindingStatus = "liked"
	FindingDisliked FindingStatus = "disliked"
	FindingArchived FindingStatus = "archived"
)

// Valid reports whether s is one of the four finding states.
func (s FindingStatus) Valid() bool {
	switch s {
	case FindingPending, FindingLiked, FindingDisliked, FindingArchived:
		return true
	}
	return false
}

// Finding is a candidate repository. Summary and Score stay NULL until
// the processor scores it.
type Finding struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	URL         string        `json:"url"`
	Description string        `json:"description"`
	Stars       int           `json:"stars"`
	Language    string        `json:"language"`
	Embedding   []byte        `json:"-"`
	Summary     *string       `json:"summary,omitempty"`
	Score       *float64      `json:"score,omitempty"`
	Status      FindingStatus `json:"status"`
	Mission     string        `json:"mission"`
	Tactic      string        `json:"tactic"`
	CreatedAt   int64         `json:"created_at"`
}

// Mission is a named research goal.
type Mission struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Goal          string   `json:"goal"`
	Languages     []string `json:"languages"`
	MinStars      int      `json:"min_stars"`
	SeedRepos     []string `json:"seed_repos"`
	Notes         string   `json:"notes"`
	StrategyJSON  string   `json:"strategy,omitempty"`
	TacticWeights string   `json:"tactic_weights,omitempty"`
	Enabled       bool     `json:"enabled"`
	CreatedAt     int64    `json:"created_at"`
	UpdatedAt     int64    `json:"updated_at"`
}

// PerformanceRecord is one research cycle's yield.
type PerformanceRecord struct {
	ID          string  `json:"id"`
	Mission     string  `json:"mission"`
	Tactic      string  `json:"tactic"`
	Query       string  `json:"query"`
	Found       int     `json:"found"`
	Accepted    int     `json:"accepted"`
	Rejected    int     `json:"rejected"`
	SuccessRate float64 `json:"success_rate"`
	Finalized   bool    `json:"finalized"`
	CreatedAt   int64   `json:"created_at"`
}

// Strategy is one row of a mission's strategy history.
type Strategy struct {
	ID        string `json:"id"`
	Mission   string `json:"mission"`
	Config    string `json:"config"`
	Source    string `json:"source"` // "ai", "seed", or "manual"
	Active    bool   `json:"active"`
	CreatedAt int64  `json:"created_at"`
}
