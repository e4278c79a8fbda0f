package hunt

import (
	"context"
)

// Report aggregates a mission's performance history for the ops
// surfaces and the Strategist: per-tactic yields, rejection share,
// findings per language, and the best-scored findings so far.
type Report struct {
	Mission       string           `json:"mission"`
	Tactics       []TacticYield    `json:"tactics"`
	TotalFound    int              `json:"total_found"`
	TotalAccepted int              `json:"total_accepted"`
	TotalRejected int              `json:"total_rejected"`
	RejectedShare float64          `json:"rejected_share"`
	Languages     map[string]int   `json:"languages"`
	TopFindings   []*Finding       `json:"top_findings"`
	Feedback      *FeedbackSummary `json:"feedback"`
}

// Report builds the analytics report for one mission.
func (s *Service) Report(ctx context.Context, mission string) (*Report, error) {
	if _, err := s.store.GetMission(ctx, mission); err != nil {
		return nil, err
	}

	yields, err := s.store.TacticYields(ctx, mission)
	if err != nil {
		return nil, err
	}
	languages, err := s.store.LanguageCounts(ctx, mission)
	if err != nil {
		return nil, err
	}
	top, err := s.store.TopFindings(ctx, mission, 10)
	if err != nil {
		return nil, err
	}
	feedback, err := s.store.GetFeedbackSummary(ctx, mission)
	if err != nil {
		return nil, err
	}

	r := &Report{
		Mission:     mission,
		Tactics:     yields,
		Languages:   languages,
		TopFindings: top,
		Feedback:    feedback,
	}
	for _, y := range yields {
		r.TotalFound += y.Found
		r.TotalAccepted += y.Accepted
		r.TotalRejected += y.Rejected
	}
	if r.TotalFound > 0 {
		r.RejectedShare = float64(r.TotalRejected) / float64(r.TotalFound)
	}
	return r, nil
}
