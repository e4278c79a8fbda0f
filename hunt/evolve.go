package hunt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hazyhaar/prospect/brain"
	"github.com/hazyhaar/prospect/idgen"
)

// Evolve asks the Strategist for a replacement query strategy and, when
// the proposal survives validation, applies it. Any failure leaves the
// prior strategy active.
func (s *Service) Evolve(ctx context.Context, mission string) error {
	m, err := s.store.GetMission(ctx, mission)
	if err != nil {
		return err
	}

	stats, err := s.statsSummary(ctx, mission)
	if err != nil {
		return err
	}
	feedback, err := s.feedbackSummary(ctx, mission)
	if err != nil {
		return err
	}
	analytics, err := s.analyticsSummary(ctx, mission)
	if err != nil {
		return err
	}

	proposal, err := s.brain.ProposeStrategy(ctx, brain.StrategyRequest{
		Goal:      m.Goal,
		Stats:     stats,
		Feedback:  feedback,
		Analytics: analytics,
	})
	if err != nil {
		return fmt.Errorf("propose strategy: %w", err)
	}

	if err := s.ApplyStrategy(ctx, mission, proposal, "ai"); err != nil {
		return err
	}
	s.logger.Info("hunt: strategy evolved",
		"mission", mission, "keywords", strings.Join(proposal.Keywords, " "))
	return nil
}

// ApplyStrategy validates a proposal and installs it: the prior active
// strategy row is kept deactivated as the rollback target, the mission's
// learned snapshot is updated in the same transaction, and tactic
// weight overrides take effect.
func (s *Service) ApplyStrategy(ctx context.Context, mission string, p *brain.StrategyProposal, source string) error {
	if err := validateProposal(p, s.engine.Weights()); err != nil {
		return err
	}

	config, err := json.Marshal(p)
	if err != nil {
		return err
	}
	weights, err := json.Marshal(p.TacticWeights)
	if err != nil {
		return err
	}

	if err := s.store.ApplyStrategy(ctx, &Strategy{
		ID:      idgen.Prefixed("strat_", s.newID)(),
		Mission: mission,
		Config:  string(config),
		Source:  source,
	}, string(weights)); err != nil {
		return err
	}

	for name, w := range p.TacticWeights {
		s.engine.SetWeight(name, w)
	}
	return nil
}

// RollbackStrategy reactivates the mission's previous strategy row.
// The store restores the mission snapshot transactionally; only the
// in-memory engine weights are applied here. Returns the restored
// strategy, or nil when there is no history to fall back to.
func (s *Service) RollbackStrategy(ctx context.Context, mission string) (*Strategy, error) {
	prior, err := s.store.RollbackStrategy(ctx, mission)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		return nil, nil
	}

	var p brain.StrategyProposal
	if err := json.Unmarshal([]byte(prior.Config), &p); err != nil {
		return nil, fmt.Errorf("hunt: decode rolled-back strategy: %w", err)
	}
	for name, w := range p.TacticWeights {
		s.engine.SetWeight(name, w)
	}
	s.logger.Info("hunt: strategy rolled back", "mission", mission, "strategy", prior.ID)
	return prior, nil
}

// restoreWeights re-applies each mission's stored tactic weight
// overrides. The engine starts every process from catalog defaults;
// the mission record is the durable copy, so learned weights would
// otherwise silently reset on restart.
func (s *Service) restoreWeights(ctx context.Context) error {
	missions, err := s.store.ListMissions(ctx, true)
	if err != nil {
		return err
	}
	for _, m := range missions {
		if m.TacticWeights == "" || m.TacticWeights == "{}" {
			continue
		}
		var weights map[string]float64
		if err := json.Unmarshal([]byte(m.TacticWeights), &weights); err != nil {
			s.logger.Warn("hunt: bad stored tactic weights",
				"mission", m.Name, "error", err)
			continue
		}
		for name, w := range weights {
			s.engine.SetWeight(name, w)
		}
	}
	return nil
}

// validateProposal rejects strategies that would break the engine:
// no keywords, unknown tactic names, or weights outside [0.1, 2.0].
func validateProposal(p *brain.StrategyProposal, known map[string]float64) error {
	if p == nil {
		return fmt.Errorf("%w: nil proposal", ErrStrategyRejected)
	}
	if len(p.Keywords) == 0 {
		return fmt.Errorf("%w: no keywords", ErrStrategyRejected)
	}
	for _, kw := range p.Keywords {
		if strings.TrimSpace(kw) == "" {
			return fmt.Errorf("%w: blank keyword", ErrStrategyRejected)
		}
	}
	for name, w := range p.TacticWeights {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("%w: unknown tactic %q", ErrStrategyRejected, name)
		}
		if w < 0.1 || w > 2.0 {
			return fmt.Errorf("%w: weight %.2f for %q outside [0.1, 2.0]", ErrStrategyRejected, w, name)
		}
	}
	return nil
}

// --- Strategist inputs ---

// statsSummary renders the mission's recent cycle rows as prompt text.
func (s *Service) statsSummary(ctx context.Context, mission string) (string, error) {
	recent, err := s.store.RecentPerformance(ctx, mission, 10)
	if err != nil {
		return "", err
	}
	if len(recent) == 0 {
		return "no cycles recorded yet", nil
	}
	var b strings.Builder
	for _, r := range recent {
		fmt.Fprintf(&b, "tactic=%s query=%q found=%d accepted=%d rejected=%d success=%.2f\n",
			r.Tactic, r.Query, r.Found, r.Accepted, r.Rejected, r.SuccessRate)
	}
	return b.String(), nil
}

func (s *Service) feedbackSummary(ctx context.Context, mission string) (string, error) {
	sum, err := s.store.GetFeedbackSummary(ctx, mission)
	if err != nil {
		return "", err
	}
	if sum.Liked == 0 && sum.Disliked == 0 {
		return "no feedback yet", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "liked=%d disliked=%d", sum.Liked, sum.Disliked)
	for lang, n := range sum.LikedLanguages {
		fmt.Fprintf(&b, " liked_%s=%d", lang, n)
	}
	return b.String(), nil
}

func (s *Service) analyticsSummary(ctx context.Context, mission string) (string, error) {
	report, err := s.Report(ctx, mission)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, y := range report.Tactics {
		fmt.Fprintf(&b, "tactic=%s cycles=%d found=%d accepted=%d mean_success=%.2f\n",
			y.Tactic, y.Cycles, y.Found, y.Accepted, y.MeanSuccess)
	}
	for lang, n := range report.Languages {
		fmt.Fprintf(&b, "language_%s=%d\n", lang, n)
	}
	return b.String(), nil
}
