package hunt

import (
	"context"
	"fmt"
	"strings"

	"github.com/hazyhaar/prospect/brain"
	"github.com/hazyhaar/prospect/hunt/internal/github"
)

// InitMission bootstraps a mission's strategy from its seed
// repositories: their documentation is fetched and handed to the
// Strategist as context for an initial proposal. Without a usable
// proposal the mission simply starts from catalog defaults — that is
// a degraded outcome, not an error.
func (s *Service) InitMission(ctx context.Context, name string) error {
	m, err := s.store.GetMission(ctx, name)
	if err != nil {
		return err
	}
	if len(m.SeedRepos) == 0 {
		return fmt.Errorf("%w: mission %s has no seed repositories", ErrInvalidInput, name)
	}

	var b strings.Builder
	for _, seed := range m.SeedRepos {
		owner, repo, ok := strings.Cut(strings.TrimSpace(seed), "/")
		if !ok || owner == "" || repo == "" {
			s.logger.Warn("hunt: bad seed repository, expected owner/name", "seed", seed)
			continue
		}
		doc, err := s.searcher.Readme(ctx, github.Repo{
			Owner: owner, Name: repo, FullName: owner + "/" + repo,
		})
		if err != nil {
			s.logger.Warn("hunt: seed documentation unavailable", "seed", seed, "error", err)
			continue
		}
		fmt.Fprintf(&b, "--- %s ---\n%s\n", seed, truncateDoc(doc, 2000))
	}
	if b.Len() == 0 {
		return fmt.Errorf("hunt: no seed documentation retrieved for %s", name)
	}

	proposal, err := s.brain.ProposeStrategy(ctx, brain.StrategyRequest{
		Goal:      m.Goal,
		Stats:     "no cycles recorded yet (mission initialization)",
		Feedback:  "no feedback yet",
		Analytics: "seed repositories the user considers exemplary:\n" + b.String(),
	})
	if err != nil {
		s.logger.Warn("hunt: seed strategy unavailable, starting from catalog defaults",
			"mission", name, "error", err)
		return nil
	}
	if err := s.ApplyStrategy(ctx, name, proposal, "seed"); err != nil {
		s.logger.Warn("hunt: seed strategy rejected, starting from catalog defaults",
			"mission", name, "error", err)
		return nil
	}
	s.logger.Info("hunt: mission initialized from seeds", "mission", name)
	return nil
}

func truncateDoc(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
