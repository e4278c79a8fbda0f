package workers

import (
	"context"
	"fmt"

	"github.com/hazyhaar/prospect/taskq"
)

// handleFetch retrieves a repository's documentation and, only when
// content came back, hands it to the analyze stage. A repository with
// no README simply completes: there is nothing to analyze, and that is
// not an error.
func (m *Manager) handleFetch(ctx context.Context, p FetchPayload) error {
	doc, err := m.search.Readme(ctx, p.Repo)
	if err != nil {
		return fmt.Errorf("readme %s: %w", p.Repo.FullName, err)
	}

	if doc == "" {
		m.logger.Debug("fetcher: no documentation", "repo", p.Repo.FullName)
		return nil
	}

	ap := AnalyzePayload{
		Mission: p.Mission,
		Tactic:  p.Tactic,
		Repo:    p.Repo,
		Doc:     doc,
		CycleID: p.CycleID,
	}
	if _, err := m.queue.Enqueue(ctx, taskq.TypeAnalyze, ap, PriorityAnalyze); err != nil {
		return fmt.Errorf("enqueue analyze for %s: %w", p.Repo.FullName, err)
	}
	m.logger.Debug("fetcher: documentation retrieved", "repo", p.Repo.FullName, "bytes", len(doc))
	return nil
}
