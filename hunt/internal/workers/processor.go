package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/prospect/brain"
	"github.com/hazyhaar/prospect/hunt/internal/store"
	"github.com/hazyhaar/prospect/idgen"
	"github.com/hazyhaar/prospect/vectorize"
)

// handleAnalyze embeds a candidate, persists it at score NULL, then
// routes it: local similarity against the mission goal decides whether
// the Analyst gets a say. A duplicate URL completes without touching
// the cycle counters — the repository was already accounted for.
func (m *Manager) handleAnalyze(ctx context.Context, p AnalyzePayload) error {
	text := strings.TrimSpace(p.Repo.FullName + " " + p.Repo.Description)
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed %s: %w", p.Repo.FullName, err)
	}

	finding := &store.Finding{
		ID:          idgen.Prefixed("fnd_", idgen.Default)(),
		Title:       p.Repo.FullName,
		URL:         p.Repo.HTMLURL,
		Description: p.Repo.Description,
		Stars:       p.Repo.Stars,
		Language:    p.Repo.Language,
		Embedding:   vectorize.SerializeVector(vec),
		Mission:     p.Mission,
		Tactic:      p.Tactic,
	}
	if err := m.store.SaveFinding(ctx, finding); err != nil {
		if errors.Is(err, store.ErrDuplicateFinding) {
			m.logger.Debug("processor: duplicate finding", "url", p.Repo.HTMLURL)
			return nil
		}
		return err
	}

	local, err := m.localSimilarity(ctx, p.Mission, vec)
	if err != nil {
		return err
	}

	threshold := m.thresholds.Get(p.Mission)
	if local < threshold {
		if err := m.store.ScoreFinding(ctx, finding.ID, "", local); err != nil {
			return err
		}
		if p.CycleID != "" {
			if err := m.store.AddRejected(ctx, p.CycleID); err != nil {
				return err
			}
		}
		m.logger.Debug("processor: rejected", "repo", p.Repo.FullName, "score", local, "threshold", threshold)
		return nil
	}

	// The local screen passed; the Analyst refines the score. A brain
	// failure degrades to the local score with no summary — the finding
	// still counts as accepted.
	final := local
	summary := ""
	goal := m.missionGoal(ctx, p.Mission)
	analysis, err := m.analyst.Summarize(ctx, goal, brain.Candidate{
		Title:       p.Repo.FullName,
		Description: p.Repo.Description,
		Doc:         p.Doc,
	})
	if err != nil {
		m.logger.Warn("processor: analyst unavailable, keeping local score",
			"repo", p.Repo.FullName, "error", err)
	} else {
		final = (local + analysis.Score) / 2
		summary = analysis.Summary
	}

	if err := m.store.ScoreFinding(ctx, finding.ID, summary, final); err != nil {
		return err
	}
	if p.CycleID != "" {
		if err := m.store.AddAccepted(ctx, p.CycleID); err != nil {
			return err
		}
	}
	m.logger.Info("processor: accepted",
		"repo", p.Repo.FullName, "score", final, "stars", p.Repo.Stars)
	return nil
}

// localSimilarity scores a candidate vector against the mission's goal
// vector, mapped from cosine [-1,1] into [0,1]. A zero vector on either
// side means no embedding signal, which scores 0 rather than the 0.5 a
// raw cosine of 0 would map to.
func (m *Manager) localSimilarity(ctx context.Context, mission string, vec []float32) (float64, error) {
	goalVec, err := m.goalVector(ctx, mission)
	if err != nil {
		return 0, err
	}
	if vectorize.IsZeroVector(vec) || vectorize.IsZeroVector(goalVec) {
		return 0, nil
	}
	cos := vectorize.CosineSimilarity(vec, goalVec)
	return (cos + 1) / 2, nil
}

// goalVector embeds the mission goal once and caches it. The cache is
// invalidated only when the mission's goal text changes.
func (m *Manager) goalVector(ctx context.Context, mission string) ([]float32, error) {
	ms, err := m.store.GetMission(ctx, mission)
	if err != nil {
		return nil, fmt.Errorf("goal vector: %w", err)
	}

	m.goalMu.Lock()
	cached, ok := m.goalVecs[mission]
	fresh := ok && m.goalTexts[mission] == ms.Goal
	m.goalMu.Unlock()
	if fresh {
		return cached, nil
	}

	vec, err := m.embedder.Embed(ctx, ms.Goal)
	if err != nil {
		return nil, fmt.Errorf("embed goal for %s: %w", mission, err)
	}

	m.goalMu.Lock()
	m.goalVecs[mission] = vec
	m.goalTexts[mission] = ms.Goal
	m.goalMu.Unlock()
	return vec, nil
}

// missionGoal returns the mission's goal text, empty on lookup failure.
func (m *Manager) missionGoal(ctx context.Context, mission string) string {
	ms, err := m.store.GetMission(ctx, mission)
	if err != nil {
		return ""
	}
	return ms.Goal
}
