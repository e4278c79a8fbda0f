package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const missionCols = `id, name, goal, languages, min_stars, seed_repos, notes,
	strategy, tactic_weights, enabled, created_at, updated_at`

// UpsertMission inserts a mission or, when the name exists, updates its
// goal, languages, stars floor, seed repos and notes. The learned
// strategy and weights survive a re-seed from the missions file.
func (s *Store) UpsertMission(ctx context.Context, m *Mission) error {
	now := time.Now().UnixMilli()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	langs, err := json.Marshal(orEmpty(m.Languages))
	if err != nil {
		return err
	}
	seeds, err := json.Marshal(orEmpty(m.SeedRepos))
	if err != nil {
		return err
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO missions (id, name, goal, languages, min_stars, seed_repos, notes, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			goal = excluded.goal,
			languages = excluded.languages,
			min_stars = excluded.min_stars,
			seed_repos = excluded.seed_repos,
			notes = excluded.notes,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		m.ID, m.Name, m.Goal, string(langs), m.MinStars, string(seeds), m.Notes,
		boolInt(m.Enabled), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert mission %s: %w", m.Name, err)
	}
	return nil
}

// GetMission returns a mission by name.
func (s *Store) GetMission(ctx context.Context, name string) (*Mission, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+missionCols+` FROM missions WHERE name = ?`, name)
	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrMissionNotFound, name)
	}
	return m, err
}

// ListMissions returns enabled missions in creation order, the order the
// control loop round-robins through.
func (s *Store) ListMissions(ctx context.Context, includeDisabled bool) ([]*Mission, error) {
	q := `SELECT ` + missionCols + ` FROM missions`
	if !includeDisabled {
		q += ` WHERE enabled = 1`
	}
	q += ` ORDER BY created_at ASC`

	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	defer rows.Close()

	var out []*Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMission(row scanner) (*Mission, error) {
	var m Mission
	var langs, seeds string
	var enabled int
	err := row.Scan(&m.ID, &m.Name, &m.Goal, &langs, &m.MinStars, &seeds, &m.Notes,
		&m.StrategyJSON, &m.TacticWeights, &enabled, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(langs), &m.Languages); err != nil {
		return nil, fmt.Errorf("mission %s: decode languages: %w", m.Name, err)
	}
	if err := json.Unmarshal([]byte(seeds), &m.SeedRepos); err != nil {
		return nil, fmt.Errorf("mission %s: decode seed repos: %w", m.Name, err)
	}
	return &m, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
