package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const perfCols = `id, mission, tactic, query, found, accepted, rejected,
	success_rate, finalized, created_at`

// OpenCycle inserts the open performance row for a fresh research cycle.
// Workers accumulate counts onto it; FinalizeCycle seals it.
func (s *Store) OpenCycle(ctx context.Context, id, mission, tactic, query string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO tactic_performance (id, mission, tactic, query, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, mission, tactic, query, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("open cycle %s: %w", id, err)
	}
	return nil
}

// AddFound adds n to the open cycle's found counter.
func (s *Store) AddFound(ctx context.Context, cycleID string, n int) error {
	return s.bump(ctx, cycleID, "found", n)
}

// AddAccepted increments the open cycle's accepted counter.
func (s *Store) AddAccepted(ctx context.Context, cycleID string) error {
	return s.bump(ctx, cycleID, "accepted", 1)
}

// AddRejected increments the open cycle's rejected counter.
func (s *Store) AddRejected(ctx context.Context, cycleID string) error {
	return s.bump(ctx, cycleID, "rejected", 1)
}

func (s *Store) bump(ctx context.Context, cycleID, col string, n int) error {
	// col is one of three literals above, never caller input.
	_, err := s.DB.ExecContext(ctx,
		`UPDATE tactic_performance SET `+col+` = `+col+` + ? WHERE id = ? AND finalized = 0`,
		n, cycleID,
	)
	if err != nil {
		return fmt.Errorf("cycle %s: add %s: %w", cycleID, col, err)
	}
	return nil
}

// FinalizeCycle computes the cycle's success rate (accepted/found, zero
// when nothing was found), seals the row, and returns it. Finalizing an
// already-final cycle returns the stored row unchanged.
func (s *Store) FinalizeCycle(ctx context.Context, cycleID string) (*PerformanceRecord, error) {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE tactic_performance
		SET success_rate = CASE WHEN found > 0 THEN CAST(accepted AS REAL) / found ELSE 0 END,
		    finalized = 1
		WHERE id = ? AND finalized = 0`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("finalize cycle %s: %w", cycleID, err)
	}

	row := s.DB.QueryRowContext(ctx,
		`SELECT `+perfCols+` FROM tactic_performance WHERE id = ?`, cycleID)
	rec, err := scanPerf(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("finalize cycle %s: no such cycle", cycleID)
	}
	return rec, err
}

// SuccessRates returns the mean success rate per tactic over the
// mission's finalized cycles. Feeds the engine's weighted draw.
func (s *Store) SuccessRates(ctx context.Context, mission string) (map[string]float64, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT tactic, AVG(success_rate) FROM tactic_performance
		WHERE mission = ? AND finalized = 1
		GROUP BY tactic`, mission)
	if err != nil {
		return nil, fmt.Errorf("success rates: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var tactic string
		var rate float64
		if err := rows.Scan(&tactic, &rate); err != nil {
			return nil, err
		}
		out[tactic] = rate
	}
	return out, rows.Err()
}

// RecentRates returns the success rates of the mission's n most recent
// finalized cycles, newest first. Input to the reflection rules.
func (s *Store) RecentRates(ctx context.Context, mission string, n int) ([]float64, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT success_rate FROM tactic_performance
		WHERE mission = ? AND finalized = 1
		ORDER BY created_at DESC LIMIT ?`, mission, n)
	if err != nil {
		return nil, fmt.Errorf("recent rates: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var r float64
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentPerformance returns the mission's n most recent finalized cycle
// rows, newest first.
func (s *Store) RecentPerformance(ctx context.Context, mission string, n int) ([]*PerformanceRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+perfCols+` FROM tactic_performance
		WHERE mission = ? AND finalized = 1
		ORDER BY created_at DESC LIMIT ?`, mission, n)
	if err != nil {
		return nil, fmt.Errorf("recent performance: %w", err)
	}
	defer rows.Close()

	var out []*PerformanceRecord
	for rows.Next() {
		rec, err := scanPerf(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// TacticYield aggregates one tactic's lifetime performance for a mission.
type TacticYield struct {
	Tactic      string  `json:"tactic"`
	Cycles      int     `json:"cycles"`
	Found       int     `json:"found"`
	Accepted    int     `json:"accepted"`
	Rejected    int     `json:"rejected"`
	MeanSuccess float64 `json:"mean_success"`
}

// TacticYields returns per-tactic aggregates over the mission's
// finalized cycles, best mean success first.
func (s *Store) TacticYields(ctx context.Context, mission string) ([]TacticYield, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT tactic, COUNT(*), SUM(found), SUM(accepted), SUM(rejected), AVG(success_rate)
		FROM tactic_performance
		WHERE mission = ? AND finalized = 1
		GROUP BY tactic
		ORDER BY AVG(success_rate) DESC`, mission)
	if err != nil {
		return nil, fmt.Errorf("tactic yields: %w", err)
	}
	defer rows.Close()

	var out []TacticYield
	for rows.Next() {
		var y TacticYield
		if err := rows.Scan(&y.Tactic, &y.Cycles, &y.Found, &y.Accepted, &y.Rejected, &y.MeanSuccess); err != nil {
			return nil, err
		}
		out = append(out, y)
	}
	return out, rows.Err()
}

func scanPerf(row scanner) (*PerformanceRecord, error) {
	var rec PerformanceRecord
	var finalized int
	err := row.Scan(&rec.ID, &rec.Mission, &rec.Tactic, &rec.Query,
		&rec.Found, &rec.Accepted, &rec.Rejected, &rec.SuccessRate, &finalized, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.Finalized = finalized != 0
	return &rec, nil
}
