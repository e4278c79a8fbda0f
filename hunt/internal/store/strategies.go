package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/prospect/dbopen"
)

// ActiveStrategy returns the mission's active strategy row, or nil, nil
// when none has been applied yet.
func (s *Store) ActiveStrategy(ctx context.Context, mission string) (*Strategy, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, mission, config, source, active, created_at
		FROM strategies WHERE mission = ? AND active = 1
		ORDER BY created_at DESC LIMIT 1`, mission)
	st, err := scanStrategy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return st, err
}

// ApplyStrategy installs st as the mission's active strategy: the
// current active row is deactivated (kept as the rollback target), the
// new row is inserted active, and the mission's learned snapshot and
// weight overrides are updated — all in one transaction, so a crash
// can never leave the strategy history and the mission disagreeing.
func (s *Store) ApplyStrategy(ctx context.Context, st *Strategy, weightsJSON string) error {
	if st.CreatedAt == 0 {
		st.CreatedAt = time.Now().UnixMilli()
	}
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE strategies SET active = 0 WHERE mission = ? AND active = 1`, st.Mission); err != nil {
			return fmt.Errorf("apply strategy: deactivate: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO strategies (id, mission, config, source, active, created_at)
			VALUES (?, ?, ?, ?, 1, ?)`,
			st.ID, st.Mission, st.Config, st.Source, st.CreatedAt); err != nil {
			return fmt.Errorf("apply strategy: %w", err)
		}
		return setMissionStrategy(ctx, tx, st.Mission, st.Config, weightsJSON)
	})
}

// RollbackStrategy deactivates the mission's active strategy,
// reactivates the most recent prior row, and restores the mission's
// snapshot and weight overrides from it, in one transaction. Returns
// the reactivated strategy, or nil, nil when there is no history to
// fall back to.
func (s *Store) RollbackStrategy(ctx context.Context, mission string) (*Strategy, error) {
	var prior *Strategy
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		prior = nil

		var activeID string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM strategies WHERE mission = ? AND active = 1
			ORDER BY created_at DESC LIMIT 1`, mission).Scan(&activeID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("rollback strategy: %w", err)
		}

		row := tx.QueryRowContext(ctx, `
			SELECT id, mission, config, source, active, created_at
			FROM strategies WHERE mission = ? AND id != ?
			ORDER BY created_at DESC LIMIT 1`, mission, activeID)
		p, err := scanStrategy(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("rollback strategy: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE strategies SET active = 0 WHERE id = ?`, activeID); err != nil {
			return fmt.Errorf("rollback strategy: deactivate: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE strategies SET active = 1 WHERE id = ?`, p.ID); err != nil {
			return fmt.Errorf("rollback strategy: reactivate: %w", err)
		}

		weightsJSON, err := weightsFromConfig(p.Config)
		if err != nil {
			return fmt.Errorf("rollback strategy: %w", err)
		}
		if err := setMissionStrategy(ctx, tx, mission, p.Config, weightsJSON); err != nil {
			return err
		}

		p.Active = true
		prior = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prior, nil
}

// setMissionStrategy writes the learned snapshot onto the mission row
// inside the caller's transaction.
func setMissionStrategy(ctx context.Context, tx *sql.Tx, name, strategyJSON, weightsJSON string) error {
	if strategyJSON == "" {
		strategyJSON = "{}"
	}
	if weightsJSON == "" || weightsJSON == "null" {
		weightsJSON = "{}"
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE missions SET strategy = ?, tactic_weights = ?, updated_at = ? WHERE name = ?`,
		strategyJSON, weightsJSON, time.Now().UnixMilli(), name)
	if err != nil {
		return fmt.Errorf("set mission strategy %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrMissionNotFound, name)
	}
	return nil
}

// weightsFromConfig extracts the tactic weight overrides from a stored
// strategy config.
func weightsFromConfig(config string) (string, error) {
	var c struct {
		TacticWeights map[string]float64 `json:"tactic_weights"`
	}
	if err := json.Unmarshal([]byte(config), &c); err != nil {
		return "", fmt.Errorf("decode config: %w", err)
	}
	if len(c.TacticWeights) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(c.TacticWeights)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func scanStrategy(row scanner) (*Strategy, error) {
	var st Strategy
	var active int
	err := row.Scan(&st.ID, &st.Mission, &st.Config, &st.Source, &active, &st.CreatedAt)
	if err != nil {
		return nil, err
	}
	st.Active = active != 0
	return &st, nil
}
