package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const findingCols = `id, title, url, description, stars, language, embedding,
	summary, score, status, mission, tactic, created_at`

// SaveFinding inserts a finding at score NULL. A URL that already exists
// returns ErrDuplicateFinding and leaves the stored row untouched, making
// the call idempotent on URL.
func (s *Store) SaveFinding(ctx context.Context, f *Finding) error {
	if f.CreatedAt == 0 {
		f.CreatedAt = time.Now().UnixMilli()
	}
	if f.Status == "" {
		f.Status = FindingPending
	}

	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO findings (id, title, url, description, stars, language, embedding, status, mission, tactic, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING`,
		f.ID, f.Title, f.URL, f.Description, f.Stars, f.Language, f.Embedding,
		string(f.Status), f.Mission, f.Tactic, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save finding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateFinding, f.URL)
	}
	return nil
}

// ScoreFinding records the processor's verdict: the final score and an
// optional summary. An empty summary keeps the column NULL.
func (s *Store) ScoreFinding(ctx context.Context, id, summary string, score float64) error {
	var sum any
	if summary != "" {
		sum = summary
	}
	_, err := s.DB.ExecContext(ctx,
		`UPDATE findings SET summary = ?, score = ? WHERE id = ?`,
		sum, score, id,
	)
	if err != nil {
		return fmt.Errorf("score finding %s: %w", id, err)
	}
	return nil
}

// SetFindingStatus flips a finding's feedback state. Unknown IDs are
// reported via sql.ErrNoRows.
func (s *Store) SetFindingStatus(ctx context.Context, id string, status FindingStatus) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE findings SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("set finding status %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetFinding returns a finding by id, or nil, nil when absent.
func (s *Store) GetFinding(ctx context.Context, id string) (*Finding, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+findingCols+` FROM findings WHERE id = ?`, id)
	f, err := scanFinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

// FindingFilter narrows ListFindings.
type FindingFilter struct {
	Mission string
	Status  FindingStatus
	Limit   int
}

// ListFindings returns findings newest first, optionally filtered by
// mission and status.
func (s *Store) ListFindings(ctx context.Context, filter FindingFilter) ([]*Finding, error) {
	q := `SELECT ` + findingCols + ` FROM findings WHERE 1=1`
	var args []any
	if filter.Mission != "" {
		q += ` AND mission = ?`
		args = append(args, filter.Mission)
	}
	if filter.Status != "" {
		q += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	args = append(args, filter.Limit)

	return s.queryFindings(ctx, q, args...)
}

// TopFindings returns a mission's highest-scored findings.
func (s *Store) TopFindings(ctx context.Context, mission string, limit int) ([]*Finding, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryFindings(ctx, `
		SELECT `+findingCols+` FROM findings
		WHERE mission = ? AND score IS NOT NULL
		ORDER BY score DESC LIMIT ?`, mission, limit)
}

// SearchFindings runs an FTS5 match over title, description and summary.
func (s *Store) SearchFindings(ctx context.Context, query string, limit int) ([]*Finding, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryFindings(ctx, `
		SELECT f.id, f.title, f.url, f.description, f.stars, f.language, f.embedding,
			f.summary, f.score, f.status, f.mission, f.tactic, f.created_at
		FROM findings_fts fts
		JOIN findings f ON f.rowid = fts.rowid
		WHERE findings_fts MATCH ?
		ORDER BY rank LIMIT ?`, query, limit)
}

// LanguageCounts returns findings per primary language for a mission
// ("" for all missions).
func (s *Store) LanguageCounts(ctx context.Context, mission string) (map[string]int, error) {
	q := `SELECT language, COUNT(*) FROM findings WHERE language != ''`
	var args []any
	if mission != "" {
		q += ` AND mission = ?`
		args = append(args, mission)
	}
	q += ` GROUP BY language`

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("language counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var lang string
		var n int
		if err := rows.Scan(&lang, &n); err != nil {
			return nil, err
		}
		out[lang] = n
	}
	return out, rows.Err()
}

// FeedbackSummary aggregates external feedback over findings: liked and
// disliked counts plus the most-liked languages. Input to the Strategist.
type FeedbackSummary struct {
	Liked          int            `json:"liked"`
	Disliked       int            `json:"disliked"`
	LikedLanguages map[string]int `json:"liked_languages,omitempty"`
}

// GetFeedbackSummary computes the feedback summary for a mission
// ("" for all missions).
func (s *Store) GetFeedbackSummary(ctx context.Context, mission string) (*FeedbackSummary, error) {
	q := `SELECT status, language, COUNT(*) FROM findings WHERE status IN ('liked', 'disliked')`
	var args []any
	if mission != "" {
		q += ` AND mission = ?`
		args = append(args, mission)
	}
	q += ` GROUP BY status, language`

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("feedback summary: %w", err)
	}
	defer rows.Close()

	sum := &FeedbackSummary{LikedLanguages: make(map[string]int)}
	for rows.Next() {
		var status, lang string
		var n int
		if err := rows.Scan(&status, &lang, &n); err != nil {
			return nil, err
		}
		switch FindingStatus(status) {
		case FindingLiked:
			sum.Liked += n
			if lang != "" {
				sum.LikedLanguages[lang] += n
			}
		case FindingDisliked:
			sum.Disliked += n
		}
	}
	return sum, rows.Err()
}

func (s *Store) queryFindings(ctx context.Context, query string, args ...any) ([]*Finding, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	var out []*Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFinding(row scanner) (*Finding, error) {
	var f Finding
	var status string
	var summary sql.NullString
	var score sql.NullFloat64
	err := row.Scan(&f.ID, &f.Title, &f.URL, &f.Description, &f.Stars, &f.Language,
		&f.Embedding, &summary, &score, &status, &f.Mission, &f.Tactic, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	f.Status = FindingStatus(status)
	if summary.Valid {
		f.Summary = &summary.String
	}
	if score.Valid {
		f.Score = &score.Float64
	}
	return &f, nil
}
