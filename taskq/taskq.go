// Package taskq implements the durable work queue behind the discovery
// pipeline, backed by SQLite.
//
// Tasks carry a type, an opaque JSON payload, and an integer priority.
// Claim atomically flips the highest-priority, oldest pending task to
// processing in one write-locked statement, so two concurrent workers can
// never claim the same row. Fail returns the task to pending until the
// retry budget is spent, then parks it as failed. Nothing is ever deleted:
// failed tasks stay inspectable.
//
// Expected schema (created by EnsureSchema):
//
//	CREATE TABLE IF NOT EXISTS tasks (
//	    id          TEXT PRIMARY KEY,
//	    type        TEXT NOT NULL,
//	    payload     TEXT NOT NULL DEFAULT '{}',
//	    priority    INTEGER NOT NULL DEFAULT 0,
//	    status      TEXT NOT NULL DEFAULT 'pending',
//	    retry_count INTEGER NOT NULL DEFAULT 0,
//	    last_error  TEXT NOT NULL DEFAULT '',
//	    created_at  INTEGER NOT NULL,              -- milliseconds since epoch
//	    claimed_at  INTEGER NOT NULL DEFAULT 0,
//	    finished_at INTEGER NOT NULL DEFAULT 0
//	);
package taskq

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/prospect/idgen"
)

// Type identifies the kind of work a task carries.
type Type string

// The four task kinds of the pipeline.
const (
	TypeSearch      Type = "search"
	TypeDiscovery   Type = "discovery"
	TypeFetchReadme Type = "fetch_readme"
	TypeAnalyze     Type = "analyze"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Task is a row in the queue.
type Task struct {
	ID         string
	Type       Type
	Payload    json.RawMessage
	Priority   int
	Status     Status
	Retries    int
	LastError  string
	CreatedAt  time.Time
	ClaimedAt  time.Time
	FinishedAt time.Time
}

// Options configures queue behaviour.
type Options struct {
	// MaxRetries is how many failures a task absorbs before turning
	// terminally failed. Default: 3.
	MaxRetries int
	// IDs overrides the task ID generator. Default: idgen.Prefixed("task_", …).
	IDs idgen.Generator
}

func (o *Options) defaults() {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.IDs == nil {
		o.IDs = idgen.Prefixed("task_", idgen.Default)
	}
}

// Q is the queue handle.
type Q struct {
	db   *sql.DB
	opts Options
}

// New creates a queue handle. Call EnsureSchema once at startup.
func New(db *sql.DB, opts Options) *Q {
	opts.defaults()
	return &Q{db: db, opts: opts}
}

// Schema is the queue's DDL, safe to apply repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS tasks (
    id          TEXT PRIMARY KEY,
    type        TEXT NOT NULL,
    payload     TEXT NOT NULL DEFAULT '{}',
    priority    INTEGER NOT NULL DEFAULT 0,
    status      TEXT NOT NULL DEFAULT 'pending',
    retry_count INTEGER NOT NULL DEFAULT 0,
    last_error  TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL,
    claimed_at  INTEGER NOT NULL DEFAULT 0,
    finished_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tasks_claim ON tasks (status, priority DESC, created_at);
`

// EnsureSchema creates the tasks table and claim index if missing.
func (q *Q) EnsureSchema(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, Schema)
	return err
}

// Enqueue inserts a pending task and returns its id. payload is marshalled
// to JSON; pass a raw json.RawMessage to skip re-encoding.
func (q *Q) Enqueue(ctx context.Context, typ Type, payload any, priority int) (string, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return "", fmt.Errorf("taskq: encode payload: %w", err)
	}
	id := q.opts.IDs()
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO tasks (id, type, payload, priority, status, created_at) VALUES (?,?,?,?,?,?)`,
		id, string(typ), string(raw), priority, string(StatusPending), time.Now().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("taskq: enqueue: %w", err)
	}
	return id, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		return json.Marshal(payload)
	}
}

// Claim atomically picks the highest-priority, oldest pending task whose
// type is in types (any type when none given), flips it to processing, and
// returns it. Returns nil, nil when nothing matches; callers poll with a
// short idle sleep. The single UPDATE statement is serialized by SQLite's
// write lock, which is what makes the claim exclusive across workers.
func (q *Q) Claim(ctx context.Context, types ...Type) (*Task, error) {
	var sb strings.Builder
	args := []any{string(StatusProcessing), time.Now().UnixMilli(), string(StatusPending)}

	sb.WriteString(`
		UPDATE tasks
		SET status = ?, claimed_at = ?
		WHERE id = (
			SELECT id FROM tasks
			WHERE status = ?`)
	if len(types) > 0 {
		sb.WriteString(` AND type IN (`)
		for i, typ := range types {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("?")
			args = append(args, string(typ))
		}
		sb.WriteString(`)`)
	}
	sb.WriteString(`
			ORDER BY priority DESC, created_at ASC, id ASC
			LIMIT 1
		)
		RETURNING id, type, payload, priority, status, retry_count, last_error, created_at, claimed_at, finished_at`)

	row := q.db.QueryRowContext(ctx, sb.String(), args...)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("taskq: claim: %w", err)
	}
	return t, nil
}

// Complete marks a processing task as completed.
func (q *Q) Complete(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, finished_at = ? WHERE id = ? AND status = ?`,
		string(StatusCompleted), time.Now().UnixMilli(), id, string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("taskq: complete %s: %w", id, err)
	}
	return nil
}

// Fail records a failure for a processing task. Below the retry budget the
// task returns to pending for re-claim; at the budget it turns terminally
// failed and keeps its last error for inspection.
func (q *Q) Fail(ctx context.Context, id, reason string) error {
	now := time.Now().UnixMilli()
	_, err := q.db.ExecContext(ctx, `
		UPDATE tasks
		SET retry_count = retry_count + 1,
		    last_error  = ?,
		    status      = CASE WHEN retry_count + 1 >= ? THEN ? ELSE ? END,
		    claimed_at  = 0,
		    finished_at = CASE WHEN retry_count + 1 >= ? THEN ? ELSE 0 END
		WHERE id = ? AND status = ?`,
		reason, q.opts.MaxRetries, string(StatusFailed), string(StatusPending),
		q.opts.MaxRetries, now, id, string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("taskq: fail %s: %w", id, err)
	}
	return nil
}

// FailPermanent parks a processing task as failed immediately, bypassing the
// retry budget. Used for payloads that can never be decoded: retrying them
// would burn the budget on a deterministic error.
func (q *Q) FailPermanent(ctx context.Context, id, reason string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE tasks
		SET retry_count = retry_count + 1, last_error = ?, status = ?, claimed_at = 0, finished_at = ?
		WHERE id = ? AND status = ?`,
		reason, string(StatusFailed), time.Now().UnixMilli(), id, string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("taskq: fail permanent %s: %w", id, err)
	}
	return nil
}

// Get returns a task by id, or nil, nil when absent.
func (q *Q) Get(ctx context.Context, id string) (*Task, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, type, payload, priority, status, retry_count, last_error, created_at, claimed_at, finished_at
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("taskq: get %s: %w", id, err)
	}
	return t, nil
}

// Counts returns the number of tasks per status.
func (q *Q) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("taskq: counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[Status(s)] = n
	}
	return counts, rows.Err()
}

// InFlight returns how many pending or processing tasks carry the given
// cycle id in their payload. The control loop polls this to detect when a
// research cycle has drained.
func (q *Q) InFlight(ctx context.Context, cycleID string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tasks
		WHERE status IN (?, ?) AND json_extract(payload, '$.cycle_id') = ?`,
		string(StatusPending), string(StatusProcessing), cycleID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("taskq: in-flight for %s: %w", cycleID, err)
	}
	return n, nil
}

// RequeueStale returns every processing task to pending. Called once at
// startup: tasks left processing by a crash would otherwise be stranded,
// invisible to every worker.
func (q *Q) RequeueStale(ctx context.Context) (int, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, claimed_at = 0 WHERE status = ?`,
		string(StatusPending), string(StatusProcessing),
	)
	if err != nil {
		return 0, fmt.Errorf("taskq: requeue stale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*Task, error) {
	var t Task
	var typ, status, payload string
	var created, claimed, finished int64
	err := row.Scan(&t.ID, &typ, &payload, &t.Priority, &status, &t.Retries, &t.LastError, &created, &claimed, &finished)
	if err != nil {
		return nil, err
	}
	t.Type = Type(typ)
	t.Status = Status(status)
	t.Payload = json.RawMessage(payload)
	t.CreatedAt = time.UnixMilli(created)
	if claimed > 0 {
		t.ClaimedAt = time.UnixMilli(claimed)
	}
	if finished > 0 {
		t.FinishedAt = time.UnixMilli(finished)
	}
	return &t, nil
}
