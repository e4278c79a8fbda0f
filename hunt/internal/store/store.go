// Package store is the data access layer for the discovery pipeline:
// findings, missions, per-cycle tactic performance, and strategy history,
// all in one SQLite database shared with the task queue.
package store

import (
	"database/sql"
	"errors"
)

// Sentinel errors surfaced through the hunt package.
var (
	// ErrDuplicateFinding signals that a finding with the same URL
	// already exists. A normal outcome, not a failure: the caller
	// completes its task and moves on.
	ErrDuplicateFinding = errors.New("store: finding with this URL already exists")

	// ErrMissionNotFound is returned when a mission name resolves to nothing.
	ErrMissionNotFound = errors.New("store: mission not found")
)

// Store wraps the pipeline database.
type Store struct {
	DB *sql.DB
}

// New creates a Store from an already-opened database.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Schema is the pipeline schema, applied idempotently. The task queue
// brings its own schema (taskq.Schema); both live in the same database.
const Schema = `
-- Candidate repositories discovered by the pipeline
CREATE TABLE IF NOT EXISTS findings (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    url         TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    stars       INTEGER NOT NULL DEFAULT 0,
    language    TEXT NOT NULL DEFAULT '',
    embedding   BLOB,
    summary     TEXT,
    score       REAL,
    status      TEXT NOT NULL DEFAULT 'pending',
    mission     TEXT NOT NULL DEFAULT '',
    tactic      TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_findings_status ON findings(status, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_findings_mission ON findings(mission, score DESC);

-- FTS5 over findings (title + description + summary)
CREATE VIRTUAL TABLE IF NOT EXISTS findings_fts USING fts5(
    title, description, summary, content='findings', content_rowid='rowid',
    tokenize='unicode61 remove_diacritics 2'
);
CREATE TRIGGER IF NOT EXISTS findings_ai AFTER INSERT ON findings BEGIN
    INSERT INTO findings_fts(rowid, title, description, summary)
    VALUES (new.rowid, new.title, new.description, coalesce(new.summary, ''));
END;
CREATE TRIGGER IF NOT EXISTS findings_ad AFTER DELETE ON findings BEGIN
    INSERT INTO findings_fts(findings_fts, rowid, title, description, summary)
    VALUES ('delete', old.rowid, old.title, old.description, coalesce(old.summary, ''));
END;
CREATE TRIGGER IF NOT EXISTS findings_au AFTER UPDATE ON findings BEGIN
    INSERT INTO findings_fts(findings_fts, rowid, title, description, summary)
    VALUES ('delete', old.rowid, old.title, old.description, coalesce(old.summary, ''));
    INSERT INTO findings_fts(rowid, title, description, summary)
    VALUES (new.rowid, new.title, new.description, coalesce(new.summary, ''));
END;

-- Research missions, seeded from the missions file
CREATE TABLE IF NOT EXISTS missions (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL UNIQUE,
    goal           TEXT NOT NULL,
    languages      TEXT NOT NULL DEFAULT '[]',
    min_stars      INTEGER NOT NULL DEFAULT 0,
    seed_repos     TEXT NOT NULL DEFAULT '[]',
    notes          TEXT NOT NULL DEFAULT '',
    strategy       TEXT NOT NULL DEFAULT '{}',
    tactic_weights TEXT NOT NULL DEFAULT '{}',
    enabled        INTEGER NOT NULL DEFAULT 1,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

-- One row per research cycle; finalized rows are immutable
CREATE TABLE IF NOT EXISTS tactic_performance (
    id           TEXT PRIMARY KEY,
    mission      TEXT NOT NULL,
    tactic       TEXT NOT NULL,
    query        TEXT NOT NULL DEFAULT '',
    found        INTEGER NOT NULL DEFAULT 0,
    accepted     INTEGER NOT NULL DEFAULT 0,
    rejected     INTEGER NOT NULL DEFAULT 0,
    success_rate REAL NOT NULL DEFAULT 0,
    finalized    INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_perf_mission ON tactic_performance(mission, created_at DESC);

-- Strategy history; exactly one active row per mission, prior rows kept
CREATE TABLE IF NOT EXISTS strategies (
    id         TEXT PRIMARY KEY,
    mission    TEXT NOT NULL,
    config     TEXT NOT NULL,
    source     TEXT NOT NULL DEFAULT 'manual',
    active     INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_strategies_mission ON strategies(mission, created_at DESC);
`

// ApplySchema applies the pipeline schema to a database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
