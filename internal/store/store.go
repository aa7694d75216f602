// SPDX-License-Identifier: MPL-2.0

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"srcbench-cli/internal/gitrepo"
	"srcbench-cli/internal/pipeline"
	"srcbench-cli/internal/runner"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	commit_id   TEXT PRIMARY KEY,
	commit_date INTEGER NOT NULL,
	started_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS jobs (
	commit_id                TEXT    NOT NULL REFERENCES runs(commit_id) ON DELETE CASCADE,
	seq                      INTEGER NOT NULL,
	name                     TEXT    NOT NULL,
	exit_code                INTEGER NOT NULL,
	succeeded                INTEGER NOT NULL,
	wall_seconds             REAL    NOT NULL,
	user_seconds             REAL    NOT NULL,
	system_seconds           REAL    NOT NULL,
	percent_cpu              INTEGER NOT NULL,
	max_rss_bytes            INTEGER NOT NULL,
	major_page_faults        INTEGER NOT NULL,
	minor_page_faults        INTEGER NOT NULL,
	voluntary_ctx_switches   INTEGER NOT NULL,
	involuntary_ctx_switches INTEGER NOT NULL,
	fs_outputs               INTEGER NOT NULL,
	degraded                 INTEGER NOT NULL,
	PRIMARY KEY (commit_id, seq)
);
`

// Store is a durable, single-writer results database.
type Store struct {
	db *sql.DB
}

// Open creates or loads the database at dir/name, creating dir and the
// schema as needed.
func Open(dir, name string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, name)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}

	// One connection: SQLite with a single writer, no lock contention.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = FULL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to configure database: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	log.Debug("opened results database", "path", path)
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put persists a run record, replacing any previous record for the same
// commit hash. The write is one transaction: after a crash the record is
// either fully visible or absent.
func (s *Store) Put(record pipeline.RunRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to persist run record: %w", err)
	}
	defer tx.Rollback()

	hash := record.Revision.Hash
	if _, err := tx.Exec(`DELETE FROM runs WHERE commit_id = ?`, hash); err != nil {
		return fmt.Errorf("failed to persist run record: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO runs (commit_id, commit_date, started_at) VALUES (?, ?, ?)`,
		hash, record.Revision.CommitDate.Unix(), record.StartedAt.Unix(),
	); err != nil {
		return fmt.Errorf("failed to persist run record: %w", err)
	}

	for seq, outcome := range record.Outcomes {
		if _, err := tx.Exec(
			`INSERT INTO jobs (
				commit_id, seq, name, exit_code, succeeded,
				wall_seconds, user_seconds, system_seconds, percent_cpu,
				max_rss_bytes, major_page_faults, minor_page_faults,
				voluntary_ctx_switches, involuntary_ctx_switches,
				fs_outputs, degraded
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			hash, seq, outcome.JobName, outcome.ExitCode, outcome.Succeeded,
			outcome.WallSeconds, outcome.Usage.UserSeconds, outcome.Usage.SystemSeconds,
			outcome.Usage.PercentCPU, int64(outcome.Usage.MaxRSSBytes),
			outcome.Usage.MajorPageFaults, outcome.Usage.MinorPageFaults,
			outcome.Usage.VoluntaryCtxSwitches, outcome.Usage.InvoluntaryCtxSwitches,
			outcome.Usage.FileSystemOutputs, outcome.Degraded,
		); err != nil {
			return fmt.Errorf("failed to persist outcome of job %q: %w", outcome.JobName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to persist run record: %w", err)
	}

	log.Debug("persisted run record", "commit", hash, "outcomes", len(record.Outcomes))
	return nil
}

// Exists reports whether a record is stored for the commit hash.
func (s *Store) Exists(hash string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM runs WHERE commit_id = ?`, hash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query run record: %w", err)
	}
	return true, nil
}

// Get returns the stored record for the commit hash, or ok=false when none
// exists.
func (s *Store) Get(hash string) (record pipeline.RunRecord, ok bool, err error) {
	var commitDate, startedAt int64
	err = s.db.QueryRow(
		`SELECT commit_date, started_at FROM runs WHERE commit_id = ?`, hash,
	).Scan(&commitDate, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return pipeline.RunRecord{}, false, nil
	}
	if err != nil {
		return pipeline.RunRecord{}, false, fmt.Errorf("failed to query run record: %w", err)
	}

	record = pipeline.RunRecord{
		Revision: gitrepo.ResolvedRevision{
			Hash:       hash,
			CommitDate: time.Unix(commitDate, 0).UTC(),
		},
		StartedAt: time.Unix(startedAt, 0).UTC(),
	}

	rows, err := s.db.Query(
		`SELECT name, exit_code, succeeded, wall_seconds, user_seconds,
			system_seconds, percent_cpu, max_rss_bytes, major_page_faults,
			minor_page_faults, voluntary_ctx_switches,
			involuntary_ctx_switches, fs_outputs, degraded
		FROM jobs WHERE commit_id = ? ORDER BY seq ASC`, hash)
	if err != nil {
		return pipeline.RunRecord{}, false, fmt.Errorf("failed to query job outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o runner.Outcome
		var maxRSS int64
		if err := rows.Scan(
			&o.JobName, &o.ExitCode, &o.Succeeded, &o.WallSeconds,
			&o.Usage.UserSeconds, &o.Usage.SystemSeconds, &o.Usage.PercentCPU,
			&maxRSS, &o.Usage.MajorPageFaults, &o.Usage.MinorPageFaults,
			&o.Usage.VoluntaryCtxSwitches, &o.Usage.InvoluntaryCtxSwitches,
			&o.Usage.FileSystemOutputs, &o.Degraded,
		); err != nil {
			return pipeline.RunRecord{}, false, fmt.Errorf("failed to scan job outcome: %w", err)
		}
		o.Usage.MaxRSSBytes = uint64(maxRSS)
		record.Outcomes = append(record.Outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return pipeline.RunRecord{}, false, fmt.Errorf("failed to read job outcomes: %w", err)
	}

	return record, true, nil
}
