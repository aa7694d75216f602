// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"srcbench-cli/internal/config"
	"srcbench-cli/internal/gitrepo"
	"srcbench-cli/internal/runner"
)

type (
	// JobRunner executes a single job. Satisfied by *runner.Runner.
	JobRunner interface {
		Run(ctx context.Context, job config.Job) (runner.Outcome, error)
	}

	// RunRecord is the persisted result of one pipeline execution against
	// one revision. Outcomes preserve pipeline order.
	RunRecord struct {
		Revision  gitrepo.ResolvedRevision
		StartedAt time.Time
		Outcomes  []runner.Outcome
	}

	// Workspace rewinds the source tree to a pristine state.
	// Satisfied by *gitrepo.Repo.
	Workspace interface {
		Clean(ctx context.Context) error
	}

	// Executor drives the configured jobs through a JobRunner.
	Executor struct {
		Runner JobRunner
		Jobs   []config.Job
		// PreClean, when set, cleans the source tree before the first
		// job so leftover artifacts from a previous revision cannot
		// bias timed steps.
		PreClean Workspace
		// Cleanup erases DataDir after the record is finalized so each
		// revision starts from a comparable state. Best-effort.
		Cleanup bool
		DataDir string
	}
)

// Failed reports whether the run stopped at a failing job.
func (rec *RunRecord) Failed() bool {
	n := len(rec.Outcomes)
	return n > 0 && !rec.Outcomes[n-1].Succeeded
}

// Execute runs the jobs in configured order against the checked-out
// revision. The returned record is always finalized, including on fail-fast
// and cancellation, so partial outcomes can still be persisted. The error is
// non-nil only for infrastructure faults (spawn failure, cancellation); a
// job failing with a non-zero exit is data, not an error.
func (e *Executor) Execute(ctx context.Context, rev gitrepo.ResolvedRevision) (RunRecord, error) {
	record := RunRecord{Revision: rev, StartedAt: time.Now().UTC()}
	defer e.cleanup()

	log.Info("starting pipeline", "commit", rev.Hash, "jobs", len(e.Jobs))

	if e.PreClean != nil {
		if err := e.PreClean.Clean(ctx); err != nil {
			return record, err
		}
	}

	for _, job := range e.Jobs {
		outcome, err := e.Runner.Run(ctx, job)
		if err != nil {
			// A named outcome means the process actually ran; keep it
			// so the record shows where the run stopped. A zero outcome
			// is a job that never spawned and must not be recorded.
			if outcome.JobName != "" {
				record.Outcomes = append(record.Outcomes, outcome)
			}
			return record, err
		}

		record.Outcomes = append(record.Outcomes, outcome)
		if !outcome.Succeeded {
			log.Warn("pipeline aborted, downstream jobs skipped",
				"failed_job", job.Name, "completed", len(record.Outcomes))
			break
		}
	}

	return record, nil
}

// cleanup erases the benchmark data directory, keeping debug.log for
// postmortems. Failures are logged, never propagated: housekeeping is not
// part of the measured contract.
func (e *Executor) cleanup() {
	if !e.Cleanup || e.DataDir == "" {
		return
	}

	entries, err := os.ReadDir(e.DataDir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("failed to read data dir for cleanup", "dir", e.DataDir, "err", err)
		}
		return
	}

	for _, entry := range entries {
		if entry.Name() == "debug.log" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(e.DataDir, entry.Name())); err != nil {
			log.Warn("failed to remove data dir entry", "entry", entry.Name(), "err", err)
		}
	}
	log.Debug("cleaned data dir", "dir", e.DataDir)
}
