// SPDX-License-Identifier: MPL-2.0

package campaign

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"srcbench-cli/internal/gitrepo"
	"srcbench-cli/internal/pipeline"
)

const (
	// StatusRan marks a day whose pipeline ran to completion.
	StatusRan DayStatus = "ran"
	// StatusFailed marks a day whose pipeline or checkout failed; the
	// partial record, if any, is still stored.
	StatusFailed DayStatus = "failed"
	// StatusSkippedNoCommit marks a day predating the first commit.
	StatusSkippedNoCommit DayStatus = "skipped-no-commit"
	// StatusSkippedDuplicate marks a day whose commit was already
	// benchmarked, typically because no commits landed since the
	// previous day.
	StatusSkippedDuplicate DayStatus = "skipped-duplicate"
)

type (
	// DayStatus classifies how one campaign day ended.
	DayStatus string

	// Resolver maps a calendar day to a revision and checks it out.
	// Satisfied by *gitrepo.Repo.
	Resolver interface {
		ResolveDate(ctx context.Context, day time.Time) (gitrepo.ResolvedRevision, error)
		Checkout(ctx context.Context, hash string) error
	}

	// Executor runs the pipeline against a checked-out revision.
	// Satisfied by *pipeline.Executor.
	Executor interface {
		Execute(ctx context.Context, rev gitrepo.ResolvedRevision) (pipeline.RunRecord, error)
	}

	// Recorder persists and deduplicates run records. Satisfied by
	// *store.Store.
	Recorder interface {
		Exists(hash string) (bool, error)
		Put(record pipeline.RunRecord) error
	}

	// DayResult is the outcome of one campaign day.
	DayResult struct {
		Day    time.Time
		Status DayStatus
		Commit string
		Reason string
	}

	// Summary collects per-day results for the end-of-campaign report.
	Summary struct {
		Days []DayResult
	}

	// Scheduler iterates a date range and runs the pipeline once per
	// distinct revision.
	Scheduler struct {
		Resolver Resolver
		Executor Executor
		Store    Recorder
	}
)

// Count returns how many days ended with the given status.
func (s *Summary) Count(status DayStatus) int {
	n := 0
	for _, d := range s.Days {
		if d.Status == status {
			n++
		}
	}
	return n
}

// RunDaily runs the campaign over each calendar day from start to end
// inclusive, ascending. Per-day failures are recorded and isolated; only
// storage failures and cancellation abort the campaign. The summary always
// covers the days processed so far.
func (s *Scheduler) RunDaily(ctx context.Context, start, end time.Time) (Summary, error) {
	var summary Summary

	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)

	for ; !day.After(last); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result, err := s.runDay(ctx, day)
		summary.Days = append(summary.Days, result)
		if err != nil {
			return summary, err
		}

		log.Info("campaign day finished", "day", day.Format("2006-01-02"),
			"status", result.Status, "commit", result.Commit)
	}

	return summary, nil
}

// runDay processes one campaign day. The returned error is non-nil only
// for faults that must abort the campaign (storage write failure,
// cancellation); everything about the day itself becomes a DayResult.
func (s *Scheduler) runDay(ctx context.Context, day time.Time) (DayResult, error) {
	result := DayResult{Day: day}

	rev, err := s.Resolver.ResolveDate(ctx, day)
	switch {
	case errors.Is(err, gitrepo.ErrNoCommitBeforeDate):
		result.Status = StatusSkippedNoCommit
		result.Reason = err.Error()
		return result, nil
	case err != nil:
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Status = StatusFailed
		result.Reason = err.Error()
		return result, nil
	}
	result.Commit = rev.Hash

	exists, err := s.Store.Exists(rev.Hash)
	if err != nil {
		return result, err
	}
	if exists {
		result.Status = StatusSkippedDuplicate
		result.Reason = "revision already benchmarked"
		return result, nil
	}

	if err := s.Resolver.Checkout(ctx, rev.Hash); err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Status = StatusFailed
		result.Reason = err.Error()
		return result, nil
	}

	record, execErr := s.Executor.Execute(ctx, rev)

	// Partial records from aborted runs are persisted too; the
	// exists-check above then treats the day as done on resume.
	if len(record.Outcomes) > 0 || execErr == nil {
		if err := s.Store.Put(record); err != nil {
			result.Status = StatusFailed
			result.Reason = err.Error()
			return result, err
		}
	}

	switch {
	case execErr != nil:
		result.Status = StatusFailed
		result.Reason = execErr.Error()
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
	case record.Failed():
		result.Status = StatusFailed
		result.Reason = "pipeline failed at job " + record.Outcomes[len(record.Outcomes)-1].JobName
	default:
		result.Status = StatusRan
	}
	return result, nil
}
