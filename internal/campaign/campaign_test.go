// SPDX-License-Identifier: MPL-2.0

package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"srcbench-cli/internal/gitrepo"
	"srcbench-cli/internal/pipeline"
	"srcbench-cli/internal/runner"
)

type (
	// fakeResolver maps YYYY-MM-DD strings to commit hashes.
	fakeResolver struct {
		commits   map[string]string
		checkouts []string
	}

	// memoryRecorder is an in-memory Recorder.
	memoryRecorder struct {
		records map[string]pipeline.RunRecord
		putErr  error
	}

	// fakeExecutor returns a scripted record per commit hash.
	fakeExecutor struct {
		failing    map[string]bool
		executions []string
	}
)

func (f *fakeResolver) ResolveDate(_ context.Context, day time.Time) (gitrepo.ResolvedRevision, error) {
	hash, ok := f.commits[day.Format("2006-01-02")]
	if !ok {
		return gitrepo.ResolvedRevision{}, &gitrepo.NoCommitBeforeDateError{Date: day}
	}
	return gitrepo.ResolvedRevision{Hash: hash, CommitDate: day}, nil
}

func (f *fakeResolver) Checkout(_ context.Context, hash string) error {
	f.checkouts = append(f.checkouts, hash)
	return nil
}

func (m *memoryRecorder) Exists(hash string) (bool, error) {
	_, ok := m.records[hash]
	return ok, nil
}

func (m *memoryRecorder) Put(record pipeline.RunRecord) error {
	if m.putErr != nil {
		return m.putErr
	}
	if m.records == nil {
		m.records = make(map[string]pipeline.RunRecord)
	}
	m.records[record.Revision.Hash] = record
	return nil
}

func (f *fakeExecutor) Execute(_ context.Context, rev gitrepo.ResolvedRevision) (pipeline.RunRecord, error) {
	f.executions = append(f.executions, rev.Hash)
	record := pipeline.RunRecord{Revision: rev, StartedAt: time.Now().UTC()}
	if f.failing[rev.Hash] {
		record.Outcomes = []runner.Outcome{
			{JobName: "build", Succeeded: true},
			{JobName: "bench", Succeeded: false, ExitCode: 1},
		}
	} else {
		record.Outcomes = []runner.Outcome{
			{JobName: "build", Succeeded: true},
			{JobName: "bench", Succeeded: true},
		}
	}
	return record, nil
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRunDailyDeduplicatesByCommitHash(t *testing.T) {
	t.Parallel()

	// Day 2 and day 3 resolve to the same commit (weekend, no pushes):
	// exactly one pipeline execution for them combined.
	resolver := &fakeResolver{commits: map[string]string{
		"2024-03-01": "hash-a",
		"2024-03-02": "hash-b",
		"2024-03-03": "hash-b",
	}}
	exec := &fakeExecutor{}
	rec := &memoryRecorder{}
	s := &Scheduler{Resolver: resolver, Executor: exec, Store: rec}

	summary, err := s.RunDaily(context.Background(), day("2024-03-01"), day("2024-03-03"))
	if err != nil {
		t.Fatalf("RunDaily() returned error: %v", err)
	}

	if len(exec.executions) != 2 {
		t.Fatalf("pipeline executions = %v, want [hash-a hash-b]", exec.executions)
	}
	if summary.Count(StatusRan) != 2 {
		t.Errorf("ran = %d, want 2", summary.Count(StatusRan))
	}
	if summary.Count(StatusSkippedDuplicate) != 1 {
		t.Errorf("skipped-duplicate = %d, want 1", summary.Count(StatusSkippedDuplicate))
	}
	if summary.Days[2].Status != StatusSkippedDuplicate {
		t.Errorf("day 3 status = %s, want %s", summary.Days[2].Status, StatusSkippedDuplicate)
	}
}

func TestRunDailyIsIdempotent(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{commits: map[string]string{
		"2024-03-01": "hash-a",
		"2024-03-02": "hash-b",
	}}
	exec := &fakeExecutor{}
	rec := &memoryRecorder{}
	s := &Scheduler{Resolver: resolver, Executor: exec, Store: rec}

	if _, err := s.RunDaily(context.Background(), day("2024-03-01"), day("2024-03-02")); err != nil {
		t.Fatalf("first RunDaily() returned error: %v", err)
	}
	firstRuns := len(exec.executions)

	summary, err := s.RunDaily(context.Background(), day("2024-03-01"), day("2024-03-02"))
	if err != nil {
		t.Fatalf("second RunDaily() returned error: %v", err)
	}

	if len(exec.executions) != firstRuns {
		t.Errorf("second campaign executed %d pipelines, want 0", len(exec.executions)-firstRuns)
	}
	if summary.Count(StatusSkippedDuplicate) != 2 {
		t.Errorf("skipped-duplicate = %d, want 2", summary.Count(StatusSkippedDuplicate))
	}
}

func TestRunDailySkipsDaysBeforeFirstCommit(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{commits: map[string]string{
		"2024-03-03": "hash-a",
	}}
	exec := &fakeExecutor{}
	s := &Scheduler{Resolver: resolver, Executor: exec, Store: &memoryRecorder{}}

	summary, err := s.RunDaily(context.Background(), day("2024-03-01"), day("2024-03-03"))
	if err != nil {
		t.Fatalf("RunDaily() returned error: %v", err)
	}

	if summary.Count(StatusSkippedNoCommit) != 2 {
		t.Errorf("skipped-no-commit = %d, want 2", summary.Count(StatusSkippedNoCommit))
	}
	if summary.Count(StatusRan) != 1 {
		t.Errorf("ran = %d, want 1", summary.Count(StatusRan))
	}
	if len(resolver.checkouts) != 1 {
		t.Errorf("checkouts = %v, want exactly one", resolver.checkouts)
	}
}

func TestRunDailyIsolatesPipelineFailures(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{commits: map[string]string{
		"2024-03-01": "hash-a",
		"2024-03-02": "hash-bad",
		"2024-03-03": "hash-c",
	}}
	exec := &fakeExecutor{failing: map[string]bool{"hash-bad": true}}
	rec := &memoryRecorder{}
	s := &Scheduler{Resolver: resolver, Executor: exec, Store: rec}

	summary, err := s.RunDaily(context.Background(), day("2024-03-01"), day("2024-03-03"))
	if err != nil {
		t.Fatalf("RunDaily() returned error: %v", err)
	}

	// The bad day is recorded, with its partial record stored, and the
	// campaign continued to day 3.
	if summary.Count(StatusFailed) != 1 {
		t.Errorf("failed = %d, want 1", summary.Count(StatusFailed))
	}
	if summary.Count(StatusRan) != 2 {
		t.Errorf("ran = %d, want 2", summary.Count(StatusRan))
	}
	stored, ok := rec.records["hash-bad"]
	if !ok {
		t.Fatal("partial record of the failed day was not stored")
	}
	if !stored.Failed() {
		t.Error("stored record of the failed day does not show the failure")
	}
	if len(exec.executions) != 3 {
		t.Errorf("executions = %v, want all three days", exec.executions)
	}
}

func TestRunDailyStorageFailureAborts(t *testing.T) {
	t.Parallel()

	writeErr := errors.New("disk full")
	resolver := &fakeResolver{commits: map[string]string{
		"2024-03-01": "hash-a",
		"2024-03-02": "hash-b",
	}}
	exec := &fakeExecutor{}
	s := &Scheduler{
		Resolver: resolver,
		Executor: exec,
		Store:    &memoryRecorder{putErr: writeErr},
	}

	summary, err := s.RunDaily(context.Background(), day("2024-03-01"), day("2024-03-02"))
	if !errors.Is(err, writeErr) {
		t.Fatalf("RunDaily() error = %v, want %v", err, writeErr)
	}
	// Losing a long benchmark's results is costly: the campaign stops at
	// the first persistence failure instead of silently burning days.
	if len(exec.executions) != 1 {
		t.Errorf("executions after storage failure = %d, want 1", len(exec.executions))
	}
	if len(summary.Days) != 1 {
		t.Errorf("summary covers %d days, want 1", len(summary.Days))
	}
}

func TestRunDailyHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resolver := &fakeResolver{commits: map[string]string{"2024-03-01": "hash-a"}}
	s := &Scheduler{Resolver: resolver, Executor: &fakeExecutor{}, Store: &memoryRecorder{}}

	_, err := s.RunDaily(ctx, day("2024-03-01"), day("2024-03-05"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RunDaily() error = %v, want context.Canceled", err)
	}
}
