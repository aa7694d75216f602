// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"srcbench-cli/internal/config"
	"srcbench-cli/internal/gitrepo"
	"srcbench-cli/internal/runner"
)

// scriptedRunner returns canned outcomes per job name and records the
// order jobs were issued in.
type scriptedRunner struct {
	fail   map[string]bool
	errOn  string
	zeroOn string // job that errors before spawning, yielding no outcome
	err    error
	issued []string
}

func (s *scriptedRunner) Run(_ context.Context, job config.Job) (runner.Outcome, error) {
	s.issued = append(s.issued, job.Name)
	if job.Name == s.zeroOn {
		return runner.Outcome{}, s.err
	}
	if job.Name == s.errOn {
		return runner.Outcome{JobName: job.Name}, s.err
	}
	return runner.Outcome{
		JobName:     job.Name,
		Succeeded:   !s.fail[job.Name],
		WallSeconds: 0.1,
	}, nil
}

func jobs(names ...string) []config.Job {
	out := make([]config.Job, len(names))
	for i, n := range names {
		out[i] = config.Job{Name: n, Command: "true"}
	}
	return out
}

var testRev = gitrepo.ResolvedRevision{
	Hash:       "0123456789abcdef0123456789abcdef01234567",
	CommitDate: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
}

func TestExecuteAllSucceed(t *testing.T) {
	t.Parallel()

	sr := &scriptedRunner{}
	e := &Executor{Runner: sr, Jobs: jobs("clean", "build", "bench")}

	record, err := e.Execute(context.Background(), testRev)
	if err != nil {
		t.Fatalf("Execute() returned error: %v", err)
	}
	if len(record.Outcomes) != 3 {
		t.Fatalf("len(Outcomes) = %d, want 3", len(record.Outcomes))
	}
	if record.Failed() {
		t.Error("Failed() = true for a fully successful run")
	}
	if record.Revision.Hash != testRev.Hash {
		t.Errorf("Revision.Hash = %s, want %s", record.Revision.Hash, testRev.Hash)
	}
	if record.StartedAt.IsZero() {
		t.Error("StartedAt is zero")
	}
}

func TestExecuteFailFast(t *testing.T) {
	t.Parallel()

	// build succeeds, test fails, bench must never be issued.
	sr := &scriptedRunner{fail: map[string]bool{"test": true}}
	e := &Executor{Runner: sr, Jobs: jobs("build", "test", "bench")}

	record, err := e.Execute(context.Background(), testRev)
	if err != nil {
		t.Fatalf("Execute() returned error: %v", err)
	}

	if len(record.Outcomes) != 2 {
		t.Fatalf("len(Outcomes) = %d, want 2", len(record.Outcomes))
	}
	if !record.Outcomes[0].Succeeded {
		t.Error("Outcomes[0].Succeeded = false, want true")
	}
	if record.Outcomes[1].Succeeded {
		t.Error("Outcomes[1].Succeeded = true, want false")
	}
	if !record.Failed() {
		t.Error("Failed() = false for an aborted run")
	}
	for _, name := range sr.issued {
		if name == "bench" {
			t.Error("bench was issued after a failing job")
		}
	}
}

// Outcomes are always a strict prefix of the configured sequence, ending
// either at full length or at the first failing job.
func TestExecuteOutcomesArePrefix(t *testing.T) {
	t.Parallel()

	names := []string{"a", "b", "c", "d", "e"}
	for failAt := range names {
		sr := &scriptedRunner{fail: map[string]bool{names[failAt]: true}}
		e := &Executor{Runner: sr, Jobs: jobs(names...)}

		record, err := e.Execute(context.Background(), testRev)
		if err != nil {
			t.Fatalf("Execute() returned error: %v", err)
		}

		if len(record.Outcomes) != failAt+1 {
			t.Fatalf("fail at %d: len(Outcomes) = %d, want %d", failAt, len(record.Outcomes), failAt+1)
		}
		for i, outcome := range record.Outcomes {
			if outcome.JobName != names[i] {
				t.Errorf("Outcomes[%d] = %s, want %s (order not preserved)", i, outcome.JobName, names[i])
			}
		}
	}
}

func TestExecuteRunnerErrorFinalizesRecord(t *testing.T) {
	t.Parallel()

	spawnErr := errors.New("binary vanished")
	sr := &scriptedRunner{errOn: "bench", err: spawnErr}
	e := &Executor{Runner: sr, Jobs: jobs("build", "bench", "report")}

	record, err := e.Execute(context.Background(), testRev)
	if !errors.Is(err, spawnErr) {
		t.Fatalf("Execute() error = %v, want %v", err, spawnErr)
	}
	// build completed, bench was in flight, report never issued.
	if len(record.Outcomes) != 2 {
		t.Errorf("len(Outcomes) = %d, want 2", len(record.Outcomes))
	}
	for _, name := range sr.issued {
		if name == "report" {
			t.Error("report was issued after a runner error")
		}
	}
}

func TestExecuteNeverSpawnedJobNotRecorded(t *testing.T) {
	t.Parallel()

	sr := &scriptedRunner{zeroOn: "bench", err: context.Canceled}
	e := &Executor{Runner: sr, Jobs: jobs("build", "bench", "report")}

	record, err := e.Execute(context.Background(), testRev)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() error = %v, want context.Canceled", err)
	}
	// bench never started, so only build's outcome is real.
	if len(record.Outcomes) != 1 {
		t.Fatalf("len(Outcomes) = %d, want 1", len(record.Outcomes))
	}
	if record.Outcomes[0].JobName != "build" {
		t.Errorf("Outcomes[0] = %s, want build", record.Outcomes[0].JobName)
	}
	if record.Failed() {
		t.Error("Failed() = true, but every recorded job succeeded")
	}
}

type recordingWorkspace struct {
	cleans int
	err    error
}

func (w *recordingWorkspace) Clean(context.Context) error {
	w.cleans++
	return w.err
}

func TestExecutePreCleansWorkspace(t *testing.T) {
	t.Parallel()

	ws := &recordingWorkspace{}
	sr := &scriptedRunner{}
	e := &Executor{Runner: sr, Jobs: jobs("build"), PreClean: ws}

	if _, err := e.Execute(context.Background(), testRev); err != nil {
		t.Fatalf("Execute() returned error: %v", err)
	}
	if ws.cleans != 1 {
		t.Errorf("workspace cleaned %d times, want 1", ws.cleans)
	}
	if len(sr.issued) == 0 {
		t.Error("no jobs issued after pre-clean")
	}
}

func TestExecutePreCleanFailureStopsPipeline(t *testing.T) {
	t.Parallel()

	cleanErr := errors.New("work tree locked")
	sr := &scriptedRunner{}
	e := &Executor{Runner: sr, Jobs: jobs("build"), PreClean: &recordingWorkspace{err: cleanErr}}

	record, err := e.Execute(context.Background(), testRev)
	if !errors.Is(err, cleanErr) {
		t.Fatalf("Execute() error = %v, want %v", err, cleanErr)
	}
	if len(record.Outcomes) != 0 || len(sr.issued) != 0 {
		t.Error("jobs ran despite failed pre-clean")
	}
}

func TestCleanupKeepsDebugLog(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	for _, name := range []string{"debug.log", "blocks.dat", "chainstate"} {
		if err := os.WriteFile(filepath.Join(dataDir, name), []byte(name), 0o644); err != nil {
			t.Fatalf("failed to seed data dir: %v", err)
		}
	}

	e := &Executor{Runner: &scriptedRunner{}, Jobs: jobs("build"), Cleanup: true, DataDir: dataDir}
	if _, err := e.Execute(context.Background(), testRev); err != nil {
		t.Fatalf("Execute() returned error: %v", err)
	}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		t.Fatalf("failed to read data dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "debug.log" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("data dir after cleanup = %v, want [debug.log]", names)
	}
}

func TestCleanupDisabledLeavesDataDir(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, "blocks.dat"), []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to seed data dir: %v", err)
	}

	e := &Executor{Runner: &scriptedRunner{}, Jobs: jobs("build"), Cleanup: false, DataDir: dataDir}
	if _, err := e.Execute(context.Background(), testRev); err != nil {
		t.Fatalf("Execute() returned error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dataDir, "blocks.dat")); err != nil {
		t.Errorf("data dir was cleaned with Cleanup=false: %v", err)
	}
}
