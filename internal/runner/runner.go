// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/shell"

	"srcbench-cli/internal/config"
)

type (
	// Runner executes pipeline jobs against the checked-out source tree.
	Runner struct {
		// Probe is the resource-usage probe configuration for timed jobs.
		Probe config.Probe
		// Cores is substituted for the {cores} placeholder.
		Cores int
		// DataDir is substituted for the {datadir} placeholder.
		DataDir string
		// SrcDir is the working directory for job commands.
		SrcDir string
		// LogDir receives per-job stdout/stderr logs and probe reports.
		LogDir string
	}

	// Outcome is the result of one job execution. Produced once, never
	// mutated. Usage fields are zero for untimed jobs.
	Outcome struct {
		JobName     string
		ExitCode    int
		Succeeded   bool
		WallSeconds float64
		Usage       Usage
		// Degraded marks that probe output could not be fully parsed
		// and some usage fields were zero-filled.
		Degraded bool
	}
)

// New creates a Runner for one pipeline run.
func New(cfg *config.Config, srcDir, dataDir, logDir string, cores int) *Runner {
	return &Runner{
		Probe:   cfg.Time,
		Cores:   cores,
		DataDir: dataDir,
		SrcDir:  srcDir,
		LogDir:  logDir,
	}
}

// Run executes job and returns its outcome. It blocks until the process
// exits; cancellation of ctx kills the process and returns ctx's error
// alongside the partial outcome. A job that never spawned (split failure,
// unreachable binary, ctx already canceled) returns a zero Outcome so
// callers do not record a phantom execution.
func (r *Runner) Run(ctx context.Context, job config.Job) (Outcome, error) {
	argv, err := r.buildArgv(job)
	if err != nil {
		return Outcome{}, err
	}

	stdout, stderr, err := r.openLogs(job.Name)
	if err != nil {
		return Outcome{}, err
	}
	defer stdout.Close()
	defer stderr.Close()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.SrcDir
	cmd.Env = append(os.Environ(), job.Env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	log.Info("running job", "job", job.Name, "timed", job.Timed)
	log.Debug("job command", "job", job.Name, "argv", strings.Join(argv, " "))

	start := time.Now()
	runErr := cmd.Run()
	outcome := Outcome{JobName: job.Name, WallSeconds: time.Since(start).Seconds()}

	switch e := runErr.(type) {
	case nil:
		outcome.Succeeded = true
	case *exec.ExitError:
		// The process ran and exited (or was killed on cancellation);
		// its outcome is real and worth recording.
		outcome.ExitCode = e.ExitCode()
	default:
		// With file-backed stdio a non-ExitError from Run means the
		// process never started.
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Outcome{}, fmt.Errorf("failed to start job %q: %w", job.Name, runErr)
	}
	if ctx.Err() != nil {
		outcome.Succeeded = false
		return outcome, ctx.Err()
	}

	if job.Timed {
		r.captureUsage(&outcome, job)
	}

	if outcome.Succeeded {
		log.Info("job completed", "job", job.Name, "wall", fmt.Sprintf("%.1fs", outcome.WallSeconds))
	} else {
		log.Warn("job failed", "job", job.Name, "exit", outcome.ExitCode,
			"log", filepath.Join(r.LogDir, job.Name+".err.log"))
	}

	return outcome, nil
}

// buildArgv expands placeholders, splits the command template with POSIX
// field-splitting rules, and prepends the usage probe for timed jobs.
func (r *Runner) buildArgv(job config.Job) ([]string, error) {
	expanded := strings.NewReplacer(
		"{cores}", strconv.Itoa(r.Cores),
		"{datadir}", r.DataDir,
	).Replace(job.Command)

	argv, err := shell.Fields(expanded, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to split command for job %q: %w", job.Name, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("job %q expands to an empty command", job.Name)
	}

	if !job.Timed {
		return argv, nil
	}

	probe := append([]string{r.Probe.Path}, r.Probe.Args...)
	probe = append(probe, "-o", r.reportPath(job))
	return append(probe, argv...), nil
}

// captureUsage parses the probe's report file into the outcome.
// Parse problems degrade the outcome, they never fail the run.
func (r *Runner) captureUsage(outcome *Outcome, job config.Job) {
	usage, degraded, err := ParseUsageFile(r.reportPath(job))
	if err != nil {
		log.Warn("usage report unreadable, metrics zero-filled", "job", job.Name, "err", err)
		outcome.Degraded = true
		return
	}
	if degraded {
		log.Warn("usage report partially parsed, some metrics zero-filled", "job", job.Name)
	}
	outcome.Usage = usage
	outcome.Degraded = degraded
}

func (r *Runner) reportPath(job config.Job) string {
	if filepath.IsAbs(job.Outfile) {
		return job.Outfile
	}
	return filepath.Join(r.LogDir, job.Outfile)
}

func (r *Runner) openLogs(jobName string) (*os.File, *os.File, error) {
	stdout, err := os.Create(filepath.Join(r.LogDir, jobName+".out.log"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create job log: %w", err)
	}
	stderr, err := os.Create(filepath.Join(r.LogDir, jobName+".err.log"))
	if err != nil {
		stdout.Close()
		return nil, nil, fmt.Errorf("failed to create job log: %w", err)
	}
	return stdout, stderr, nil
}
