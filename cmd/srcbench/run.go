// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"srcbench-cli/internal/campaign"
	"srcbench-cli/internal/config"
	"srcbench-cli/internal/gitrepo"
	"srcbench-cli/internal/pipeline"
	"srcbench-cli/internal/runner"
	"srcbench-cli/internal/store"
)

const dateLayout = "2006-01-02"

var (
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark pipeline",
	}

	runOnceCmd = &cobra.Command{
		Use:   "once <src-dir> <commit>",
		Short: "Benchmark a single commit",
		Args:  cobra.ExactArgs(2),
		RunE:  runOnce,
	}

	runDailyCmd = &cobra.Command{
		Use:   "daily <src-dir> <start> <end>",
		Short: "Benchmark one revision per day over a date range",
		Long: `Benchmark the last commit of each calendar day from start to end
(inclusive, YYYY-MM-DD). Days whose commit is already benchmarked are
skipped, so an interrupted campaign can be resumed by re-running the
same range. A failure on one day does not abort the campaign.`,
		Args: cobra.ExactArgs(3),
		RunE: runDaily,
	}
)

func init() {
	runCmd.AddCommand(runOnceCmd)
	runCmd.AddCommand(runDailyCmd)
}

// engine bundles the wired-up components for one invocation.
type engine struct {
	repo     *gitrepo.Repo
	store    *store.Store
	executor *pipeline.Executor

	scratchDataDir string // non-empty when the data dir is a temp dir we own
}

// newEngine loads the suite and wires resolver, runner, executor and store.
// The binary pre-flight runs before the repository is opened: a
// misconfigured host must fail before anything touches the source tree.
func newEngine(srcDir string) (*engine, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.CheckBinaries(); err != nil {
		return nil, err
	}
	if err := checkProbe(cfg); err != nil {
		return nil, err
	}

	repo, err := gitrepo.Open(srcDir)
	if err != nil {
		return nil, err
	}

	benchDataDir := viper.GetString("bench_data_dir")
	st, err := store.Open(benchDataDir, viper.GetString("db_name"))
	if err != nil {
		return nil, err
	}

	e := &engine{repo: repo, store: st}

	dataDir := cfg.Settings.DataDir
	if dataDir == "" {
		dataDir, err = os.MkdirTemp("", "srcbench-data-")
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		e.scratchDataDir = dataDir
	}

	logDir := filepath.Join(benchDataDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		e.close()
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}

	log.Info("engine ready", "src", srcDir, "datadir", dataDir, "cores", runtime.NumCPU())

	e.executor = &pipeline.Executor{
		Runner:  runner.New(cfg, srcDir, dataDir, logDir, runtime.NumCPU()),
		Jobs:    cfg.Jobs,
		Cleanup: cfg.Settings.Cleanup,
		DataDir: dataDir,
	}
	if cfg.Settings.CleanSource {
		e.executor.PreClean = repo
	}
	return e, nil
}

// checkProbe verifies the usage probe resolves when any job needs it.
func checkProbe(cfg *config.Config) error {
	for _, job := range cfg.Jobs {
		if job.Timed {
			if _, err := exec.LookPath(cfg.Time.Path); err != nil {
				return &config.MissingBinaryError{Binary: cfg.Time.Path}
			}
			return nil
		}
	}
	return nil
}

func (e *engine) close() {
	if e.scratchDataDir != "" {
		if err := os.RemoveAll(e.scratchDataDir); err != nil {
			log.Warn("failed to remove scratch data dir", "dir", e.scratchDataDir, "err", err)
		}
	}
	if err := e.store.Close(); err != nil {
		log.Warn("failed to close results database", "err", err)
	}
}

func runOnce(cmd *cobra.Command, args []string) error {
	srcDir, commit := args[0], args[1]

	e, err := newEngine(srcDir)
	if err != nil {
		return err
	}
	defer e.close()

	ctx := cmd.Context()
	if err := e.repo.Fetch(ctx); err != nil {
		return err
	}

	rev, err := e.repo.ResolveCommit(ctx, commit)
	if err != nil {
		return err
	}
	if err := e.repo.Checkout(ctx, rev.Hash); err != nil {
		return err
	}

	record, execErr := e.executor.Execute(ctx, rev)
	if len(record.Outcomes) > 0 || execErr == nil {
		if err := e.store.Put(record); err != nil {
			return err
		}
	}
	printRecord(cmd, record)

	if execErr != nil {
		return execErr
	}
	if record.Failed() {
		return &ExitError{Code: 1, Err: fmt.Errorf("pipeline failed at job %q",
			record.Outcomes[len(record.Outcomes)-1].JobName)}
	}
	return nil
}

func runDaily(cmd *cobra.Command, args []string) error {
	srcDir := args[0]
	start, err := time.Parse(dateLayout, args[1])
	if err != nil {
		return fmt.Errorf("invalid start date %q (want YYYY-MM-DD): %w", args[1], err)
	}
	end, err := time.Parse(dateLayout, args[2])
	if err != nil {
		return fmt.Errorf("invalid end date %q (want YYYY-MM-DD): %w", args[2], err)
	}
	if end.Before(start) {
		return fmt.Errorf("end date %s is before start date %s", args[2], args[1])
	}

	e, err := newEngine(srcDir)
	if err != nil {
		return err
	}
	defer e.close()

	ctx := cmd.Context()
	if err := e.repo.Fetch(ctx); err != nil {
		return err
	}

	scheduler := &campaign.Scheduler{Resolver: e.repo, Executor: e.executor, Store: e.store}
	summary, runErr := scheduler.RunDaily(ctx, start, end)
	printSummary(cmd, summary)

	if errors.Is(runErr, context.Canceled) {
		fmt.Fprintln(cmd.OutOrStdout(), WarningStyle.Render("campaign interrupted; re-run the same range to resume"))
		return &ExitError{Code: 130, Err: runErr}
	}
	return runErr
}

func printRecord(cmd *cobra.Command, record pipeline.RunRecord) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, TitleStyle.Render("run "+record.Revision.Hash))
	for _, o := range record.Outcomes {
		status := SuccessStyle.Render("ok")
		if !o.Succeeded {
			status = ErrorStyle.Render(fmt.Sprintf("exit %d", o.ExitCode))
		}
		line := fmt.Sprintf("  %-20s %-8s wall %8.1fs", o.JobName, status, o.WallSeconds)
		if o.Usage.MaxRSSBytes > 0 {
			line += fmt.Sprintf("  cpu %8.1fs  rss %6d MiB",
				o.Usage.UserSeconds+o.Usage.SystemSeconds, o.Usage.MaxRSSBytes>>20)
		}
		if o.Degraded {
			line += WarningStyle.Render("  (metrics degraded)")
		}
		fmt.Fprintln(out, line)
	}
}

func printSummary(cmd *cobra.Command, summary campaign.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, TitleStyle.Render("campaign summary"))
	for _, d := range summary.Days {
		var status string
		switch d.Status {
		case campaign.StatusRan:
			status = SuccessStyle.Render(string(d.Status))
		case campaign.StatusFailed:
			status = ErrorStyle.Render(string(d.Status))
		default:
			status = WarningStyle.Render(string(d.Status))
		}
		line := fmt.Sprintf("  %s  %-18s", d.Day.Format(dateLayout), status)
		if d.Commit != "" {
			line += " " + SubtitleStyle.Render(shortHash(d.Commit))
		}
		if d.Reason != "" {
			line += "  " + SubtitleStyle.Render(d.Reason)
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "%d ran, %d failed, %d skipped\n",
		summary.Count(campaign.StatusRan),
		summary.Count(campaign.StatusFailed),
		summary.Count(campaign.StatusSkippedDuplicate)+summary.Count(campaign.StatusSkippedNoCommit))
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
