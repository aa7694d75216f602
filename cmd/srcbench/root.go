// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for srcbench.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables debug logging
	verbose bool
	// cfgFile allows specifying a custom suite file
	cfgFile string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "srcbench",
		Short: "A long-running benchmark orchestrator for source trees",
		Long: TitleStyle.Render("srcbench") + SubtitleStyle.Render(" - benchmark a source tree across its history") + `

srcbench checks out revisions of a git-controlled source tree, runs a
configured pipeline of build and benchmark jobs against each one, and
records per-job resource usage (wall time, CPU time, peak memory) in a
local SQLite database for later comparison.

Jobs are defined in a TOML suite file and run strictly in order; timed
jobs are wrapped with GNU time as the resource-usage probe.

` + SubtitleStyle.Render("Examples:") + `
  srcbench run once ~/src/project 3f5c2a8b        Benchmark one commit
  srcbench run daily ~/src/project 2024-01-01 2024-03-31
                                                  Unattended campaign, one
                                                  revision per day`,
	}
)

func init() {
	cobra.OnInitialize(initRootConfig)

	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "suite file (default ./srcbench.toml)")
	rootCmd.PersistentFlags().String("bench-data-dir", "", "directory for the results database (default ~/.config/srcbench)")
	rootCmd.PersistentFlags().String("db-name", "bench.sqlite", "results database file name")

	viper.SetEnvPrefix("SRCBENCH")
	viper.AutomaticEnv()
	cobra.CheckErr(viper.BindPFlag("bench_data_dir", rootCmd.PersistentFlags().Lookup("bench-data-dir")))
	cobra.CheckErr(viper.BindPFlag("db_name", rootCmd.PersistentFlags().Lookup("db-name")))

	// Add subcommands
	rootCmd.AddCommand(runCmd)
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// fang wires os.Interrupt into the command context, so an operator
	// Ctrl-C cancels the in-flight job and lets the engine persist the
	// partial run record before exiting.
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// initRootConfig applies logging and default paths before any RunE runs.
func initRootConfig() {
	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	if cfgFile == "" {
		cfgFile = "srcbench.toml"
	}
	if viper.GetString("bench_data_dir") == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			log.Warn("could not resolve user config dir, using cwd", "err", err)
			base = "."
		}
		viper.Set("bench_data_dir", filepath.Join(base, "srcbench"))
	}
}
