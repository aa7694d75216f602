// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingBinary is the sentinel error wrapped by MissingBinaryError.
	ErrMissingBinary = errors.New("required binary not found")
	// ErrUnresolvedPlaceholder is the sentinel error wrapped by UnresolvedPlaceholderError.
	ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")
	// ErrInvalidSuite is returned for structural problems in the suite file
	// (duplicate job names, empty commands, no jobs at all).
	ErrInvalidSuite = errors.New("invalid suite")
)

type (
	// Config is the fully loaded and validated benchmark suite.
	Config struct {
		Settings Settings `toml:"settings"`
		Time     Probe    `toml:"time"`
		Jobs     []Job    `toml:"job"`
	}

	// Settings holds suite-wide options.
	Settings struct {
		// Binaries are executables that must resolve on PATH before any
		// work starts. Checked by CheckBinaries.
		Binaries []string `toml:"binaries"`
		// DataDir is the benchmark data directory substituted for the
		// {datadir} placeholder. Empty means a fresh temp directory per run.
		DataDir string `toml:"data_dir"`
		// Cleanup erases the data directory after each pipeline run so
		// every revision starts from a comparable state.
		Cleanup bool `toml:"cleanup"`
		// CleanSource runs a git clean on the source tree before each
		// pipeline so stale build artifacts cannot bias timed steps.
		CleanSource bool `toml:"clean_source"`
	}

	// Probe configures the external resource-usage probe used for timed jobs.
	Probe struct {
		// Path to the probe binary. Empty selects a platform default
		// (GNU time: /usr/bin/time on Linux, gtime on macOS).
		Path string `toml:"path"`
		// Args passed to the probe before the report-file and command
		// arguments. Defaults to ["-v"].
		Args []string `toml:"args"`
	}

	// Job is one step of the benchmark pipeline.
	Job struct {
		// Name identifies the job; unique within a suite.
		Name string `toml:"name"`
		// Command is the command template. It may contain {cores} and
		// {datadir} placeholders, expanded at run time.
		Command string `toml:"command"`
		// Env holds KEY=VALUE overrides applied on top of the inherited
		// environment, for this job's invocation only.
		Env []string `toml:"env"`
		// Timed wraps the command with the usage probe and records CPU
		// and memory usage. Untimed jobs record exit status and wall
		// time only.
		Timed bool `toml:"timed"`
		// Outfile is where the probe writes its report. Defaulted to
		// "<name>-usage.txt"; resolved relative to the run's scratch
		// directory by the runner.
		Outfile string `toml:"outfile"`
	}

	// MissingBinaryError reports a required binary that did not resolve on
	// PATH. It wraps ErrMissingBinary for errors.Is() compatibility.
	MissingBinaryError struct {
		Binary string
	}

	// UnresolvedPlaceholderError reports an unknown placeholder in a job's
	// command template. It wraps ErrUnresolvedPlaceholder for errors.Is().
	UnresolvedPlaceholderError struct {
		Job         string
		Placeholder string
	}
)

// Error implements the error interface.
func (e *MissingBinaryError) Error() string {
	return fmt.Sprintf("required binary %q not found on PATH", e.Binary)
}

// Unwrap returns ErrMissingBinary so callers can use errors.Is.
func (e *MissingBinaryError) Unwrap() error { return ErrMissingBinary }

// Error implements the error interface.
func (e *UnresolvedPlaceholderError) Error() string {
	return fmt.Sprintf("job %q: unknown placeholder {%s} in command template", e.Job, e.Placeholder)
}

// Unwrap returns ErrUnresolvedPlaceholder so callers can use errors.Is.
func (e *UnresolvedPlaceholderError) Unwrap() error { return ErrUnresolvedPlaceholder }
