// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"runtime"

	"github.com/pelletier/go-toml/v2"
)

// placeholders are the substitutions available to command templates.
// Anything else in braces is a configuration error.
var placeholders = map[string]bool{
	"cores":   true,
	"datadir": true,
}

// A leading $ marks a shell variable expansion, not a template.
var placeholderPattern = regexp.MustCompile(`(\$?)\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Load reads and validates a suite file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse suite file %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Time.Path == "" {
		c.Time.Path = DefaultProbePath()
	}
	if len(c.Time.Args) == 0 {
		c.Time.Args = []string{"-v"}
	}
	for i := range c.Jobs {
		if c.Jobs[i].Outfile == "" {
			c.Jobs[i].Outfile = c.Jobs[i].Name + "-usage.txt"
		}
	}
}

// DefaultProbePath returns the GNU time binary for the current platform.
func DefaultProbePath() string {
	if runtime.GOOS == "darwin" {
		return "gtime"
	}
	return "/usr/bin/time"
}

// Validate checks the suite for structural errors and unknown placeholders.
// It runs at load time so a bad template fails before any job executes.
func (c *Config) Validate() error {
	if len(c.Jobs) == 0 {
		return fmt.Errorf("%w: no jobs configured", ErrInvalidSuite)
	}

	seen := make(map[string]bool, len(c.Jobs))
	for _, job := range c.Jobs {
		if job.Name == "" {
			return fmt.Errorf("%w: job with empty name", ErrInvalidSuite)
		}
		if seen[job.Name] {
			return fmt.Errorf("%w: duplicate job name %q", ErrInvalidSuite, job.Name)
		}
		seen[job.Name] = true

		if job.Command == "" {
			return fmt.Errorf("%w: job %q has an empty command", ErrInvalidSuite, job.Name)
		}
		for _, m := range placeholderPattern.FindAllStringSubmatch(job.Command, -1) {
			if m[1] == "$" {
				continue
			}
			if !placeholders[m[2]] {
				return &UnresolvedPlaceholderError{Job: job.Name, Placeholder: m[2]}
			}
		}
	}

	return nil
}

// CheckBinaries verifies every settings.binaries entry resolves on PATH.
// Called before any checkout so a misconfigured host fails without touching
// the source tree. All missing binaries are reported, not just the first.
func (c *Config) CheckBinaries() error {
	var errs []error
	for _, bin := range c.Settings.Binaries {
		if _, err := exec.LookPath(bin); err != nil {
			errs = append(errs, &MissingBinaryError{Binary: bin})
		}
	}
	return errors.Join(errs...)
}
