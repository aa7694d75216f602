// SPDX-License-Identifier: MPL-2.0

// Package runner executes one pipeline job as an external process and
// reports a structured Outcome.
//
// A failing command is not an error: the non-zero exit status comes back as
// data (Succeeded=false) so the pipeline can apply its fail-fast policy as
// ordinary control flow. Only spawn-level faults (binary missing, context
// canceled) surface as errors.
//
// Timed jobs are wrapped with an external resource-usage probe (GNU time -v
// by default) whose report file is parsed defensively: fields that cannot be
// parsed zero-fill the outcome and set its Degraded flag instead of failing
// the run.
package runner
