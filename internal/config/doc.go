// SPDX-License-Identifier: MPL-2.0

// Package config loads and validates the benchmark suite configuration.
//
// A suite is a single TOML file with three sections:
//   - [settings]: required binaries, the benchmark data directory, and the
//     pipeline-level cleanup flag
//   - [time]: the resource-usage probe (path and arguments)
//   - [[job]]: the ordered pipeline of commands to run per revision
//
// All validation that can happen before a single job runs happens here:
// command templates are checked for unknown placeholders, job names for
// uniqueness, and required binaries for presence on PATH.
package config
