// SPDX-License-Identifier: MPL-2.0

// Package pipeline runs the configured job sequence against one resolved
// revision and produces a RunRecord.
//
// Execution is strictly sequential and fail-fast: later jobs depend on the
// artifacts of earlier ones (build before benchmark), so the first failure
// stops the pipeline and the record keeps only the outcomes collected so
// far — a strict prefix of the configured job list.
package pipeline
