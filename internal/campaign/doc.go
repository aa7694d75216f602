// SPDX-License-Identifier: MPL-2.0

// Package campaign drives multi-day unattended benchmark runs over a
// calendar date range.
//
// Each day resolves to the last commit of that day and is skipped when the
// commit is already benchmarked, which both collapses commit-free days onto
// one run and makes an interrupted campaign resumable: re-running the same
// range re-skips completed days. A failure on one day never aborts the
// campaign — a single bad revision must not forfeit weeks of unattended
// benchmarking.
package campaign
