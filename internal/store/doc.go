// SPDX-License-Identifier: MPL-2.0

// Package store persists run records in a local SQLite database, keyed by
// commit hash.
//
// Put replaces any existing record for the same commit in a single
// transaction, so a record is either fully visible or not visible at all —
// re-running a revision is last-write-wins, no history of repeated runs is
// kept. The store assumes a single writer on a single host.
package store
