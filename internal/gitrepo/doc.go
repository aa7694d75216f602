// SPDX-License-Identifier: MPL-2.0

// Package gitrepo resolves and checks out revisions of the benchmarked
// source tree by shelling out to git.
//
// Resolution and checkout are separate operations: resolving a date or
// verifying a hash never mutates the work tree, so a failed resolution
// leaves the tree exactly as it was.
package gitrepo
