// SPDX-License-Identifier: MPL-2.0

package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// ErrRevisionNotFound is the sentinel error wrapped by RevisionNotFoundError.
	ErrRevisionNotFound = errors.New("revision not found")
	// ErrNoCommitBeforeDate is the sentinel error wrapped by NoCommitBeforeDateError.
	ErrNoCommitBeforeDate = errors.New("no commit before date")
	// ErrNotARepository is returned by Verify when the directory is not a
	// git work tree.
	ErrNotARepository = errors.New("not a git repository")
)

type (
	// Repo is a source tree under git version control.
	Repo struct {
		// Dir is the root of the work tree.
		Dir string

		// ref is the branch date resolution runs against. Captured at
		// Open time: Checkout detaches HEAD, so HEAD itself stops
		// seeing commits newer than whatever was last checked out.
		ref string
	}

	// ResolvedRevision is the concrete revision a benchmark run is keyed by.
	ResolvedRevision struct {
		// Hash is the full commit hash.
		Hash string
		// CommitDate is the committer timestamp.
		CommitDate time.Time
	}

	// RevisionNotFoundError reports a commit hash that does not exist in
	// the repository. It wraps ErrRevisionNotFound for errors.Is().
	RevisionNotFoundError struct {
		Hash string
	}

	// NoCommitBeforeDateError reports a date that predates the
	// repository's first commit. It wraps ErrNoCommitBeforeDate.
	NoCommitBeforeDateError struct {
		Date time.Time
	}
)

// Error implements the error interface.
func (e *RevisionNotFoundError) Error() string {
	return fmt.Sprintf("revision %q not found in repository", e.Hash)
}

// Unwrap returns ErrRevisionNotFound so callers can use errors.Is.
func (e *RevisionNotFoundError) Unwrap() error { return ErrRevisionNotFound }

// Error implements the error interface.
func (e *NoCommitBeforeDateError) Error() string {
	return fmt.Sprintf("no commit on or before %s", e.Date.Format("2006-01-02"))
}

// Unwrap returns ErrNoCommitBeforeDate so callers can use errors.Is.
func (e *NoCommitBeforeDateError) Unwrap() error { return ErrNoCommitBeforeDate }

// Open verifies dir is a git work tree and returns a Repo for it.
func Open(dir string) (*Repo, error) {
	r := &Repo{Dir: dir}
	ctx := context.Background()
	out, err := r.git(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil || strings.TrimSpace(out) != "true" {
		return nil, fmt.Errorf("%w: %s", ErrNotARepository, dir)
	}
	if r.ref, err = r.baseRef(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// baseRef names the branch the repository was opened on. A detached work
// tree (left behind by an interrupted run) falls back to the remote's
// default branch.
func (r *Repo) baseRef(ctx context.Context) (string, error) {
	out, err := r.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve current branch: %w", err)
	}
	if ref := strings.TrimSpace(out); ref != "HEAD" {
		return ref, nil
	}
	out, err = r.git(ctx, "rev-parse", "--abbrev-ref", "origin/HEAD")
	if err != nil {
		return "", fmt.Errorf("work tree is detached and origin/HEAD is not set: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// git runs a git subcommand against the repository and returns its stdout.
func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", r.Dir}, args...)...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}

// Fetch syncs the repository with its remotes.
func (r *Repo) Fetch(ctx context.Context) error {
	if _, err := r.git(ctx, "fetch", "--all", "--tags", "--prune"); err != nil {
		return fmt.Errorf("failed to fetch repository: %w", err)
	}
	log.Debug("fetched repository", "dir", r.Dir)
	return nil
}

// ResolveCommit verifies hash names a commit in the repository and returns
// the resolved revision. The work tree is not modified.
func (r *Repo) ResolveCommit(ctx context.Context, hash string) (ResolvedRevision, error) {
	out, err := r.git(ctx, "rev-parse", "--verify", hash+"^{commit}")
	if err != nil {
		return ResolvedRevision{}, &RevisionNotFoundError{Hash: hash}
	}
	full := strings.TrimSpace(out)

	date, err := r.commitDate(ctx, full)
	if err != nil {
		return ResolvedRevision{}, err
	}
	return ResolvedRevision{Hash: full, CommitDate: date}, nil
}

// ResolveDate returns the most recent commit on the branch the repository
// was opened on whose commit timestamp falls on or before 23:59:59 UTC of
// day's calendar day. Resolution is independent of where HEAD sits, so a
// Checkout between calls cannot shadow newer commits. The work tree is not
// modified, even on failure.
func (r *Repo) ResolveDate(ctx context.Context, day time.Time) (ResolvedRevision, error) {
	endOfDay := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, time.UTC)
	out, err := r.git(ctx, "rev-list", "-n", "1",
		"--before", endOfDay.Format("2006-01-02 15:04:05 -0700"), r.ref)
	if err != nil {
		return ResolvedRevision{}, fmt.Errorf("failed to list commits before %s: %w",
			day.Format("2006-01-02"), err)
	}

	hash := strings.TrimSpace(out)
	if hash == "" {
		return ResolvedRevision{}, &NoCommitBeforeDateError{Date: day}
	}

	date, err := r.commitDate(ctx, hash)
	if err != nil {
		return ResolvedRevision{}, err
	}
	return ResolvedRevision{Hash: hash, CommitDate: date}, nil
}

// commitDate returns the committer timestamp of a commit.
func (r *Repo) commitDate(ctx context.Context, hash string) (time.Time, error) {
	out, err := r.git(ctx, "show", "-s", "--format=%ct", hash)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read commit date of %s: %w", hash, err)
	}
	unix, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse commit date of %s: %w", hash, err)
	}
	return time.Unix(unix, 0).UTC(), nil
}

// Checkout detaches the work tree at the given commit.
func (r *Repo) Checkout(ctx context.Context, hash string) error {
	if _, err := r.git(ctx, "checkout", hash, "--detach"); err != nil {
		return fmt.Errorf("failed to check out %s: %w", hash, err)
	}
	log.Info("checked out revision", "commit", shortHash(hash))
	return nil
}

// Clean removes untracked files and build artifacts from the work tree so
// a run cannot be biased by leftovers from a previous revision.
func (r *Repo) Clean(ctx context.Context) error {
	if _, err := r.git(ctx, "clean", "-dfx"); err != nil {
		return fmt.Errorf("failed to clean work tree: %w", err)
	}
	return nil
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
