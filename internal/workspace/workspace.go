// Package workspace wraps the mutable project checkout the loop
// operates on: environment preparation, dirtiness checks, and commits.
package workspace

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/drover-dev/drover/internal/errors"
	"github.com/drover-dev/drover/internal/guard"
)

// CommitResult reports the outcome of a commit attempt.
type CommitResult struct {
	// Committed is false when the tree was clean and there was nothing
	// to commit; that is a normal outcome, not an error.
	Committed bool
	// Hash is the abbreviated commit hash when Committed is true.
	Hash string
}

// Workspace operates on one project checkout. Only the orchestration
// loop mutates it; concurrent use is not supported.
type Workspace struct {
	dir        string
	initScript string

	authorName  string
	authorEmail string
}

// New creates a workspace over the given project directory.
func New(dir, initScript string) *Workspace {
	return &Workspace{
		dir:         dir,
		initScript:  initScript,
		authorName:  "drover",
		authorEmail: "drover@localhost",
	}
}

// Dir returns the project directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Prepare runs the configured initialization script. It is called once
// per loop start, not per feature; a failure means the environment is
// broken and the whole run must halt.
func (w *Workspace) Prepare(ctx context.Context) error {
	if w.initScript == "" {
		return nil
	}
	if err := guard.Check(w.initScript); err != nil {
		return errors.NewEnvironmentError("init script rejected by command guard", err)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", w.initScript)
	cmd.Dir = w.dir
	if out, err := cmd.CombinedOutput(); err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			err = fmt.Errorf("%w: %s", err, detail)
		}
		return errors.NewEnvironmentError(fmt.Sprintf("init script %q failed", w.initScript), err)
	}

	return nil
}

// IsDirty reports whether the working tree has uncommitted changes.
func (w *Workspace) IsDirty() (bool, error) {
	wt, err := w.worktree()
	if err != nil {
		return false, err
	}

	status, err := wt.Status()
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeWorkspaceCommit, "read worktree status", err)
	}

	return !status.IsClean(), nil
}

// Commit stages all outstanding changes and commits them with the given
// message. A clean tree yields CommitResult{Committed: false}.
func (w *Workspace) Commit(message string) (*CommitResult, error) {
	dirty, err := w.IsDirty()
	if err != nil {
		return nil, err
	}
	if !dirty {
		return &CommitResult{Committed: false}, nil
	}

	wt, err := w.worktree()
	if err != nil {
		return nil, err
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, errors.Wrap(errors.ErrCodeWorkspaceCommit, "stage changes", err).
			WithClass(errors.ClassPermanent)
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  w.authorName,
			Email: w.authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeWorkspaceCommit, "commit changes", err).
			WithClass(errors.ClassPermanent)
	}

	return &CommitResult{Committed: true, Hash: hash.String()[:12]}, nil
}

// HeadHash returns the abbreviated hash of the current HEAD commit, or
// empty string when the repository has no commits yet.
func (w *Workspace) HeadHash() (string, error) {
	repo, err := w.repo()
	if err != nil {
		return "", err
	}

	head, err := repo.Head()
	if err != nil {
		return "", nil
	}

	return head.Hash().String()[:12], nil
}

func (w *Workspace) repo() (*git.Repository, error) {
	repo, err := git.PlainOpen(w.dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeWorkspaceNotGitRepo,
			fmt.Sprintf("%s is not a git repository", w.dir), err).
			WithClass(errors.ClassEnvironment).
			WithSuggestion("Run 'git init' in the project directory first")
	}
	return repo, nil
}

func (w *Workspace) worktree() (*git.Worktree, error) {
	repo, err := w.repo()
	if err != nil {
		return nil, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeWorkspaceCommit, "open worktree", err)
	}
	return wt, nil
}
