// Package gitlib answers worktree questions about the repository holding the
// files being rewritten, through libgit2.
package gitlib

import (
	"errors"
	"fmt"
	"path/filepath"

	git2go "github.com/libgit2/git2go/v34"
)

// ErrBareRepository is returned for a repository without a worktree.
var ErrBareRepository = errors.New("repository has no worktree")

// Repository wraps a libgit2 repository.
type Repository struct {
	repo *git2go.Repository
	path string
}

// OpenRepository opens the git repository at path.
func OpenRepository(path string) (*Repository, error) {
	repo, err := git2go.OpenRepository(path)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	return &Repository{repo: repo, path: path}, nil
}

// Discover opens the repository containing start, walking up the directory
// tree as git does.
func Discover(start string) (*Repository, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", start, err)
	}

	gitDir, err := git2go.Discover(abs, false, nil)
	if err != nil {
		return nil, fmt.Errorf("discover repository from %s: %w", abs, err)
	}

	return OpenRepository(gitDir)
}

// Path returns the path the repository was opened with.
func (r *Repository) Path() string {
	return r.path
}

// Workdir returns the absolute worktree root.
func (r *Repository) Workdir() (string, error) {
	if r.repo.IsBare() {
		return "", ErrBareRepository
	}

	return filepath.Clean(r.repo.Workdir()), nil
}

// Free releases the repository resources.
func (r *Repository) Free() {
	if r.repo != nil {
		r.repo.Free()
		r.repo = nil
	}
}
