package gitlib

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	git2go "github.com/libgit2/git2go/v34"
)

// changedMask selects entries whose content differs from HEAD.
const changedMask = git2go.StatusIndexNew |
	git2go.StatusIndexModified |
	git2go.StatusIndexRenamed |
	git2go.StatusIndexTypeChange |
	git2go.StatusWtNew |
	git2go.StatusWtModified |
	git2go.StatusWtRenamed |
	git2go.StatusWtTypeChange

// ChangedFiles lists the absolute paths of worktree files that are staged,
// modified or untracked. Deleted files are left out. Paths are sorted.
func (r *Repository) ChangedFiles(ctx context.Context) ([]string, error) {
	workdir, err := r.Workdir()
	if err != nil {
		return nil, err
	}

	opts := &git2go.StatusOptions{
		Show: git2go.StatusShowIndexAndWorkdir,
		Flags: git2go.StatusOptIncludeUntracked |
			git2go.StatusOptRecurseUntrackedDirs |
			git2go.StatusOptRenamesHeadToIndex,
	}

	list, err := r.repo.StatusList(opts)
	if err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}
	defer list.Free()

	count, err := list.EntryCount()
	if err != nil {
		return nil, fmt.Errorf("git status count: %w", err)
	}

	seen := make(map[string]bool, count)

	for idx := range count {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		entry, entryErr := list.ByIndex(idx)
		if entryErr != nil {
			return nil, fmt.Errorf("git status entry %d: %w", idx, entryErr)
		}

		// A file removed from the worktree has nothing left to rewrite.
		if entry.Status&changedMask == 0 || entry.Status&git2go.StatusWtDeleted != 0 {
			continue
		}

		rel := entryPath(entry)
		if rel == "" {
			continue
		}

		seen[filepath.Join(workdir, filepath.FromSlash(rel))] = true
	}

	out := make([]string, 0, len(seen))
	for path := range seen {
		out = append(out, path)
	}

	sort.Strings(out)

	return out, nil
}

// entryPath prefers the worktree side, which carries the newest name.
func entryPath(entry git2go.StatusEntry) string {
	if entry.IndexToWorkdir.NewFile.Path != "" {
		return entry.IndexToWorkdir.NewFile.Path
	}

	if entry.HeadToIndex.NewFile.Path != "" {
		return entry.HeadToIndex.NewFile.Path
	}

	return ""
}
