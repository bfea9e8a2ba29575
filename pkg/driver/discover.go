package driver

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/src-d/enry/v2"

	"github.com/Sumatoshi-tech/pyqualify/pkg/gitlib"
)

const (
	extSource = ".py"
	extStub   = ".pyi"

	// shebangProbe is how much of an extensionless file is read to look for
	// a python shebang.
	shebangProbe = 256

	languagePython = "Python"
)

// Discover expands paths into the sorted, de-duplicated list of Python
// files to process. Explicit file arguments are always kept; directories
// are walked with the exclude patterns, the stub setting and vendor
// filtering applied. With GitChanged set, only files git reports as changed
// survive.
func (d *Driver) Discover(ctx context.Context, paths []string) ([]string, error) {
	seen := make(map[string]bool)

	for _, root := range paths {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", root, err)
		}

		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPath, err)
		}

		if !info.IsDir() {
			seen[abs] = true

			continue
		}

		err = d.walk(ctx, abs, seen)
		if err != nil {
			return nil, err
		}
	}

	if d.opts.GitChanged {
		err := d.keepChanged(ctx, paths, seen)
		if err != nil {
			return nil, err
		}
	}

	files := make([]string, 0, len(seen))
	for path := range seen {
		files = append(files, path)
	}

	sort.Strings(files)

	return files, nil
}

func (d *Driver) walk(ctx context.Context, root string, seen map[string]bool) error {
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if path != root && (d.Excluded(rel) || enry.IsVendor(rel+"/")) {
				return filepath.SkipDir
			}

			return nil
		}

		if !entry.Type().IsRegular() || d.Excluded(rel) {
			return nil
		}

		if d.isPython(path) {
			seen[path] = true
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", root, err)
	}

	return nil
}

// Excluded reports whether a slash-separated path relative to a walk root
// matches an exclude pattern. Patterns match the whole relative path, its
// base name, or any leading directory.
func (d *Driver) Excluded(rel string) bool {
	base := filepath.Base(rel)

	for _, pattern := range d.opts.Exclude {
		pattern = strings.TrimSuffix(filepath.ToSlash(pattern), "/")

		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}

		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}

		for dir := filepath.Dir(rel); dir != "." && dir != "/"; dir = filepath.Dir(dir) {
			if ok, _ := filepath.Match(pattern, dir); ok {
				return true
			}
		}
	}

	return false
}

// isPython decides by extension, and by shebang for extensionless files.
func (d *Driver) isPython(path string) bool {
	switch filepath.Ext(path) {
	case extSource:
		return true
	case extStub:
		return d.opts.IncludeStubs
	case "":
		return hasPythonShebang(path)
	}

	return false
}

func hasPythonShebang(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, shebangProbe)

	n, err := io.ReadFull(f, head)
	if err != nil && n == 0 {
		return false
	}

	lang, _ := enry.GetLanguageByShebang(head[:n])

	return lang == languagePython
}

// keepChanged drops every discovered file git does not report as changed.
func (d *Driver) keepChanged(ctx context.Context, paths []string, seen map[string]bool) error {
	start := "."
	if len(paths) > 0 {
		start = paths[0]
	}

	if info, err := os.Stat(start); err == nil && !info.IsDir() {
		start = filepath.Dir(start)
	}

	repo, err := gitlib.Discover(start)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGit, err)
	}
	defer repo.Free()

	changed, err := repo.ChangedFiles(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGit, err)
	}

	keep := make(map[string]bool, len(changed))
	for _, path := range changed {
		keep[path] = true
	}

	for path := range seen {
		resolved, evalErr := filepath.EvalSymlinks(path)
		if evalErr != nil {
			resolved = path
		}

		if !keep[path] && !keep[resolved] {
			delete(seen, path)
		}
	}

	return nil
}
