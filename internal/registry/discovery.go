package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/tsxbridge/internal/logging"
)

// Entry point candidates, in order of preference.
var entryFiles = []string{"index.tsx", "index.ts"}

// discover scans one source and returns the components it contains keyed by
// name. Symlinked directories are followed; each resolved directory is
// visited at most once per scan, which also breaks symlink cycles.
func discover(source Source, logger logging.Logger) map[string]*Component {
	found := make(map[string]*Component)
	visited := make(map[string]bool)

	root, err := filepath.EvalSymlinks(source.Path)
	if err != nil {
		logger.Warn(context.Background(), err, "cannot resolve component source", "path", source.Path)
		return found
	}
	visited[root] = true

	var walk func(dir, rel string)
	walk = func(dir, rel string) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			logger.Warn(context.Background(), err, "cannot read directory", "path", dir)
			return
		}

		for _, entry := range entries {
			childPath := filepath.Join(dir, entry.Name())
			if !isDirEntry(entry, childPath) {
				continue
			}

			resolved, err := filepath.EvalSymlinks(childPath)
			if err != nil || visited[resolved] {
				continue
			}
			visited[resolved] = true

			childRel := entry.Name()
			if rel != "" {
				childRel = rel + string(filepath.Separator) + entry.Name()
			}

			if entryPath := findEntry(childPath); entryPath != "" {
				name := componentName(source.Prefix, childRel)
				found[name] = &Component{
					Name:       name,
					PackageDir: childPath,
					EntryPath:  entryPath,
				}
			}

			walk(childPath, childRel)
		}
	}
	walk(source.Path, "")

	logger.Debug(context.Background(), "scanned component source",
		"path", source.Path, "components", len(found))
	return found
}

func isDirEntry(entry os.DirEntry, path string) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// findEntry returns the preferred entry point inside dir, or "".
func findEntry(dir string) string {
	for _, name := range entryFiles {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate
		}
	}
	return ""
}

// componentName turns a source-relative directory into a dotted name.
func componentName(prefix, rel string) string {
	name := strings.ReplaceAll(filepath.ToSlash(rel), "/", ".")
	if prefix != "" {
		return prefix + ":" + name
	}
	return name
}
