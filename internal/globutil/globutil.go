// Package globutil expands "**" glob patterns by walking the directory
// tree, since filepath.Glob doesn't recurse. Shared by the fingerprinter and
// the content collector so both see identical file-set semantics.
package globutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// GlobDoubleStar expands a glob containing "**" by walking the directory
// tree rooted just above the "**" segment and matching the remainder
// against each candidate, mirroring the recursive-walk idiom the teacher
// uses for directory discovery (filepath.WalkDir, skip hidden dirs).
func GlobDoubleStar(pattern string) ([]string, error) {
	idx := strings.Index(pattern, "**")
	root := filepath.Dir(pattern[:idx])
	if root == "." && !strings.HasPrefix(pattern, "./") {
		root = "."
	}
	rest := strings.TrimPrefix(pattern[idx+2:], "/")

	var matches []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if rest == "" {
			matches = append(matches, path)
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if ok, _ := filepath.Match(rest, filepath.Base(rel)); ok {
			matches = append(matches, path)
			return nil
		}
		if ok, _ := filepath.Match(rest, rel); ok {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// DefaultStat returns (mtime unix nanos, size, ok) for a regular file, or
// ok=false for anything else (missing, directory, unreadable).
func DefaultStat(path string) (int64, int64, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, 0, false
	}
	return info.ModTime().UnixNano(), info.Size(), true
}
