// Package walker enumerates the C# source files under an indexing root.
package walker

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileInfo holds metadata about a discovered source file. Path is absolute
// and is also the identity used across the index tables.
type FileInfo struct {
	Path          string
	SizeBytes     int64
	ModifiedNanos int64
}

// sourceExtensions are the extensions treated as C# source.
var sourceExtensions = map[string]bool{".cs": true}

// maxFileSize is the largest file considered (1 MB).
const maxFileSize = 1 << 20

// defaultIgnores are used when no .cinderignore file exists.
var defaultIgnores = []string{
	".git",
	".svn",
	".hg",
	"bin",
	"obj",
	"packages",
	"node_modules",
	".vs",
	".idea",
	".cinder",
	"TestResults",
}

// IsSourceFile reports whether path has a recognized source extension.
func IsSourceFile(path string) bool {
	return sourceExtensions[strings.ToLower(filepath.Ext(path))]
}

// Discover walks the tree rooted at root and returns every source file,
// sorted by path. Unreadable entries are skipped, not fatal; symlinks and
// empty or oversized files are ignored.
func Discover(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	ignores := loadIgnorePatterns(absRoot)

	var files []FileInfo
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors, keep walking
		}

		if d.IsDir() {
			if path == absRoot {
				return nil
			}
			rel, _ := filepath.Rel(absRoot, path)
			if matchesIgnore(d.Name(), filepath.ToSlash(rel), ignores) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !IsSourceFile(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxFileSize || info.Size() == 0 {
			return nil
		}

		files = append(files, FileInfo{
			Path:          path,
			SizeBytes:     info.Size(),
			ModifiedNanos: info.ModTime().UnixNano(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Stat fingerprints a single file the same way Discover does.
func Stat(path string) (FileInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Path:          abs,
		SizeBytes:     info.Size(),
		ModifiedNanos: info.ModTime().UnixNano(),
	}, nil
}

// loadIgnorePatterns reads .cinderignore from the root, creating it with the
// defaults on first run.
func loadIgnorePatterns(root string) []string {
	ignorePath := filepath.Join(root, ".cinderignore")

	f, err := os.Open(ignorePath)
	if err != nil {
		createDefaultIgnoreFile(ignorePath)
		return defaultIgnores
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if len(patterns) == 0 {
		return defaultIgnores
	}
	return patterns
}

func createDefaultIgnoreFile(path string) {
	var b strings.Builder
	b.WriteString("# Directories to exclude from indexing.\n")
	b.WriteString("# One pattern per line. Supports exact names and globs.\n\n")
	for _, p := range defaultIgnores {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	// Best-effort write; the defaults are still used in memory if it fails.
	os.WriteFile(path, []byte(b.String()), 0o644)
}

// matchesIgnore checks a directory name and relative path against the ignore
// patterns.
func matchesIgnore(name, relPath string, patterns []string) bool {
	for _, p := range patterns {
		if name == p {
			return true
		}
		if strings.HasPrefix(relPath, p) {
			return true
		}
		if matched, _ := filepath.Match(p, relPath); matched {
			return true
		}
		if matched, _ := filepath.Match(p, name); matched {
			return true
		}
	}
	return false
}
