package pipeline

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// stateDir holds configuration, catalogs and the store; it is never scanned.
const stateDir = ".callmap"

// compiledPattern holds both the pattern string and compiled glob
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// Discovery selects the artifacts of a batch with include and ignore globs
// matched against slash-separated paths relative to the root.
type Discovery struct {
	rootDir        string
	includePattern []compiledPattern
	ignorePatterns []compiledPattern
}

// NewDiscovery compiles the patterns. An empty include list selects every file.
func NewDiscovery(rootDir string, include, ignore []string) (*Discovery, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}
	d := &Discovery{rootDir: abs}

	for _, pattern := range include {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		d.includePattern = append(d.includePattern, compiledPattern{pattern: pattern, glob: g})
	}

	for _, pattern := range ignore {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		d.ignorePatterns = append(d.ignorePatterns, compiledPattern{pattern: pattern, glob: g})
	}

	return d, nil
}

// Root returns the absolute scan root.
func (d *Discovery) Root() string { return d.rootDir }

// Rel returns path relative to the root with forward slashes.
func (d *Discovery) Rel(path string) string {
	rel, err := filepath.Rel(d.rootDir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Discover walks the root and returns the selected regular files, sorted.
// Ignored directories are not descended into.
func (d *Discovery) Discover() ([]string, error) {
	files := []string{}

	err := filepath.WalkDir(d.rootDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath := d.Rel(path)
		if entry.IsDir() {
			if path != d.rootDir && d.shouldIgnore(relPath) {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		if d.Match(path) {
			files = append(files, path)
		}
		return nil
	})

	sort.Strings(files)
	return files, err
}

// Match reports whether the file at path belongs to the batch.
func (d *Discovery) Match(path string) bool {
	relPath := d.Rel(path)
	if relPath == ".." || strings.HasPrefix(relPath, "../") {
		return false
	}
	if d.shouldIgnore(relPath) {
		return false
	}
	if len(d.includePattern) == 0 {
		return true
	}
	return matchesAnyPattern(relPath, d.includePattern)
}

// shouldIgnore checks if a path matches any ignore pattern.
func (d *Discovery) shouldIgnore(relPath string) bool {
	if relPath == stateDir || strings.HasPrefix(relPath, stateDir+"/") {
		return true
	}

	if matchesAnyPattern(relPath, d.ignorePatterns) {
		return true
	}

	// A directory matches its "dir/**" pattern too, so "node_modules" is pruned
	// by "node_modules/**".
	return matchesAnyPattern(relPath+"/**", d.ignorePatterns)
}

// matchesAnyPattern checks if a path matches any of the given patterns. Root-level
// paths also match "**/" patterns with the prefix removed, so "**/*.sql" selects
// both "schema.sql" and "db/schema.sql".
func matchesAnyPattern(path string, patterns []compiledPattern) bool {
	for _, cp := range patterns {
		if cp.glob.Match(path) {
			return true
		}
	}

	if !strings.Contains(path, "/") {
		for _, cp := range patterns {
			if strings.HasPrefix(cp.pattern, "**/") {
				simplified := strings.TrimPrefix(cp.pattern, "**/")
				if g, err := glob.Compile(simplified, '/'); err == nil && g.Match(path) {
					return true
				}
			}
		}
	}

	return false
}
