package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
)

// BundleExtensions are the compiled output files that may carry tokens
var BundleExtensions = []string{".js", ".mjs", ".cjs"}

// Scanner handles file discovery below a build output directory
type Scanner struct {
	excludeDirs  map[string]bool // Directory names to exclude (e.g., "node_modules")
	excludePaths []string        // Path patterns relative to the root (e.g., "assets/vendor", "legacy/*")
}

// NewScanner creates a new scanner with default exclusions
func NewScanner() *Scanner {
	return &Scanner{
		excludeDirs: map[string]bool{
			"node_modules": true,
			".git":         true,
			".cache":       true,
			".angular":     true,
		},
	}
}

// AddExcludeDirs adds additional directories to exclude from scanning
// Can be directory names (e.g., "assets") or paths (e.g., "assets/vendor")
func (s *Scanner) AddExcludeDirs(dirs []string) {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		// If it contains a path separator, treat it as a path pattern
		if strings.Contains(dir, "/") || strings.Contains(dir, "\\") {
			s.excludePaths = append(s.excludePaths, filepath.ToSlash(dir))
		} else {
			s.excludeDirs[dir] = true
		}
	}
}

// isExcludedPath checks a slash separated path relative to the scan root
func (s *Scanner) isExcludedPath(rel string) bool {
	for _, excludePath := range s.excludePaths {
		if rel == excludePath || strings.HasPrefix(rel, excludePath+"/") {
			return true
		}
		// Support patterns like "assets/*"
		if strings.HasSuffix(excludePath, "/*") {
			prefix := strings.TrimSuffix(excludePath, "/*")
			if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
				return true
			}
		}
	}
	return false
}

// walk returns the files below root for which keep reports true, in lexical order.
// keep receives the slash separated path relative to root.
func (s *Scanner) walk(root string, keep func(rel string) bool) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if path != root && (s.excludeDirs[entry.Name()] || s.isExcludedPath(rel)) {
				return filepath.SkipDir
			}
			return nil
		}

		if s.isExcludedPath(rel) || !keep(rel) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

// Bundles returns every compiled script file below root
func (s *Scanner) Bundles(root string) ([]string, error) {
	return s.walk(root, IsBundle)
}

// Match returns the files below root whose relative path matches the doublestar pattern.
// A leading **/ also matches files directly inside root.
func (s *Scanner) Match(root, pattern string) ([]string, error) {
	pattern = filepath.ToSlash(pattern)
	if _, err := doublestar.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", pattern, err)
	}
	return s.walk(root, func(rel string) bool {
		return matches(pattern, rel)
	})
}

// Descriptors returns every ngssc.json below root
func (s *Scanner) Descriptors(root, name string) ([]string, error) {
	return s.Match(root, "**/"+name)
}

// IsBundle reports whether path has a compiled script extension
func IsBundle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, bundleExt := range BundleExtensions {
		if ext == bundleExt {
			return true
		}
	}
	return false
}

func matches(pattern, rel string) bool {
	if ok, _ := doublestar.Match(pattern, rel); ok {
		return true
	}
	if strings.HasPrefix(pattern, "**/") {
		ok, _ := doublestar.Match(strings.TrimPrefix(pattern, "**/"), rel)
		return ok
	}
	return false
}
