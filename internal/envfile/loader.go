package envfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Loader handles loading .env files for configuration insertion
type Loader struct {
	envFiles []string
}

// NewLoader creates a loader for the given files. Relative paths are resolved
// against the directory passed to Load.
func NewLoader(files ...string) *Loader {
	return &Loader{envFiles: files}
}

// AddEnvFile adds a custom env file to load
func (l *Loader) AddEnvFile(path string) {
	l.envFiles = append(l.envFiles, path)
}

// Files returns the configured files resolved against rootPath
func (l *Loader) Files(rootPath string) []string {
	files := make([]string, 0, len(l.envFiles))
	for _, envFile := range l.envFiles {
		if filepath.IsAbs(envFile) {
			files = append(files, envFile)
		} else {
			files = append(files, filepath.Join(rootPath, envFile))
		}
	}
	return files
}

// Load loads all configured env files and merges them.
// Later files override earlier ones; files that do not exist are skipped.
func (l *Loader) Load(rootPath string) (map[string]string, error) {
	allVars := make(map[string]string)

	for _, path := range l.Files(rootPath) {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		vars, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("failed to parse env file %s: %w", path, err)
		}
		for k, v := range vars {
			allVars[k] = v
		}
	}

	return allVars, nil
}

// Lookup resolves variables from the process environment first and falls back to vars
func Lookup(vars map[string]string) func(name string) (string, bool) {
	return func(name string) (string, bool) {
		if value, ok := os.LookupEnv(name); ok {
			return value, true
		}
		value, ok := vars[name]
		return value, ok
	}
}
