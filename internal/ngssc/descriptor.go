package ngssc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"
)

// DescriptorFileName is the name of the descriptor written next to the build output
const DescriptorFileName = "ngssc.json"

// DefaultFilePattern selects the HTML files configuration is inserted into
const DefaultFilePattern = "index.html"

// ErrInvalidDescriptor is returned when ngssc.json is absent or unusable
var ErrInvalidDescriptor = errors.New("missing or invalid ngssc.json")

// Descriptor is the JSON structure of ngssc.json
type Descriptor struct {
	Variant              Variant  `json:"variant"`
	EnvironmentVariables []string `json:"environmentVariables"`
	FilePattern          *string  `json:"filePattern,omitempty"`
	InsertInHead         *bool    `json:"insertInHead,omitempty"`
	RecursiveMatching    *bool    `json:"recursiveMatching,omitempty"`
}

// ReadDescriptor reads ngssc.json from path, which may be the file or its directory
func ReadDescriptor(path string) (*Descriptor, error) {
	if filepath.Base(path) != DescriptorFileName {
		path = filepath.Join(path, DescriptorFileName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrInvalidDescriptor, path, err)
	}
	return ParseDescriptor(data, path)
}

// ParseDescriptor validates the JSON content of a descriptor. source names it in errors.
func ParseDescriptor(data []byte, source string) (*Descriptor, error) {
	var descriptor *Descriptor
	if err := json.Unmarshal(data, &descriptor); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidDescriptor, source, err)
	}
	if descriptor == nil {
		return nil, fmt.Errorf("%w: %s must not be empty", ErrInvalidDescriptor, source)
	}
	if descriptor.EnvironmentVariables == nil {
		return nil, fmt.Errorf("%w: environmentVariables must be defined in %s", ErrInvalidDescriptor, source)
	}
	variant, err := ParseVariant(string(descriptor.Variant))
	if err != nil {
		return nil, fmt.Errorf("invalid variant in %s: %w", source, err)
	}
	descriptor.Variant = variant
	return descriptor, nil
}

// Write stores the descriptor as ngssc.json inside dir
func (d *Descriptor) Write(dir string) (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", DescriptorFileName, err)
	}
	path := filepath.Join(dir, DescriptorFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Pattern returns the configured file pattern or the default
func (d *Descriptor) Pattern() string {
	if d.FilePattern == nil || *d.FilePattern == "" {
		return DefaultFilePattern
	}
	return *d.FilePattern
}

// InHead reports whether configuration goes into the head instead of a placeholder
func (d *Descriptor) InHead() bool {
	return d.InsertInHead != nil && *d.InsertInHead
}

// Recursive reports whether the file pattern is matched in sub directories too. Defaults to true.
func (d *Descriptor) Recursive() bool {
	return d.RecursiveMatching == nil || *d.RecursiveMatching
}

// MergeVariables returns the sorted, de-duplicated union of the given name lists
func MergeVariables(lists ...[]string) []string {
	seen := make(map[string]bool)
	merged := []string{}
	for _, list := range lists {
		for _, name := range list {
			if name != "" && !seen[name] {
				seen[name] = true
				merged = append(merged, name)
			}
		}
	}
	sort.Strings(merged)
	return merged
}
