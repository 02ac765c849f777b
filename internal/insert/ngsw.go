package insert

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// NgswFileName is the Angular service worker manifest
const NgswFileName = "ngsw.json"

// findNgsw looks for ngsw.json from the directory of file up to root
func findNgsw(file, root string) (string, bool) {
	root = filepath.Clean(root)
	for dir := filepath.Dir(file); ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, NgswFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		if dir == root || dir == filepath.Dir(dir) {
			return "", false
		}
	}
}

// updateNgswHash sets the hash of file in the service worker manifest at ngswPath.
// It reports whether the manifest listed the file.
func updateNgswHash(ngswPath, file string, content []byte) (bool, error) {
	data, err := os.ReadFile(ngswPath)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", ngswPath, err)
	}

	var manifest map[string]json.RawMessage
	if err := json.Unmarshal(data, &manifest); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", ngswPath, err)
	}
	var hashTable map[string]string
	if raw, ok := manifest["hashTable"]; ok {
		if err := json.Unmarshal(raw, &hashTable); err != nil {
			return false, fmt.Errorf("failed to parse hashTable of %s: %w", ngswPath, err)
		}
	}

	rel, err := filepath.Rel(filepath.Dir(ngswPath), file)
	if err != nil {
		return false, err
	}
	key := "/" + filepath.ToSlash(rel)
	if _, ok := hashTable[key]; !ok {
		return false, nil
	}

	sum := sha1.Sum(content)
	hash := hex.EncodeToString(sum[:])
	if hashTable[key] == hash {
		return true, nil
	}
	hashTable[key] = hash

	encoded, err := json.Marshal(hashTable)
	if err != nil {
		return false, err
	}
	manifest["hashTable"] = encoded
	updated, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to encode %s: %w", ngswPath, err)
	}
	if err := os.WriteFile(ngswPath, updated, 0644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", ngswPath, err)
	}
	return true, nil
}
