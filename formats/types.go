// Package formats holds the encodings a store file can be written in.
package formats

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Format defines how a persisted document is encoded and decoded
type Format struct {
	// Name is the format identifier (alphanumeric, dashes, underscores, lowercase)
	Name string

	// Extensions are the file extensions including the dot (e.g., ".json").
	// The first one is used when creating files.
	Extensions []string

	// Marshal encodes v
	Marshal func(v any) ([]byte, error)

	// Unmarshal decodes data into v
	Unmarshal func(data []byte, v any) error
}

var (
	mu       sync.RWMutex
	registry = make(map[string]*Format)
)

// JSON is the default format.
var JSON = &Format{
	Name:       "json",
	Extensions: []string{".json"},
	Marshal: func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	},
	Unmarshal: json.Unmarshal,
}

// YAML encodes documents with gopkg.in/yaml.v3.
var YAML = &Format{
	Name:       "yaml",
	Extensions: []string{".yaml", ".yml"},
	Marshal:    yaml.Marshal,
	Unmarshal:  yaml.Unmarshal,
}

func init() {
	for _, f := range []*Format{JSON, YAML} {
		if err := Register(f); err != nil {
			panic(err)
		}
	}
}

// Register adds a new format to the registry
func Register(format *Format) error {
	if !isValidFormatName(format.Name) {
		return fmt.Errorf("invalid format name %q: must be lowercase alphanumeric with dashes and underscores only", format.Name)
	}
	if format.Marshal == nil || format.Unmarshal == nil {
		return fmt.Errorf("format %q: marshal and unmarshal are required", format.Name)
	}

	for i, ext := range format.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		format.Extensions[i] = ext
	}

	mu.Lock()
	defer mu.Unlock()

	if _, exists := registry[format.Name]; exists {
		return fmt.Errorf("format %q already registered", format.Name)
	}
	registry[format.Name] = format
	return nil
}

// Get returns a format by name
func Get(name string) (*Format, error) {
	mu.RLock()
	defer mu.RUnlock()

	format, exists := registry[name]
	if !exists {
		return nil, fmt.Errorf("unknown format %q", name)
	}
	return format, nil
}

// ForPath picks the format registered for the extension of path. Paths
// without a known extension use JSON.
func ForPath(path string) *Format {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return JSON
	}

	mu.RLock()
	defer mu.RUnlock()

	for _, name := range sortedNames() {
		if slices.Contains(registry[name].Extensions, ext) {
			return registry[name]
		}
	}
	return JSON
}

// List returns all registered format names, sorted
func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	return sortedNames()
}

func sortedNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// isValidFormatName checks if a format name is valid
func isValidFormatName(name string) bool {
	if name == "" {
		return false
	}

	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return false
		}
	}
	return true
}
