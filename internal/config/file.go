package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Source holds persisted settings keyed by dotted names such as "server.port".
type Source interface {
	Lookup(key string) (any, bool)
	Store(key string, v any) error
}

// jsonFile is a Source backed by one flat JSON object on disk.
type jsonFile struct {
	path   string
	values map[string]any
}

// openJSONFile reads path. An unreadable or malformed file is reported on
// stderr and treated as empty so defaults still apply.
func openJSONFile(path string) *jsonFile {
	f := &jsonFile{path: path, values: make(map[string]any)}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		warnf("could not read config file %s: %v; using defaults", path, err)
	default:
		if err := json.Unmarshal(data, &f.values); err != nil {
			warnf("could not parse config file %s: %v; using defaults", path, err)
			f.values = make(map[string]any)
		}
	}
	return f
}

func (f *jsonFile) Lookup(key string) (any, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Store sets key and rewrites the whole file.
func (f *jsonFile) Store(key string, v any) error {
	f.values[key] = v

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(f.path, append(data, '\n'), 0o600)
}
