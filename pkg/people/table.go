// Package people persists the identity side tables: the face database
// (name → embedding, written by the vision collaborator) and the trust
// map (name → trust literal). Both are small JSON objects replaced
// atomically so a crash mid-write can never leave a torn file.
package people

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Table is one name-keyed JSON object on disk. Values are kept opaque
// so the same type serves both the trust map (string values) and the
// face database (embedding arrays).
type Table struct {
	path string
	mu   sync.Mutex
}

// NewTable binds a table to its backing file. The file may not exist
// yet; a missing file reads as an empty table.
func NewTable(path string) *Table {
	return &Table{path: path}
}

// Path returns the backing file path.
func (t *Table) Path() string { return t.path }

// Load reads the whole table.
func (t *Table) Load() (map[string]json.RawMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load()
}

func (t *Table) load() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("people: read %s: %w", t.path, err)
	}

	out := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("people: parse %s: %w", t.path, err)
	}
	return out, nil
}

// save writes the table via a temporary file and an atomic rename.
func (t *Table) save(m map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("people: encode %s: %w", t.path, err)
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("people: create dir %s: %w", dir, err)
	}

	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("people: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("people: replace %s: %w", t.path, err)
	}
	return nil
}

// Has reports whether name is present.
func (t *Table) Has(name string) (bool, error) {
	m, err := t.Load()
	if err != nil {
		return false, err
	}
	_, ok := m[name]
	return ok, nil
}

// GetString returns the string value stored under name.
func (t *Table) GetString(name string) (string, bool, error) {
	m, err := t.Load()
	if err != nil {
		return "", false, err
	}
	raw, ok := m[name]
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false, fmt.Errorf("people: value for %q is not a string: %w", name, err)
	}
	return s, true, nil
}

// SetString stores a string value under name, read-modify-replace.
func (t *Table) SetString(name, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, err := t.load()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("people: encode value: %w", err)
	}
	m[name] = raw
	return t.save(m)
}
