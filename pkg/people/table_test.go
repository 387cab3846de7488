package people

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestMissingFileReadsEmpty(t *testing.T) {
	tbl := NewTable(filepath.Join(t.TempDir(), "absent.json"))

	m, err := tbl.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(m) != 0 {
		t.Errorf("Load() = %v, want empty", m)
	}

	ok, err := tbl.Has("anyone")
	if err != nil || ok {
		t.Errorf("Has() = %v, %v on missing file", ok, err)
	}
}

func TestSetGetString(t *testing.T) {
	tbl := NewTable(filepath.Join(t.TempDir(), "trust.json"))

	if err := tbl.SetString("alice", "Friend"); err != nil {
		t.Fatalf("SetString() error = %v", err)
	}
	if err := tbl.SetString("bob", "Guest"); err != nil {
		t.Fatalf("SetString() error = %v", err)
	}
	// Overwrite keeps the other entries.
	if err := tbl.SetString("alice", "OWNER"); err != nil {
		t.Fatalf("SetString() error = %v", err)
	}

	v, ok, err := tbl.GetString("alice")
	if err != nil || !ok || v != "OWNER" {
		t.Errorf("GetString(alice) = %q, %v, %v", v, ok, err)
	}
	v, ok, err = tbl.GetString("bob")
	if err != nil || !ok || v != "Guest" {
		t.Errorf("GetString(bob) = %q, %v, %v", v, ok, err)
	}
	if _, ok, _ := tbl.GetString("carol"); ok {
		t.Error("GetString(carol) found a missing entry")
	}
}

func TestWriteIsAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")
	tbl := NewTable(path)

	if err := tbl.SetString("alice", "Friend"); err != nil {
		t.Fatal(err)
	}

	// No temp file survives a successful write.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "db.json" {
			t.Errorf("leftover file %q after write", e.Name())
		}
	}

	// The file on disk is a valid, complete JSON object.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("on-disk table is not valid JSON: %v", err)
	}
	if m["alice"] != "Friend" {
		t.Errorf("on-disk value = %q", m["alice"])
	}
}

func TestOpaqueValuesSurvive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.json")
	seed := `{"alice": [0.1, 0.2, 0.3]}`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	tbl := NewTable(path)
	ok, err := tbl.Has("alice")
	if err != nil || !ok {
		t.Fatalf("Has(alice) = %v, %v", ok, err)
	}

	// Writing an unrelated key must not disturb the embedding.
	if err := tbl.SetString("note", "x"); err != nil {
		t.Fatal(err)
	}
	m, err := tbl.Load()
	if err != nil {
		t.Fatal(err)
	}
	var embedding []float64
	if err := json.Unmarshal(m["alice"], &embedding); err != nil {
		t.Fatalf("embedding corrupted: %v", err)
	}
	if len(embedding) != 3 {
		t.Errorf("embedding = %v", embedding)
	}
}

func TestCorruptFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewTable(path).Load(); err == nil {
		t.Error("Load() succeeded on corrupt JSON")
	}
}
