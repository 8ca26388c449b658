package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	s := NewDedupStore(filepath.Join(t.TempDir(), "dedup.json"))
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Errorf("Load on fresh start = %v, want nil", *got)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	s := NewDedupStore(filepath.Join(t.TempDir(), "dedup.json"))

	birth := 1_700_000_760.0
	if err := s.Save(&birth); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A second store on the same path simulates a restart.
	got, err := NewDedupStore(s.path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || *got != birth {
		t.Errorf("Load = %v, want %v", got, birth)
	}
}

func TestSaveNilClearsRecord(t *testing.T) {
	s := NewDedupStore(filepath.Join(t.TempDir(), "dedup.json"))

	birth := 1_700_000_760.0
	if err := s.Save(&birth); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(nil); err != nil {
		t.Fatalf("Save(nil): %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Errorf("Load after clear = %v, want nil", *got)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatalf("read raw file: %v", err)
	}
	if string(data) != `{"last_acted_birth_ts":null}` {
		t.Errorf("raw record = %s", data)
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	s := NewDedupStore(filepath.Join(dir, "dedup.json"))

	for _, v := range []float64{1, 2, 3} {
		v := v
		if err := s.Save(&v); err != nil {
			t.Fatalf("Save(%v): %v", v, err)
		}
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || *got != 3 {
		t.Errorf("Load = %v, want 3", got)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want only the dedup file", len(entries))
	}
}
