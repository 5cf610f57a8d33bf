package datastore

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNewCreatesEmptySnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	ds, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer ds.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("snapshot not created: %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("initial snapshot = %q, want {}", data)
	}
	if keys := ds.Keys(); len(keys) != 0 {
		t.Errorf("Keys() = %v, want empty", keys)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	ds, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	ds.Add("followers", []any{"1", "2"})
	ds.Add("ratings", map[string]any{"alice": float64(120)})
	ds.Add("gone", "x")
	ds.Delete("gone")
	if err := ds.SaveToFile(); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}
	want, _ := ds.Snapshot()
	if err := ds.Close(); err != nil {
		t.Fatal(err)
	}

	reloaded, err := New(path)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	defer reloaded.Close()

	got, _ := reloaded.Snapshot()
	if string(got) != string(want) {
		t.Errorf("reloaded snapshot =\n%s\nwant\n%s", got, want)
	}
	if !reflect.DeepEqual(reloaded.Keys(), []string{"followers", "ratings"}) {
		t.Errorf("Keys() = %v", reloaded.Keys())
	}
}

func TestCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(path)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("New() error = %v, want ErrCorrupt", err)
	}
}

func TestBackupsAreRotated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	cfg := DefaultConfig(path)
	cfg.BackupCount = 2
	cfg.Logger = nil
	ds, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer ds.Close()

	for i := 0; i < 5; i++ {
		ds.Add("n", float64(i))
		if err := ds.SaveToFile(); err != nil {
			t.Fatal(err)
		}
	}

	backups, _ := filepath.Glob(path + ".backup.*")
	if len(backups) != 2 {
		t.Errorf("got %d backups, want 2", len(backups))
	}
}

func TestSaveAfterClose(t *testing.T) {
	ds, err := New(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatal(err)
	}
	ds.Close()
	if err := ds.SaveToFile(); !errors.Is(err, ErrClosed) {
		t.Errorf("SaveToFile() after Close = %v, want ErrClosed", err)
	}
}
