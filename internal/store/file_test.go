package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_SaveCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeply", "token.json")
	s := NewFileStore(path)

	if err := s.Save(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(filepath.Dir(path)); os.IsNotExist(err) {
		t.Error("Save() did not create parent directory")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("Save() did not create token file")
	}
}

func TestFileStore_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	s := NewFileStore(path)

	if err := s.Save(context.Background(), sampleRecord()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}

	// Check file is not world-readable (0600)
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		t.Errorf("File permissions = %o, want 0600 (no group/other access)", mode)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileStore(path).Load(context.Background())
	if err == nil || err == ErrNotFound {
		t.Errorf("Load() error = %v, want parse error", err)
	}
}

func TestFileStore_Path(t *testing.T) {
	path := "/custom/path/token.json"
	if got := NewFileStore(path).Path(); got != path {
		t.Errorf("Path() = %q, want %q", got, path)
	}
}
