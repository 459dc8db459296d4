package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandPatterns(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.py", "b.py", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := expandPatterns([]string{filepath.Join(dir, "*.py")})
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("glob matched %d files, want 2: %v", len(paths), paths)
	}

	// Duplicates collapse: a literal path plus a glob covering it.
	paths, err = expandPatterns([]string{filepath.Join(dir, "a.py"), filepath.Join(dir, "*.py")})
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Errorf("duplicates should collapse, got %v", paths)
	}

	if _, err := expandPatterns([]string{filepath.Join(dir, "missing.py")}); err == nil {
		t.Error("a literal path that does not exist should error")
	}
}
