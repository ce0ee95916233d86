package scheduler

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestReadValidUntilParsesRFC2822Line(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Release")
	content := "Origin: test\nValid-Until: Mon, 02 Jan 2006 15:04:05 +0000\nComponents: main\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	got, ok := readValidUntil(path)
	if !ok {
		t.Fatal("expected Valid-Until to parse")
	}
	want := time.Date(2006, time.January, 2, 15, 4, 5, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestReadValidUntilMissingLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Release")
	if err := os.WriteFile(path, []byte("Origin: test\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	if _, ok := readValidUntil(path); ok {
		t.Error("expected no Valid-Until line to report false")
	}
}

func TestReadValidUntilMissingFile(t *testing.T) {
	if _, ok := readValidUntil(filepath.Join(t.TempDir(), "nonexistent")); ok {
		t.Error("expected missing file to report false")
	}
}
