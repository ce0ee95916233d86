package emit

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStagePublishIsAtomicSwap(t *testing.T) {
	root := t.TempDir()
	branchRoot := filepath.Join(root, "stable")
	if err := os.MkdirAll(branchRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(branchRoot, "old"), []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	stage, err := NewStage(branchRoot)
	if err != nil {
		t.Fatalf("creating stage: %v", err)
	}
	if err := stage.Write("Release", []byte("fresh")); err != nil {
		t.Fatalf("writing to stage: %v", err)
	}
	if err := stage.Publish(branchRoot); err != nil {
		t.Fatalf("publishing: %v", err)
	}

	if _, err := os.Stat(filepath.Join(branchRoot, "old")); !os.IsNotExist(err) {
		t.Error("expected stale file removed after publish")
	}
	got, err := os.ReadFile(filepath.Join(branchRoot, "Release"))
	if err != nil || string(got) != "fresh" {
		t.Errorf("expected published Release content, got %q err %v", got, err)
	}
}

func TestPruneByHashKeepsNewestDepth(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "by-hash", "SHA256")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	names := []string{"aaa", "bbb", "ccc"}
	for i, n := range names {
		path := filepath.Join(dir, n)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		mtime := time.Now().Add(time.Duration(i) * time.Second)
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}

	if err := PruneByHash(root, 1); err != nil {
		t.Fatalf("pruning: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "ccc" {
		t.Errorf("expected only the newest file retained, got %v", entries)
	}
}

func TestPruneByHashUnlimitedWhenNegative(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "by-hash", "SHA256")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "aaa"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := PruneByHash(root, -1); err != nil {
		t.Fatalf("pruning: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected file retained when depth is -1, got %v", entries)
	}
}
