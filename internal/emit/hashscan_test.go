package emit

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScanReleaseFilesExcludesInReleaseAndByHash(t *testing.T) {
	root := t.TempDir()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(os.WriteFile(filepath.Join(root, "Release"), []byte("rel"), 0o644))
	must(os.WriteFile(filepath.Join(root, "InRelease"), []byte("signed"), 0o644))
	must(os.MkdirAll(filepath.Join(root, "by-hash", "SHA256"), 0o755))
	must(os.WriteFile(filepath.Join(root, "by-hash", "SHA256", "deadbeef"), []byte("x"), 0o644))
	must(os.MkdirAll(filepath.Join(root, "main", "binary-amd64"), 0o755))
	must(os.WriteFile(filepath.Join(root, "main", "binary-amd64", "Packages"), []byte("pkg"), 0o644))

	files, err := ScanReleaseFiles(root)
	if err != nil {
		t.Fatalf("scanning: %v", err)
	}

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	wantPresent := "main/binary-amd64/Packages"
	found := false
	for _, p := range paths {
		if p == wantPresent {
			found = true
		}
		if p == "InRelease" || p == "by-hash/SHA256/deadbeef" {
			t.Errorf("unexpected excluded path scanned: %s", p)
		}
	}
	if !found {
		t.Errorf("expected %s among scanned files, got %v", wantPresent, paths)
	}
}

func TestDigestFileComputesKnownSHA256(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := digestFile(path)
	if err != nil {
		t.Fatalf("digesting: %v", err)
	}
	const wantSHA256 = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if d.SHA256 != wantSHA256 {
		t.Errorf("sha256 = %s, want %s", d.SHA256, wantSHA256)
	}
	if d.Size != 5 {
		t.Errorf("size = %d, want 5", d.Size)
	}
}
