package discover

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/repovector/repovector/internal/config"
)

func TestLocateMainComponentUsesBareArch(t *testing.T) {
	loc, err := Locate("stable/main/libf/libfoo_1.0_amd64.deb", "amd64")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.Branch != "stable" || loc.Component != "main" || loc.Architecture != "amd64" {
		t.Fatalf("unexpected location: %+v", loc)
	}
	if loc.RepoKey != "amd64" {
		t.Fatalf("expected bare arch repo key for main component, got %q", loc.RepoKey)
	}
	if loc.RepoName != "amd64/stable" {
		t.Fatalf("unexpected repo name: %q", loc.RepoName)
	}
}

func TestLocateNonMainComponentPrefixesKey(t *testing.T) {
	loc, err := Locate("testing/contrib/libf/libfoo_1.0_amd64.deb", "amd64")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.RepoKey != "contrib-amd64" {
		t.Fatalf("expected component-prefixed repo key, got %q", loc.RepoKey)
	}
	if loc.RepoName != "contrib-amd64/testing" {
		t.Fatalf("unexpected repo name: %q", loc.RepoName)
	}
}

func TestLocateRejectsShallowPath(t *testing.T) {
	if _, err := Locate("stable", "amd64"); err == nil {
		t.Fatal("expected an error for a path with no component segment")
	}
}

func TestDiscoverTopicsWalksTwoLevels(t *testing.T) {
	root := t.TempDir()
	mustMkdirAll(t, filepath.Join(root, "stable", "main", "libf"))
	mustMkdirAll(t, filepath.Join(root, "stable", "contrib", "libg"))
	mustMkdirAll(t, filepath.Join(root, "testing", "main", "libh"))

	topics, err := DiscoverTopics(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(topics) != 3 {
		t.Fatalf("expected 3 topics, got %d: %+v", len(topics), topics)
	}
}

func TestResolverHonorsDiscoverFlag(t *testing.T) {
	cfg := &config.Config{
		Config: config.General{Discover: false},
		Branch: []config.Branch{{Name: "stable"}},
	}
	r := NewResolver(cfg)
	if !r.Allowed("stable") {
		t.Error("expected configured branch to be allowed")
	}
	if r.Allowed("testing") {
		t.Error("expected unconfigured branch to be rejected when discover=false")
	}

	cfg.Config.Discover = true
	r2 := NewResolver(cfg)
	if !r2.Allowed("testing") {
		t.Error("expected any branch to be allowed when discover=true")
	}
}

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}
