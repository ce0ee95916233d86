package notify

import (
	"testing"

	"github.com/repovector/repovector/internal/materialize"
)

func key(repo, pkg string) materialize.LatestKey {
	return materialize.LatestKey{Repo: repo, Package: pkg}
}

func row(version string) materialize.PackageRow {
	return materialize.PackageRow{Version: version}
}

func TestDiffDetectsAddedRemovedUpdated(t *testing.T) {
	before := map[materialize.LatestKey]materialize.PackageRow{
		key("amd64/stable", "foo"): row("1.0-1"),
		key("amd64/stable", "bar"): row("2.0-1"),
	}
	after := map[materialize.LatestKey]materialize.PackageRow{
		key("amd64/stable", "foo"): row("1.0-2"),
		key("amd64/stable", "baz"): row("1.0-1"),
	}

	changes := Diff(before, after)
	if len(changes) != 1 {
		t.Fatalf("expected one changed repo, got %d", len(changes))
	}
	c := changes[0]
	if c.Repo != "amd64/stable" {
		t.Errorf("repo = %s", c.Repo)
	}
	if len(c.Added) != 1 || c.Added[0] != "baz=1.0-1" {
		t.Errorf("added = %v", c.Added)
	}
	if len(c.Removed) != 1 || c.Removed[0] != "bar=2.0-1" {
		t.Errorf("removed = %v", c.Removed)
	}
	if len(c.Updated) != 1 || c.Updated[0] != (Updated{Name: "foo", Old: "1.0-1", New: "1.0-2"}) {
		t.Errorf("updated = %v", c.Updated)
	}
}

func TestDiffOmitsUnchangedRepos(t *testing.T) {
	before := map[materialize.LatestKey]materialize.PackageRow{
		key("amd64/stable", "foo"): row("1.0-1"),
	}
	after := map[materialize.LatestKey]materialize.PackageRow{
		key("amd64/stable", "foo"): row("1.0-1"),
	}
	if changes := Diff(before, after); len(changes) != 0 {
		t.Errorf("expected no changes, got %v", changes)
	}
}
