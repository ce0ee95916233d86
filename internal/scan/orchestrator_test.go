package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/repovector/repovector/internal/config"
	"github.com/repovector/repovector/internal/db"
	"github.com/repovector/repovector/internal/deb"
	"github.com/repovector/repovector/internal/discover"
	repoerrors "github.com/repovector/repovector/internal/errors"
)

func TestClassifyInspectErrorPreservesKind(t *testing.T) {
	cases := []struct {
		err       error
		wantKind  repoerrors.Kind
		wantErrno int32
	}{
		{repoerrors.New(repoerrors.MissingControl, "no control.tar member"), repoerrors.MissingControl, db.ErrnoMissingControl},
		{repoerrors.New(repoerrors.ControlParse, "malformed control line"), repoerrors.ControlParse, db.ErrnoControlParse},
		{repoerrors.New(repoerrors.UnsupportedCompression, "unrecognized compression"), repoerrors.UnsupportedCompression, db.ErrnoUnsupportedComp},
		{repoerrors.New(repoerrors.IO, "reading member"), repoerrors.IO, db.ErrnoIOError},
		{repoerrors.New(repoerrors.MalformedArchive, "reading ar member"), repoerrors.MalformedArchive, db.ErrnoMalformedArchive},
	}
	for _, c := range cases {
		kind, errno := classifyInspectError(c.err)
		if kind != c.wantKind || errno != c.wantErrno {
			t.Errorf("classifyInspectError(%v) = (%v, %d), want (%v, %d)", c.err, kind, errno, c.wantKind, c.wantErrno)
		}
	}
}

func TestTestingLevelHonorsConfiguredBranches(t *testing.T) {
	cfg := &config.Config{Branch: []config.Branch{{Name: "stable"}}}
	if got := testingLevel(cfg, "stable"); got != 0 {
		t.Fatalf("expected configured branch to be testing level 0, got %d", got)
	}
	if got := testingLevel(cfg, "topic-foo"); got != 0 {
		t.Fatalf("expected unconfigured branch with discover=false to default to 0, got %d", got)
	}

	cfg.Config.Discover = true
	if got := testingLevel(cfg, "topic-foo"); got != 1 {
		t.Fatalf("expected auto-registered branch to be testing level 1, got %d", got)
	}
}

func TestTestingLevelHonorsTestingAndExplosiveMarkers(t *testing.T) {
	cfg := &config.Config{Branch: []config.Branch{
		{Name: "stable"},
		{Name: "topic", Testing: true},
		{Name: "volatile", Explosive: true},
	}}
	if got := testingLevel(cfg, "stable"); got != 0 {
		t.Fatalf("expected unmarked branch to be testing level 0, got %d", got)
	}
	if got := testingLevel(cfg, "topic"); got != 1 {
		t.Fatalf("expected testing=true branch to be testing level 1, got %d", got)
	}
	if got := testingLevel(cfg, "volatile"); got != 2 {
		t.Fatalf("expected explosive=true branch to be testing level 2, got %d", got)
	}
}

func TestToDBPackageDefaultsEmptySection(t *testing.T) {
	inspection := deb.Inspection{
		Record: deb.Record{
			Package: "foo", Version: "1.0-1", Architecture: "amd64",
			Section: "", Dependencies: map[deb.Relationship]string{deb.RelDepends: "libc6"},
		},
	}
	loc := discover.Location{Branch: "stable", Component: "main", RepoName: "amd64/stable"}
	pkg := toDBPackage(inspection, loc, "stable/main/f/foo_1.0-1_amd64.deb", fileStat{size: 100, mtime: 42}, "abc123")

	if pkg.Section != "unknown" {
		t.Errorf("expected empty section to default to unknown, got %q", pkg.Section)
	}
	if pkg.Repo != "amd64/stable" {
		t.Errorf("unexpected repo: %q", pkg.Repo)
	}
	if pkg.Filename != "stable/main/f/foo_1.0-1_amd64.deb" {
		t.Errorf("expected filename to stay pool-relative, got %q", pkg.Filename)
	}
	if len(pkg.Dependencies) != 1 || pkg.Dependencies[0].Relationship != "Depends" {
		t.Errorf("unexpected dependencies: %+v", pkg.Dependencies)
	}
}

func TestSHA256FileMatchesKnownDigest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	sum, err := sha256File(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	const wantSHA256OfHello = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if sum != wantSHA256OfHello {
		t.Errorf("sha256(\"hello\") = %s, want %s", sum, wantSHA256OfHello)
	}
}
