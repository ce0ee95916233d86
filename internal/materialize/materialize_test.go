package materialize

import (
	"testing"

	"github.com/repovector/repovector/internal/version"
)

func pkg(repo, name, ver, arch string, hasDebTime bool) PackageRow {
	return PackageRow{
		Repo: repo, Package: name, Version: ver, Architecture: arch,
		VerComp: version.Encode(ver), HasDebTime: hasDebTime,
	}
}

func TestComputeLatestPicksMaxVersion(t *testing.T) {
	rows := []PackageRow{
		pkg("amd64/stable", "foo", "1.0-1", "amd64", true),
		pkg("amd64/stable", "foo", "1.0-2", "amd64", true),
	}
	latest := ComputeLatest(rows)
	got, ok := latest[LatestKey{Repo: "amd64/stable", Package: "foo"}]
	if !ok || got.Version != "1.0-2" {
		t.Fatalf("expected latest foo to be 1.0-2, got %+v (ok=%v)", got, ok)
	}
}

func TestComputeLatestExcludesNilDebTime(t *testing.T) {
	rows := []PackageRow{
		pkg("amd64/stable", "foo", "1.0-1", "amd64", false),
	}
	latest := ComputeLatest(rows)
	if len(latest) != 0 {
		t.Fatalf("expected no latest rows for a nil-debtime package, got %+v", latest)
	}
}

func TestComputeRankedOrdersDescending(t *testing.T) {
	rows := []PackageRow{
		pkg("amd64/stable", "foo", "1.0-1", "amd64", true),
		pkg("amd64/stable", "foo", "1.0-2", "amd64", true),
		pkg("amd64/stable", "foo", "1.0-3", "amd64", true),
	}
	ranked := ComputeRanked(rows)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 ranked rows, got %d", len(ranked))
	}
	byVersion := make(map[string]int)
	for _, r := range ranked {
		byVersion[r.Version] = r.Rank
	}
	if byVersion["1.0-3"] != 1 || byVersion["1.0-2"] != 2 || byVersion["1.0-1"] != 3 {
		t.Fatalf("unexpected ranks: %+v", byVersion)
	}
}

func TestComputeParsedDepsRestrictsToLatest(t *testing.T) {
	latest := ComputeLatest([]PackageRow{pkg("amd64/stable", "foo", "1.0-2", "amd64", true)})
	deps := []DependencyRow{
		{Package: "foo", Version: "1.0-1", Repo: "amd64/stable", Relationship: "Depends", Value: "libbar"},
		{Package: "foo", Version: "1.0-2", Repo: "amd64/stable", Relationship: "Depends", Value: "libbar (>= 1.0)"},
	}
	parsed := ComputeParsedDeps(latest, deps)
	if len(parsed) != 1 {
		t.Fatalf("expected only the latest version's dependency to be parsed, got %d rows: %+v", len(parsed), parsed)
	}
	if parsed[0].DepPackage != "libbar" || parsed[0].RelOp != ">=" {
		t.Fatalf("unexpected parsed dep: %+v", parsed[0])
	}
}

func TestComputeSoBreaksFindsEdgeWithinSameRepo(t *testing.T) {
	latest := ComputeLatest([]PackageRow{
		pkg("amd64/stable", "libx", "1", "amd64", true),
		pkg("amd64/stable", "bar", "1", "amd64", true),
	})
	repos := map[string]RepoMeta{
		"amd64/stable": {Name: "amd64/stable", Testing: 0, Component: "main", Architecture: "amd64"},
	}
	sodeps := []SoDepRow{
		{Package: "libx", Version: "1", Repo: "amd64/stable", Depends: 0, Name: "libx.so", Ver: ".1"},
		{Package: "bar", Version: "1", Repo: "amd64/stable", Depends: 1, Name: "libx.so", Ver: ".1"},
	}
	edges := ComputeSoBreaks(latest, repos, sodeps)
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d: %+v", len(edges), edges)
	}
	if edges[0].ProviderPkg != "libx" || edges[0].ConsumerPkg != "bar" {
		t.Fatalf("unexpected edge: %+v", edges[0])
	}
}

func TestComputeSoBreaksVersionPrefixCompatible(t *testing.T) {
	latest := ComputeLatest([]PackageRow{
		pkg("amd64/stable", "libx", "2", "amd64", true),
		pkg("amd64/stable", "bar", "1", "amd64", true),
	})
	repos := map[string]RepoMeta{
		"amd64/stable": {Name: "amd64/stable", Component: "main", Architecture: "amd64"},
	}
	sodeps := []SoDepRow{
		{Package: "libx", Version: "2", Repo: "amd64/stable", Depends: 0, Name: "libc.so", Ver: ".6.3"},
		{Package: "bar", Version: "1", Repo: "amd64/stable", Depends: 1, Name: "libc.so", Ver: ".6"},
	}
	edges := ComputeSoBreaks(latest, repos, sodeps)
	if len(edges) != 1 {
		t.Fatalf("expected provider .6.3 to satisfy consumer requirement .6, got %+v", edges)
	}
}

func TestComputeSoBreaksRejectsInvisibleRepo(t *testing.T) {
	latest := ComputeLatest([]PackageRow{
		pkg("contrib-amd64/stable", "libx", "1", "amd64", true),
		pkg("amd64/topic", "bar", "1", "amd64", true),
	})
	repos := map[string]RepoMeta{
		"contrib-amd64/stable": {Name: "contrib-amd64/stable", Testing: 0, Component: "contrib", Architecture: "amd64"},
		"amd64/topic":          {Name: "amd64/topic", Testing: 1, Component: "main", Architecture: "amd64"},
	}
	sodeps := []SoDepRow{
		{Package: "libx", Version: "1", Repo: "contrib-amd64/stable", Depends: 0, Name: "libx.so", Ver: ".1"},
		{Package: "bar", Version: "1", Repo: "amd64/topic", Depends: 1, Name: "libx.so", Ver: ".1"},
	}
	edges := ComputeSoBreaks(latest, repos, sodeps)
	if len(edges) != 0 {
		t.Fatalf("expected no edge across a non-main component boundary, got %+v", edges)
	}
}

func TestComputeSoBreaksDepBuildsAdjacency(t *testing.T) {
	breaks := []SoBreak{
		{ProviderPkg: "libx", ProviderRepo: "amd64/stable", ConsumerPkg: "bar", ConsumerRepo: "amd64/stable"},
		{ProviderPkg: "liby", ProviderRepo: "amd64/stable", ConsumerPkg: "bar", ConsumerRepo: "amd64/stable"},
	}
	adj := ComputeSoBreaksDep(breaks, nil)
	if len(adj) != 2 {
		t.Fatalf("expected 2 adjacency rows, got %d: %+v", len(adj), adj)
	}
}
