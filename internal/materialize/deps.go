package materialize

import "github.com/repovector/repovector/internal/depparse"

// ComputeParsedDeps takes each Dependency row whose (package, version,
// repo) is in latest, parses its value with internal/depparse, and
// flattens the result into ordered (nr, alt) rows.
func ComputeParsedDeps(latest map[LatestKey]PackageRow, deps []DependencyRow) []ParsedDep {
	var out []ParsedDep
	for _, d := range deps {
		row, ok := latest[LatestKey{Repo: d.Repo, Package: d.Package}]
		if !ok || row.Version != d.Version {
			continue
		}
		items := depparse.Parse(d.Value)
		for _, item := range items {
			for altIdx, alt := range item.Alternatives {
				out = append(out, ParsedDep{
					Package:      d.Package,
					Version:      d.Version,
					Repo:         d.Repo,
					Relationship: d.Relationship,
					Nr:           item.Nr,
					Alt:          altIdx + 1,
					DepPackage:   alt.Package,
					DepArch:      alt.Architecture,
					RelOp:        alt.RelOp,
					DepVersion:   alt.Version,
					DepVerComp:   alt.VerComp,
				})
			}
		}
	}
	return out
}
