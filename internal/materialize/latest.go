package materialize

import "sort"

// ComputeLatest picks, for each (repo, package), the row with maximum
// VerComp, restricted to rows with a non-null debtime. Ties break
// lexicographically on Version for determinism.
func ComputeLatest(packages []PackageRow) map[LatestKey]PackageRow {
	latest := make(map[LatestKey]PackageRow)
	for _, p := range packages {
		if !p.HasDebTime {
			continue
		}
		key := LatestKey{Repo: p.Repo, Package: p.Package}
		cur, ok := latest[key]
		if !ok || isNewerOrTiebreak(p, cur) {
			latest[key] = p
		}
	}
	return latest
}

func isNewerOrTiebreak(candidate, current PackageRow) bool {
	if candidate.VerComp != current.VerComp {
		return candidate.VerComp > current.VerComp
	}
	return candidate.Version > current.Version
}

// ComputeRanked ranks every Package row (1 = latest) within its
// (package, repo, architecture) group, independent of the debtime
// restriction ComputeLatest applies.
func ComputeRanked(packages []PackageRow) []Ranked {
	type groupKey struct {
		Package      string
		Repo         string
		Architecture string
	}
	groups := make(map[groupKey][]PackageRow)
	for _, p := range packages {
		key := groupKey{Package: p.Package, Repo: p.Repo, Architecture: p.Architecture}
		groups[key] = append(groups[key], p)
	}

	var out []Ranked
	for key, rows := range groups {
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].VerComp != rows[j].VerComp {
				return rows[i].VerComp > rows[j].VerComp
			}
			return rows[i].Version > rows[j].Version
		})
		for i, r := range rows {
			out = append(out, Ranked{
				Repo:         key.Repo,
				Package:      key.Package,
				Version:      r.Version,
				Architecture: key.Architecture,
				Rank:         i + 1,
			})
		}
	}
	return out
}
