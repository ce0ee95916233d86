package materialize

import "strings"

// ComputeSoBreaks builds edges between a provider SoDep (depends=0)
// and a consumer SoDep (depends=1), both restricted to packages
// present in latest, joined on SONAME and a visibility rule between
// their repos.
//
// When two providers in the same repo supply the same SONAME at
// compatible versions, an edge is produced from each — this
// duplication is preserved rather than deduplicated.
func ComputeSoBreaks(latest map[LatestKey]PackageRow, repos map[string]RepoMeta, sodeps []SoDepRow) []SoBreak {
	providers := make([]SoDepRow, 0)
	consumers := make([]SoDepRow, 0)
	for _, sd := range sodeps {
		row, ok := latest[LatestKey{Repo: sd.Repo, Package: sd.Package}]
		if !ok || row.Version != sd.Version {
			continue
		}
		if sd.Depends == 0 {
			providers = append(providers, sd)
		} else {
			consumers = append(consumers, sd)
		}
	}

	var edges []SoBreak
	for _, p := range providers {
		providerRepo, ok := repos[p.Repo]
		if !ok {
			continue
		}
		for _, c := range consumers {
			if p.Package == c.Package && p.Repo == c.Repo {
				continue
			}
			consumerRepo, ok := repos[c.Repo]
			if !ok {
				continue
			}
			if c.Name != p.Name {
				continue
			}
			if !visible(providerRepo, consumerRepo) {
				continue
			}
			if !versionCompatible(p.Ver, c.Ver) {
				continue
			}
			edges = append(edges, SoBreak{
				ProviderPkg:  p.Package,
				ProviderRepo: p.Repo,
				SOName:       p.Name,
				SOVer:        p.Ver,
				ConsumerPkg:  c.Package,
				ConsumerRepo: c.Repo,
				ConsumerVer:  latest[LatestKey{Repo: c.Repo, Package: c.Package}].Version,
				SoDepVer:     c.Ver,
			})
		}
	}
	return edges
}

// visible is the repo-visibility predicate: same architecture (or
// consumer arch "all"), provider's testing level no greater than the
// consumer's, and the provider's component is either the consumer's
// own component or "main".
func visible(provider, consumer RepoMeta) bool {
	if consumer.Architecture != provider.Architecture && consumer.Architecture != "all" {
		return false
	}
	if provider.Testing > consumer.Testing {
		return false
	}
	return provider.Component == consumer.Component || provider.Component == "main"
}

// versionCompatible is the SONAME version matching rule: exact match,
// or the provider's version is an extension of the consumer's
// (dot-separated prefix), e.g. provider ".6.3" covers consumer
// requirement ".6".
func versionCompatible(providerVer, consumerVer string) bool {
	if providerVer == consumerVer {
		return true
	}
	return strings.HasPrefix(providerVer, consumerVer+".")
}

// AppendIssueEdges folds in consumer candidates surfaced as issue
// rows with errno 431, already shaped as an edge by the QA pass that
// recorded them, whose sover_provide detail prefix-matches the
// provider's version.
func AppendIssueEdges(base []SoBreak, issueEdges []SoBreak) []SoBreak {
	for _, e := range issueEdges {
		if versionCompatible(e.SOVer, e.SoDepVer) {
			base = append(base, e)
		}
	}
	return base
}
