// Package notify computes the symmetric diff between two latest-set
// snapshots and publishes a compact summary per changed repo over a
// pub/sub channel. Publish failures are logged, never fatal: the
// notifier observes state, it never gates the scan/materialize/emit
// pipeline.
package notify

import (
	"sort"

	"github.com/repovector/repovector/internal/materialize"
)

// Updated describes one package whose latest version changed.
type Updated struct {
	Name string
	Old  string
	New  string
}

// RepoChange summarizes what changed in one repo's latest set between
// two snapshots.
type RepoChange struct {
	Repo    string
	Added   []string
	Removed []string
	Updated []Updated
}

// Diff computes the symmetric diff between before and after, grouped
// by repo. Repos with no change are omitted. Ordering within each
// slice is lexicographic on package name for reproducible output.
func Diff(before, after map[materialize.LatestKey]materialize.PackageRow) []RepoChange {
	byRepo := map[string]*RepoChange{}

	get := func(repo string) *RepoChange {
		rc, ok := byRepo[repo]
		if !ok {
			rc = &RepoChange{Repo: repo}
			byRepo[repo] = rc
		}
		return rc
	}

	for key, row := range after {
		prev, existed := before[key]
		if !existed {
			get(key.Repo).Added = append(get(key.Repo).Added, key.Package+"="+row.Version)
			continue
		}
		if prev.Version != row.Version {
			get(key.Repo).Updated = append(get(key.Repo).Updated, Updated{
				Name: key.Package,
				Old:  prev.Version,
				New:  row.Version,
			})
		}
	}
	for key, row := range before {
		if _, stillPresent := after[key]; !stillPresent {
			get(key.Repo).Removed = append(get(key.Repo).Removed, key.Package+"="+row.Version)
		}
	}

	changes := make([]RepoChange, 0, len(byRepo))
	for _, rc := range byRepo {
		if len(rc.Added) == 0 && len(rc.Removed) == 0 && len(rc.Updated) == 0 {
			continue
		}
		sort.Strings(rc.Added)
		sort.Strings(rc.Removed)
		sort.Slice(rc.Updated, func(i, j int) bool { return rc.Updated[i].Name < rc.Updated[j].Name })
		changes = append(changes, *rc)
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Repo < changes[j].Repo })
	return changes
}
