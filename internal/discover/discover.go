// Package discover walks a repository's pool/ tree, derives the
// (branch, component, architecture) triple each .deb implies from its
// path, and resolves that triple against the configured branch table.
package discover

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	repoerrors "github.com/repovector/repovector/internal/errors"
)

// Location is the (branch, component, architecture) triple a .deb's
// path under pool/ implies, plus the repository identifiers derived
// from it.
type Location struct {
	Branch       string
	Component    string
	Architecture string

	// RepoKey is the arch-facing half of a repository name: the bare
	// architecture when Component is "main", otherwise
	// "<component>-<architecture>".
	RepoKey string
	// RepoName is "<RepoKey>/<Branch>", the full repository identifier
	// used as the Repo.name column.
	RepoName string
}

// Locate derives a Location from a .deb's path relative to the
// repository root's pool/ directory and the architecture parsed from
// its control stanza.
func Locate(poolRelativePath, architecture string) (Location, error) {
	poolRelativePath = filepath.ToSlash(poolRelativePath)
	parts := strings.Split(poolRelativePath, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Location{}, repoerrors.New(repoerrors.IO, "cannot determine branch/component for "+poolRelativePath)
	}

	loc := Location{
		Branch:       parts[0],
		Component:    parts[1],
		Architecture: architecture,
	}
	loc.RepoKey = RepoKey(loc.Component, architecture)
	loc.RepoName = loc.RepoKey + "/" + loc.Branch
	return loc, nil
}

// RepoKey returns the arch-facing half of a repository name: bare
// architecture for the "main" component, "<component>-<arch>"
// otherwise.
func RepoKey(component, architecture string) string {
	if component == "main" {
		return architecture
	}
	return component + "-" + architecture
}

// Topic is one (branch, component) pair discovered under pool/.
type Topic struct {
	Branch    string
	Component string
}

// DiscoverTopics walks exactly two levels below poolRoot and returns
// every (branch, component) pair found, for auto-registration when
// the configuration's discover flag is set.
func DiscoverTopics(poolRoot string) ([]Topic, error) {
	var topics []Topic

	entries, err := os.ReadDir(poolRoot)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.IO, "listing "+poolRoot, err)
	}
	for _, branch := range entries {
		if !branch.IsDir() {
			continue
		}
		subEntries, err := os.ReadDir(filepath.Join(poolRoot, branch.Name()))
		if err != nil {
			return nil, repoerrors.Wrap(repoerrors.IO, "listing "+filepath.Join(poolRoot, branch.Name()), err)
		}
		for _, component := range subEntries {
			if !component.IsDir() {
				continue
			}
			topics = append(topics, Topic{Branch: branch.Name(), Component: component.Name()})
		}
	}
	return topics, nil
}

// CollectDebs walks poolRoot and returns the path of every .deb found,
// in lexical order (filepath.WalkDir's own guarantee).
func CollectDebs(poolRoot string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(poolRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".deb") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.IO, "walking "+poolRoot, err)
	}
	return paths, nil
}
