// Package depparse splits a raw dependency-relation field value (the
// Dependency.value column) into its structured alternatives, used to
// populate the parsed_deps derived relation.
package depparse

import (
	"regexp"
	"strings"

	"github.com/repovector/repovector/internal/version"
)

// relationPattern matches one alternative of a dependency relation:
// package name, optional architecture qualifier, optional version
// constraint, optional arch-restriction list, optional build-profile
// restriction.
var relationPattern = regexp.MustCompile(
	`^\s*([a-zA-Z0-9.+-]{2,})(?::([a-zA-Z0-9][a-zA-Z0-9-]*))?(?:\s*\(\s*([>=<]+)\s*([0-9a-zA-Z:+~.-]+)\s*\))?(?:\s*\[[\s!\w-]+\])?\s*(?:<.+>)?\s*$`,
)

// Alternative is one parsed `|`-separated option within a dependency
// item.
type Alternative struct {
	Package      string
	Architecture string
	RelOp        string
	Version      string
	// VerComp is the codec encoding of Version, empty when Version is
	// empty (no constraint).
	VerComp string
}

// Item is one `,`-separated position within a relationship's value,
// holding its alternatives in `foo | bar` order.
type Item struct {
	// Nr is the item's 1-based position within the relationship value.
	Nr           int
	Alternatives []Alternative
}

// Parse splits a raw Dependency.value into its ordered Items, each
// holding its ordered Alternatives (nr/alt positions, regex capture
// groups, depvercomp derived via the version codec).
func Parse(value string) []Item {
	var items []Item
	for i, rawItem := range strings.Split(value, ",") {
		item := Item{Nr: i + 1}
		for _, rawAlt := range strings.Split(rawItem, "|") {
			m := relationPattern.FindStringSubmatch(rawAlt)
			if m == nil {
				continue
			}
			alt := Alternative{
				Package:      m[1],
				Architecture: m[2],
				RelOp:        m[3],
				Version:      m[4],
			}
			if alt.Version != "" {
				alt.VerComp = version.Encode(alt.Version)
			}
			item.Alternatives = append(item.Alternatives, alt)
		}
		items = append(items, item)
	}
	return items
}
