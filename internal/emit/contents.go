package emit

import (
	"fmt"
	"sort"
	"strings"
)

// ContentsFileRow is one installed-file row feeding the Contents-<arch>
// computation: a file's path joined with each package that installs
// it.
type ContentsFileRow struct {
	Path    string // directory portion
	Name    string // basename
	Section string // "" when unset
	Package string
}

// RenderContents groups rows by their full path and renders one line
// per path: "<path>/<name>   <section/package>,<section/package>...\n"
// (three spaces between the path and its owners),
// owners deduplicated and sorted for deterministic, reproducible
// output.
func RenderContents(rows []ContentsFileRow) string {
	owners := make(map[string]map[string]bool)
	var order []string
	seen := make(map[string]bool)

	for _, r := range rows {
		full := strings.TrimPrefix(r.Path+"/"+r.Name, "/")
		owner := r.Package
		if r.Section != "" {
			owner = r.Section + "/" + r.Package
		}
		if owners[full] == nil {
			owners[full] = make(map[string]bool)
		}
		owners[full][owner] = true
		if !seen[full] {
			seen[full] = true
			order = append(order, full)
		}
	}

	sort.Strings(order)

	var b strings.Builder
	for _, full := range order {
		ownerSet := owners[full]
		list := make([]string, 0, len(ownerSet))
		for o := range ownerSet {
			list = append(list, o)
		}
		sort.Strings(list)
		fmt.Fprintf(&b, "%s   %s\n", full, strings.Join(list, ","))
	}
	return b.String()
}

// RenderBinContents restricts RenderContents's output to paths under
// usr/bin/, for the BinContents-<arch> side file.
func RenderBinContents(rows []ContentsFileRow) string {
	var filtered []ContentsFileRow
	for _, r := range rows {
		if strings.Contains(r.Path+"/"+r.Name, "usr/bin/") {
			filtered = append(filtered, r)
		}
	}
	return RenderContents(filtered)
}
