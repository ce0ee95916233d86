package materialize

// ExternalDep is one edge of the externally-synced
// package_dependencies relation (abbs-meta/piss), restricted to
// PKGDEP/BUILDDEP relationships. Syncing that relation is out of
// scope here, so in practice this slice is usually empty; the
// adjacency computation still honors it when a caller supplies rows.
type ExternalDep struct {
	Package    string
	DepPackage string
}

// ComputeSoBreaksDep builds, for each (package, dep_package) pair
// appearing in so_breaks, the deplist: the set of the package's
// *other* dep_packages reachable via a directed edge in the union of
// the external package_dependencies relation and the reverse of
// so_breaks itself. Base edges are materialized first, then the
// adjacency is computed in a second pass.
func ComputeSoBreaksDep(breaks []SoBreak, external []ExternalDep) []SoBreakDep {
	// pairs: every distinct (package, dep_package) the so_breaks
	// relation names, in first-seen order for deterministic output.
	type pair struct{ pkg, dep string }
	var order []pair
	seenPair := make(map[pair]bool)

	// depsByPackage: package -> its dep_packages (from so_breaks).
	depsByPackage := make(map[string][]string)
	seenDep := make(map[pair]bool)

	for _, b := range breaks {
		p := pair{pkg: b.ConsumerPkg, dep: b.ProviderPkg}
		if !seenPair[p] {
			seenPair[p] = true
			order = append(order, p)
		}
		if !seenDep[p] {
			seenDep[p] = true
			depsByPackage[p.pkg] = append(depsByPackage[p.pkg], p.dep)
		}
	}

	// adjacency: package -> dep_package reachable via the reverse of
	// so_breaks (dep_package depends on package) union external.
	adjacency := make(map[string]map[string]bool)
	addEdge := func(from, to string) {
		if adjacency[from] == nil {
			adjacency[from] = make(map[string]bool)
		}
		adjacency[from][to] = true
	}
	for _, b := range breaks {
		// reverse of so_breaks: provider depends-on consumer's edge
		// direction is consumer -> provider above; its reverse is
		// provider -> consumer.
		addEdge(b.ProviderPkg, b.ConsumerPkg)
	}
	for _, e := range external {
		addEdge(e.Package, e.DepPackage)
	}

	out := make([]SoBreakDep, 0, len(order))
	for _, p := range order {
		others := make([]string, 0)
		for _, candidate := range depsByPackage[p.pkg] {
			if candidate == p.dep {
				continue
			}
			if adjacency[p.pkg][candidate] || adjacency[p.dep][candidate] {
				others = append(others, candidate)
			}
		}
		out = append(out, SoBreakDep{Package: p.pkg, DepPackage: p.dep, DepList: others})
	}
	return out
}
