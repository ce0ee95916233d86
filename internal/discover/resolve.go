package discover

import "github.com/repovector/repovector/internal/config"

// Resolver decides whether a branch discovered under pool/ is
// eligible for scanning: when discover is false, only branches with
// a [[branch]] entry in the configuration are scanned.
type Resolver struct {
	cfg      *config.Config
	discover bool
	known    map[string]bool
}

// NewResolver builds a Resolver from a loaded configuration.
func NewResolver(cfg *config.Config) *Resolver {
	known := make(map[string]bool, len(cfg.Branch))
	for _, b := range cfg.Branch {
		known[b.Name] = true
	}
	return &Resolver{cfg: cfg, discover: cfg.Config.Discover, known: known}
}

// Allowed reports whether topic's branch should be scanned.
func (r *Resolver) Allowed(branch string) bool {
	if r.discover {
		return true
	}
	return r.known[branch]
}

// Unknown returns the branches present in topics but absent from the
// configured branch table, for logging when discover is false.
func (r *Resolver) Unknown(topics []Topic) []string {
	seen := make(map[string]bool)
	var unknown []string
	for _, t := range topics {
		if r.known[t.Branch] || seen[t.Branch] {
			continue
		}
		seen[t.Branch] = true
		unknown = append(unknown, t.Branch)
	}
	return unknown
}
