// Package config loads the TOML configuration file: a thin, faithful
// parser, not a validation framework.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	repoerrors "github.com/repovector/repovector/internal/errors"
)

// General holds the top-level [config] keys.
type General struct {
	DBPgconn       string `toml:"db_pgconn"`
	ChangeNotifier string `toml:"change_notifier"`
	Path           string `toml:"path"`
	Discover       bool   `toml:"discover"`
	Origin         string `toml:"origin"`
	Label          string `toml:"label"`
	Codename       string `toml:"codename"`
	TTL            uint64 `toml:"ttl"`
	Certificate    string `toml:"certificate"`
	AbbsSync       bool   `toml:"abbs_sync"`
	ExtraDistFiles string `toml:"extra_dist_files"`
	AcquireByHash  int    `toml:"acquire_by_hash"`
	QAInterval     int    `toml:"qa_interval"`
}

// Branch holds one [[branch]] section. A branch is stable (testing=0)
// unless marked testing or explosive; explosive implies testing.
type Branch struct {
	Name        string  `toml:"name"`
	Description string  `toml:"desc"`
	TTL         *uint64 `toml:"ttl"`
	Testing     bool    `toml:"testing"`
	Explosive   bool    `toml:"explosive"`
}

// TestingLevel returns the branch's testing column value: 0 (stable),
// 1 (topic/testing), or 2 (explosive).
func (b Branch) TestingLevel() int16 {
	switch {
	case b.Explosive:
		return 2
	case b.Testing:
		return 1
	default:
		return 0
	}
}

// Config is the fully parsed configuration file.
type Config struct {
	Config  General  `toml:"config"`
	Branch  []Branch `toml:"branch"`
}

// Load reads and parses the TOML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.Config, fmt.Sprintf("reading config %q", path), err)
	}
	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, repoerrors.Wrap(repoerrors.Config, fmt.Sprintf("parsing config %q", path), err)
	}
	return &cfg, nil
}

// Lint reports configuration warnings that don't block startup.
func (c *Config) Lint() []string {
	var warnings []string
	if c.Config.Discover && len(c.Branch) > 0 {
		warnings = append(warnings, "specifying [[branch]] sections when discover=true only has their descriptions read")
	}
	if c.Config.AbbsSync {
		warnings = append(warnings, "abbs_sync is deprecated and will be removed in a future version")
	}
	return warnings
}

// TTLForBranch returns the per-branch TTL override if set, otherwise
// the general TTL.
func (c *Config) TTLForBranch(branchName string) uint64 {
	for _, b := range c.Branch {
		if b.Name == branchName && b.TTL != nil {
			return *b.TTL
		}
	}
	return c.Config.TTL
}

// Description returns the configured description for a branch, or a
// generated default.
func (c *Config) Description(branchName string) string {
	for _, b := range c.Branch {
		if b.Name == branchName {
			return b.Description
		}
	}
	return fmt.Sprintf("%s Topic: %s", c.Config.Label, branchName)
}
