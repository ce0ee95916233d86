package emit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/repovector/repovector/internal/deb"
	repoerrors "github.com/repovector/repovector/internal/errors"
	"github.com/repovector/repovector/internal/sign"
)

// querier is the subset of db.Pool the emitter needs; defined locally
// to avoid an import cycle with internal/db's higher-level stores.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// BranchConfig is the per-run configuration the driver needs from
// [config].
type BranchConfig struct {
	Origin             string
	Label              string
	Codename           string
	TTLDays            uint64
	AcquireByHashDepth int // 0 disables, -1 unlimited
	ExtraDistFiles     string
	Description        func(branch string) string
}

// Driver renders and publishes one branch's dists/ tree.
type Driver struct {
	pool   querier
	signer sign.Signer // nil when unsigned
	cfg    BranchConfig
}

func NewDriver(pool querier, signer sign.Signer, cfg BranchConfig) *Driver {
	return &Driver{pool: pool, signer: signer, cfg: cfg}
}

// branchMeta is a branch's distinct architectures and components,
// from grouping pv_repos.
type branchMeta struct {
	Branch        string
	Architectures []string
	Components    []string
}

// BranchMetadata returns one branchMeta per branch known to pv_repos.
func (d *Driver) BranchMetadata(ctx context.Context) ([]branchMeta, error) {
	rows, err := d.pool.Query(ctx, `
SELECT branch, array_agg(DISTINCT architecture), array_agg(DISTINCT component)
FROM pv_repos GROUP BY branch`)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.DBTransient, "loading branch metadata", err)
	}
	defer rows.Close()

	var out []branchMeta
	for rows.Next() {
		var m branchMeta
		if err := rows.Scan(&m.Branch, &m.Architectures, &m.Components); err != nil {
			return nil, repoerrors.Wrap(repoerrors.DBTransient, "scanning branch metadata", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PackagesForComponentArch loads every latest-restricted stanza for
// one (branch, component, architecture), joining pv_packages against
// pv_latest and pulling each package's ordered relationship fields, in
// the field order RenderStanza expects. Features is left empty: no
// table holds a features value to load.
func (d *Driver) PackagesForComponentArch(ctx context.Context, repo string) ([]PackageStanza, error) {
	rows, err := d.pool.Query(ctx, `
SELECT p.package, p.version, p.section, p.architecture, p.installed_size,
       p.maintainer, p.filename, p.size, p.sha256, p.description
FROM pv_packages p
JOIN pv_latest l ON l.repo = p.repo AND l.package = p.package AND l.version = p.version
WHERE p.repo = $1
ORDER BY p.package`, repo)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.DBTransient, "loading packages for "+repo, err)
	}
	defer rows.Close()

	var out []PackageStanza
	for rows.Next() {
		var p PackageStanza
		if err := rows.Scan(&p.Name, &p.Version, &p.Section, &p.Architecture, &p.InstalledSize,
			&p.Maintainer, &p.Filename, &p.Size, &p.SHA256, &p.Description); err != nil {
			return nil, repoerrors.Wrap(repoerrors.DBTransient, "scanning package row", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := d.attachRelationships(ctx, repo, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachRelationships fills in each stanza's Relationships slice in
// control-field order from pv_dependencies.
func (d *Driver) attachRelationships(ctx context.Context, repo string, stanzas []PackageStanza) error {
	byKey := make(map[string]*PackageStanza, len(stanzas))
	for i := range stanzas {
		byKey[stanzas[i].Name+"\x00"+stanzas[i].Version] = &stanzas[i]
	}

	rows, err := d.pool.Query(ctx, `
SELECT dep.package, dep.version, dep.relationship, dep.value
FROM pv_dependencies dep
JOIN pv_latest l ON l.repo = dep.repo AND l.package = dep.package AND l.version = dep.version
WHERE dep.repo = $1
ORDER BY dep.package, dep.version`, repo)
	if err != nil {
		return repoerrors.Wrap(repoerrors.DBTransient, "loading dependencies for "+repo, err)
	}
	defer rows.Close()

	order := make(map[string]int, len(deb.Relationships))
	for i, r := range deb.Relationships {
		order[string(r)] = i
	}

	for rows.Next() {
		var pkg, ver, rel, value string
		if err := rows.Scan(&pkg, &ver, &rel, &value); err != nil {
			return repoerrors.Wrap(repoerrors.DBTransient, "scanning dependency row", err)
		}
		s, ok := byKey[pkg+"\x00"+ver]
		if !ok {
			continue
		}
		s.Relationships = append(s.Relationships, RelationshipValue{
			Relationship: deb.Relationship(rel),
			Value:        value,
		})
	}
	for i := range stanzas {
		sortRelationships(stanzas[i].Relationships, order)
	}
	return rows.Err()
}

func sortRelationships(rels []RelationshipValue, order map[string]int) {
	for i := 1; i < len(rels); i++ {
		for j := i; j > 0 && order[string(rels[j-1].Relationship)] > order[string(rels[j].Relationship)]; j-- {
			rels[j-1], rels[j] = rels[j], rels[j-1]
		}
	}
}

// ContentsForRepo loads the (path, section, package) rows one
// architecture's Contents file needs, restricted to the same latest
// set PackagesForComponentArch uses and excluding directory entries
// (ftype 5).
func (d *Driver) ContentsForRepo(ctx context.Context, repo string) ([]ContentsFileRow, error) {
	rows, err := d.pool.Query(ctx, `
SELECT fe.path, fe.name, p.section, p.package
FROM pv_file_entries fe
JOIN pv_packages p ON p.package = fe.package AND p.version = fe.version AND p.repo = fe.repo
JOIN pv_latest l ON l.repo = p.repo AND l.package = p.package AND l.version = p.version
WHERE fe.repo = $1 AND fe.ftype <> 5`, repo)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.DBTransient, "loading file entries for "+repo, err)
	}
	defer rows.Close()

	var out []ContentsFileRow
	for rows.Next() {
		var r ContentsFileRow
		if err := rows.Scan(&r.Path, &r.Name, &r.Section, &r.Package); err != nil {
			return nil, repoerrors.Wrap(repoerrors.DBTransient, "scanning file entry row", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RepoNameFor returns the pv_repos.name for (branch, component,
// architecture), the join key PackagesForComponentArch/
// ContentsForRepo take.
func (d *Driver) RepoNameFor(ctx context.Context, branch, component, architecture string) (string, error) {
	var name string
	err := d.pool.QueryRow(ctx, `
SELECT name FROM pv_repos WHERE branch=$1 AND component=$2 AND architecture=$3`,
		branch, component, architecture).Scan(&name)
	if err != nil {
		return "", repoerrors.Wrap(repoerrors.DBTransient, "resolving repo name", err)
	}
	return name, nil
}

// repoRow is one pv_repos tuple within a branch.
type repoRow struct {
	Name         string
	Component    string
	Architecture string
}

// ReposForBranch returns every repo belonging to branch.
func (d *Driver) ReposForBranch(ctx context.Context, branch string) ([]repoRow, error) {
	rows, err := d.pool.Query(ctx, `
SELECT name, component, architecture FROM pv_repos WHERE branch=$1 ORDER BY component, architecture`, branch)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.DBTransient, "loading repos for branch "+branch, err)
	}
	defer rows.Close()

	var out []repoRow
	for rows.Next() {
		var r repoRow
		if err := rows.Scan(&r.Name, &r.Component, &r.Architecture); err != nil {
			return nil, repoerrors.Wrap(repoerrors.DBTransient, "scanning repo row", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RepoMtime returns the max mtime across a branch's repos, for the
// TTL freshness check.
func (d *Driver) RepoMtime(ctx context.Context, branch string) (time.Time, error) {
	var unixSecs int64
	err := d.pool.QueryRow(ctx, `
SELECT coalesce(max(mtime), 0) FROM pv_repos WHERE branch=$1`, branch).Scan(&unixSecs)
	if err != nil {
		return time.Time{}, repoerrors.Wrap(repoerrors.DBTransient, "loading repo mtime for "+branch, err)
	}
	return time.Unix(unixSecs, 0).UTC(), nil
}

func (m branchMeta) description(cfg BranchConfig) string {
	if cfg.Description != nil {
		if d := cfg.Description(m.Branch); d != "" {
			return d
		}
	}
	return fmt.Sprintf("Repository Topic: %s", m.Branch)
}
