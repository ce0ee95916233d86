package materialize

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	repoerrors "github.com/repovector/repovector/internal/errors"
)

// querier is the subset of db.Pool the driver needs; defined locally
// to avoid an import cycle with internal/db's higher-level stores.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Driver loads the base relations from Postgres, computes a fresh
// Snapshot, and swaps it in with a truncate-then-insert transaction:
// refresh is atomic per relation — build a new snapshot, then swap.
type Driver struct{ pool querier }

func NewDriver(pool querier) *Driver { return &Driver{pool: pool} }

// Refresh recomputes every derived relation and persists the result.
func (d *Driver) Refresh(ctx context.Context) (Snapshot, error) {
	packages, err := d.loadPackages(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	repos, err := d.loadRepos(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	deps, err := d.loadDependencies(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	sodeps, err := d.loadSoDeps(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	issueEdges, err := d.loadIssueEdges(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	latest := ComputeLatest(packages)
	snapshot := Snapshot{
		Latest:     latest,
		Ranked:     ComputeRanked(packages),
		ParsedDeps: ComputeParsedDeps(latest, deps),
	}
	snapshot.SoBreaks = AppendIssueEdges(ComputeSoBreaks(latest, repos, sodeps), issueEdges)
	snapshot.SoBreaksDep = ComputeSoBreaksDep(snapshot.SoBreaks, nil)

	if err := d.persist(ctx, snapshot); err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}

func (d *Driver) loadPackages(ctx context.Context) ([]PackageRow, error) {
	rows, err := d.pool.Query(ctx, `SELECT repo, package, version, architecture, vercomp, (debtime IS NOT NULL) FROM pv_packages`)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.DBTransient, "loading packages for materialize", err)
	}
	defer rows.Close()
	var out []PackageRow
	for rows.Next() {
		var p PackageRow
		if err := rows.Scan(&p.Repo, &p.Package, &p.Version, &p.Architecture, &p.VerComp, &p.HasDebTime); err != nil {
			return nil, repoerrors.Wrap(repoerrors.DBTransient, "scanning package row", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *Driver) loadRepos(ctx context.Context) (map[string]RepoMeta, error) {
	rows, err := d.pool.Query(ctx, `SELECT name, testing, component, architecture FROM pv_repos`)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.DBTransient, "loading repos for materialize", err)
	}
	defer rows.Close()
	out := make(map[string]RepoMeta)
	for rows.Next() {
		var r RepoMeta
		if err := rows.Scan(&r.Name, &r.Testing, &r.Component, &r.Architecture); err != nil {
			return nil, repoerrors.Wrap(repoerrors.DBTransient, "scanning repo row", err)
		}
		out[r.Name] = r
	}
	return out, rows.Err()
}

func (d *Driver) loadDependencies(ctx context.Context) ([]DependencyRow, error) {
	rows, err := d.pool.Query(ctx, `SELECT package, version, repo, relationship, value FROM pv_dependencies`)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.DBTransient, "loading dependencies for materialize", err)
	}
	defer rows.Close()
	var out []DependencyRow
	for rows.Next() {
		var dep DependencyRow
		if err := rows.Scan(&dep.Package, &dep.Version, &dep.Repo, &dep.Relationship, &dep.Value); err != nil {
			return nil, repoerrors.Wrap(repoerrors.DBTransient, "scanning dependency row", err)
		}
		out = append(out, dep)
	}
	return out, rows.Err()
}

func (d *Driver) loadSoDeps(ctx context.Context) ([]SoDepRow, error) {
	rows, err := d.pool.Query(ctx, `SELECT package, version, repo, depends, name, ver FROM pv_sodeps`)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.DBTransient, "loading sodeps for materialize", err)
	}
	defer rows.Close()
	var out []SoDepRow
	for rows.Next() {
		var sd SoDepRow
		if err := rows.Scan(&sd.Package, &sd.Version, &sd.Repo, &sd.Depends, &sd.Name, &sd.Ver); err != nil {
			return nil, repoerrors.Wrap(repoerrors.DBTransient, "scanning sodep row", err)
		}
		out = append(out, sd)
	}
	return out, rows.Err()
}

// issueSOBreakDetail is the shape a QA pass stores in
// pv_package_issues.detail for errno 431 findings, matching the
// SoBreak fields AppendIssueEdges needs.
type issueSOBreakDetail struct {
	ProviderPkg  string `json:"provider_pkg"`
	ProviderRepo string `json:"provider_repo"`
	SOName       string `json:"soname"`
	SOVerProvide string `json:"sover_provide"`
	ConsumerPkg  string `json:"consumer_pkg"`
	ConsumerRepo string `json:"consumer_repo"`
	ConsumerVer  string `json:"consumer_ver"`
	SoDepVer     string `json:"sodepver"`
}

func (d *Driver) loadIssueEdges(ctx context.Context) ([]SoBreak, error) {
	rows, err := d.pool.Query(ctx, `SELECT detail FROM pv_package_issues WHERE errno = 431`)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.DBTransient, "loading so-break issues for materialize", err)
	}
	defer rows.Close()
	var out []SoBreak
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, repoerrors.Wrap(repoerrors.DBTransient, "scanning so-break issue row", err)
		}
		var detail issueSOBreakDetail
		if err := json.Unmarshal(raw, &detail); err != nil {
			continue // malformed detail blob: skip rather than abort the refresh
		}
		out = append(out, SoBreak{
			ProviderPkg:  detail.ProviderPkg,
			ProviderRepo: detail.ProviderRepo,
			SOName:       detail.SOName,
			SOVer:        detail.SOVerProvide,
			ConsumerPkg:  detail.ConsumerPkg,
			ConsumerRepo: detail.ConsumerRepo,
			ConsumerVer:  detail.ConsumerVer,
			SoDepVer:     detail.SoDepVer,
		})
	}
	return out, rows.Err()
}

func (d *Driver) persist(ctx context.Context, snap Snapshot) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return repoerrors.Wrap(repoerrors.DBTransient, "beginning materialize swap", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"pv_latest", "pv_ranked", "pv_parsed_deps", "pv_so_breaks", "pv_so_breaks_dep"} {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+table); err != nil {
			return repoerrors.Wrap(repoerrors.DBTransient, "truncating "+table, err)
		}
	}

	batch := &pgx.Batch{}
	for key, row := range snap.Latest {
		batch.Queue(`INSERT INTO pv_latest (repo, package, version) VALUES ($1,$2,$3)`, key.Repo, key.Package, row.Version)
	}
	for _, r := range snap.Ranked {
		batch.Queue(`INSERT INTO pv_ranked (repo, package, version, architecture, rank) VALUES ($1,$2,$3,$4,$5)`,
			r.Repo, r.Package, r.Version, r.Architecture, r.Rank)
	}
	for _, p := range snap.ParsedDeps {
		batch.Queue(`
INSERT INTO pv_parsed_deps (package, version, repo, relationship, nr, alt, dep_package, dep_arch, relop, dep_version, dep_vercomp)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			p.Package, p.Version, p.Repo, p.Relationship, p.Nr, p.Alt, p.DepPackage, p.DepArch, p.RelOp, p.DepVersion, p.DepVerComp)
	}
	for _, b := range snap.SoBreaks {
		batch.Queue(`
INSERT INTO pv_so_breaks (provider_pkg, provider_repo, soname, sover, consumer_pkg, consumer_repo, consumer_ver, sodepver)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (provider_pkg, provider_repo, consumer_pkg, consumer_repo, soname) DO NOTHING`,
			b.ProviderPkg, b.ProviderRepo, b.SOName, b.SOVer, b.ConsumerPkg, b.ConsumerRepo, b.ConsumerVer, b.SoDepVer)
	}
	for _, dep := range snap.SoBreaksDep {
		batch.Queue(`INSERT INTO pv_so_breaks_dep (package, dep_package, deplist) VALUES ($1,$2,$3)`,
			dep.Package, dep.DepPackage, dep.DepList)
	}

	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return repoerrors.Wrap(repoerrors.DBTransient, "swapping materialized relations", err)
			}
		}
		if err := br.Close(); err != nil {
			return repoerrors.Wrap(repoerrors.DBTransient, "closing materialize batch", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return repoerrors.Wrap(repoerrors.DBTransient, "committing materialize swap", err)
	}
	return nil
}
