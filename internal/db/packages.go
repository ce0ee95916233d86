package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	repoerrors "github.com/repovector/repovector/internal/errors"
)

// PackageStore owns pv_packages and its child tables. The scan
// orchestrator is its sole writer.
type PackageStore struct{ pool *Pool }

func NewPackageStore(pool *Pool) *PackageStore { return &PackageStore{pool: pool} }

// Upsert writes pkg and its children in one transaction: an
// ON CONFLICT DO UPDATE whose RETURNING (xmax = 0) tells us whether
// the row was freshly inserted (new=true) or collided with an
// existing (package, version, repo) key under a different hash. A
// collision routes the *existing* row's content into
// pv_package_duplicate and leaves the new hash's data in place.
func (s *PackageStore) Upsert(ctx context.Context, pkg Package) (wasNew bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, repoerrors.Wrap(repoerrors.DBTransient, "beginning package upsert tx", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
INSERT INTO pv_packages (package, version, repo, architecture, filename, size, sha256, mtime, debtime, section, installed_size, maintainer, description, vercomp)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (package, version, repo)
DO UPDATE SET filename=$5, size=$6, sha256=$7, mtime=$8, debtime=$9, section=$10, installed_size=$11, maintainer=$12, description=$13, architecture=$4, vercomp=$14
RETURNING (xmax = 0) AS inserted`,
		pkg.Package, pkg.Version, pkg.Repo, pkg.Architecture, pkg.Filename, pkg.Size, pkg.SHA256,
		pkg.Mtime, pkg.DebTime, pkg.Section, pkg.InstalledSize, pkg.Maintainer, pkg.Description, pkg.VerComp)

	if err := row.Scan(&wasNew); err != nil {
		return false, repoerrors.Wrap(repoerrors.DBTransient, "upserting package "+pkg.Filename, err)
	}

	if !wasNew {
		if err := demoteToDuplicate(ctx, tx, pkg); err != nil {
			return false, err
		}
	}

	if err := replaceChildren(ctx, tx, pkg); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, repoerrors.Wrap(repoerrors.DBTransient, "committing package upsert", err)
	}
	return wasNew, nil
}

// demoteToDuplicate moves the previous (package, version, repo)
// occupant's row contents into pv_package_duplicate, since the new
// hash just overwrote it in pv_packages above.
func demoteToDuplicate(ctx context.Context, tx pgx.Tx, pkg Package) error {
	_, err := tx.Exec(ctx, `
INSERT INTO pv_package_duplicate (filename, package, version, repo, architecture, size, sha256, mtime, debtime, section, installed_size, maintainer, description, vercomp)
SELECT filename, package, version, repo, architecture, size, sha256, mtime, debtime, section, installed_size, maintainer, description, vercomp
FROM pv_packages WHERE package=$1 AND version=$2 AND repo=$3 AND filename <> $4
ON CONFLICT (filename) DO NOTHING`,
		pkg.Package, pkg.Version, pkg.Repo, pkg.Filename)
	if err != nil {
		return repoerrors.Wrap(repoerrors.DBTransient, "demoting duplicate for "+pkg.Filename, err)
	}
	return nil
}

// replaceChildren deletes and re-inserts the dependency, sodep, and
// file-entry rows for pkg's key atomically.
func replaceChildren(ctx context.Context, tx pgx.Tx, pkg Package) error {
	for _, stmt := range []string{
		`DELETE FROM pv_dependencies WHERE package=$1 AND version=$2 AND repo=$3`,
		`DELETE FROM pv_sodeps WHERE package=$1 AND version=$2 AND repo=$3`,
		`DELETE FROM pv_file_entries WHERE package=$1 AND version=$2 AND repo=$3`,
	} {
		if _, err := tx.Exec(ctx, stmt, pkg.Package, pkg.Version, pkg.Repo); err != nil {
			return repoerrors.Wrap(repoerrors.DBTransient, "clearing children for "+pkg.Filename, err)
		}
	}

	for _, dep := range pkg.Dependencies {
		if _, err := tx.Exec(ctx, `
INSERT INTO pv_dependencies (package, version, repo, relationship, value) VALUES ($1,$2,$3,$4,$5)`,
			pkg.Package, pkg.Version, pkg.Repo, dep.Relationship, dep.Value); err != nil {
			return repoerrors.Wrap(repoerrors.DBTransient, "inserting dependency for "+pkg.Filename, err)
		}
	}

	for _, so := range pkg.SoDeps {
		if _, err := tx.Exec(ctx, `
INSERT INTO pv_sodeps (package, version, repo, depends, name, ver) VALUES ($1,$2,$3,$4,$5,$6)`,
			pkg.Package, pkg.Version, pkg.Repo, so.Depends, so.Name, so.Ver); err != nil {
			return repoerrors.Wrap(repoerrors.DBTransient, "inserting sodep for "+pkg.Filename, err)
		}
	}

	batch := &pgx.Batch{}
	for _, f := range pkg.Files {
		batch.Queue(`
INSERT INTO pv_file_entries (package, version, repo, path, name, size, ftype, perm, uid, gid, uname, gname)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			pkg.Package, pkg.Version, pkg.Repo, f.Path, f.Name, f.Size, f.FType, f.Perm, f.UID, f.GID, f.Uname, f.Gname)
	}
	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				return repoerrors.Wrap(repoerrors.DBTransient, "inserting file entries for "+pkg.Filename, err)
			}
		}
	}

	return nil
}

// ExistingKey identifies a Package row by content for the Scan
// Orchestrator's skip-unchanged / rename-via-hash checks.
type ExistingKey struct {
	Key
	Filename string
	Size     int64
	SHA256   string
	Mtime    int64
}

// ByRepo returns the (filename, size, sha256, mtime) of every package
// row in repo, for the orchestrator's reconciliation pass.
func (s *PackageStore) ByRepo(ctx context.Context, repo string) ([]ExistingKey, error) {
	rows, err := s.pool.Query(ctx, `
SELECT package, version, repo, filename, size, sha256, mtime FROM pv_packages WHERE repo = $1`, repo)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.DBTransient, "listing packages for repo "+repo, err)
	}
	defer rows.Close()

	var out []ExistingKey
	for rows.Next() {
		var e ExistingKey
		if err := rows.Scan(&e.Package, &e.Version, &e.Repo, &e.Filename, &e.Size, &e.SHA256, &e.Mtime); err != nil {
			return nil, repoerrors.Wrap(repoerrors.DBTransient, "scanning package row", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ByFilename returns the ExistingKey at path, or nil if no row
// matches, used for the scan orchestrator's skip-unchanged check.
func (s *PackageStore) ByFilename(ctx context.Context, path string) (*ExistingKey, error) {
	row := s.pool.QueryRow(ctx, `
SELECT package, version, repo, filename, size, sha256, mtime FROM pv_packages WHERE filename = $1`, path)
	var e ExistingKey
	if err := row.Scan(&e.Package, &e.Version, &e.Repo, &e.Filename, &e.Size, &e.SHA256, &e.Mtime); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, repoerrors.Wrap(repoerrors.DBTransient, "looking up package by filename "+path, err)
	}
	return &e, nil
}

// BySHA256 returns the ExistingKey for sha256, or nil if no row
// matches, used for the rename-via-hash-match check.
func (s *PackageStore) BySHA256(ctx context.Context, sha256 string) (*ExistingKey, error) {
	row := s.pool.QueryRow(ctx, `
SELECT package, version, repo, filename, size, sha256, mtime FROM pv_packages WHERE sha256 = $1 LIMIT 1`, sha256)
	var e ExistingKey
	if err := row.Scan(&e.Package, &e.Version, &e.Repo, &e.Filename, &e.Size, &e.SHA256, &e.Mtime); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, repoerrors.Wrap(repoerrors.DBTransient, "looking up package by sha256", err)
	}
	return &e, nil
}

// RenameFile updates filename/mtime in place without reparsing, for
// a file that moved but whose content hash is unchanged.
func (s *PackageStore) RenameFile(ctx context.Context, key Key, filename string, mtime int64) error {
	_, err := s.pool.Exec(ctx, `
UPDATE pv_packages SET filename=$4, mtime=$5 WHERE package=$1 AND version=$2 AND repo=$3`,
		key.Package, key.Version, key.Repo, filename, mtime)
	if err != nil {
		return repoerrors.Wrap(repoerrors.DBTransient, "renaming package file to "+filename, err)
	}
	return nil
}

// DeleteByFilename removes the Package row at filename (cascading to
// its children), for files no longer present on disk.
func (s *PackageStore) DeleteByFilename(ctx context.Context, filename string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM pv_packages WHERE filename = $1`, filename)
	if err != nil {
		return repoerrors.Wrap(repoerrors.DBTransient, "deleting package at "+filename, err)
	}
	return nil
}

// AllFilenames returns every stored Package filename (pool-relative
// paths), for the orchestrator's removed-file detection pass.
func (s *PackageStore) AllFilenames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT filename FROM pv_packages`)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.DBTransient, "listing stored filenames", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, repoerrors.Wrap(repoerrors.DBTransient, "scanning filename row", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// MaxMtime returns the maximum mtime among repo's surviving packages,
// for RepoStore.TouchMtime.
func (s *PackageStore) MaxMtime(ctx context.Context, repo string) (int64, error) {
	row := s.pool.QueryRow(ctx, `SELECT coalesce(max(mtime), 0) FROM pv_packages WHERE repo = $1`, repo)
	var mtime int64
	if err := row.Scan(&mtime); err != nil {
		return 0, repoerrors.Wrap(repoerrors.DBTransient, "computing max mtime for "+repo, err)
	}
	return mtime, nil
}
