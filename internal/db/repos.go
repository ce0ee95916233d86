package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	repoerrors "github.com/repovector/repovector/internal/errors"
)

// RepoStore owns the Repo table: the Scan Orchestrator upserts a Repo
// row the first time it sees a (branch, component, architecture)
// triple and keeps its mtime current thereafter.
type RepoStore struct{ pool *Pool }

func NewRepoStore(pool *Pool) *RepoStore { return &RepoStore{pool: pool} }

// Upsert creates repo.Name if absent, leaving mtime/testing untouched
// on conflict. TouchMtime is the dedicated path for updating mtime;
// nothing updates testing after the row is created.
func (s *RepoStore) Upsert(ctx context.Context, repo Repo) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO pv_repos (name, path, testing, branch, component, architecture, mtime)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (name) DO NOTHING`,
		repo.Name, repo.Path, repo.Testing, repo.Branch, repo.Component, repo.Architecture, repo.Mtime)
	if err != nil {
		return repoerrors.Wrap(repoerrors.DBTransient, "upserting repo "+repo.Name, err)
	}
	return nil
}

// TouchMtime sets repo.mtime to the max mtime of its surviving
// packages.
func (s *RepoStore) TouchMtime(ctx context.Context, name string, mtime int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE pv_repos SET mtime = $2 WHERE name = $1`, name, mtime)
	if err != nil {
		return repoerrors.Wrap(repoerrors.DBTransient, "touching mtime for repo "+name, err)
	}
	return nil
}

// Get returns the Repo row named name, or nil if it does not exist.
func (s *RepoStore) Get(ctx context.Context, name string) (*Repo, error) {
	row := s.pool.QueryRow(ctx, `SELECT name, path, testing, branch, component, architecture, mtime FROM pv_repos WHERE name = $1`, name)
	var r Repo
	if err := row.Scan(&r.Name, &r.Path, &r.Testing, &r.Branch, &r.Component, &r.Architecture, &r.Mtime); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, repoerrors.Wrap(repoerrors.DBTransient, "fetching repo "+name, err)
	}
	return &r, nil
}

// All returns every configured Repo row, ordered by name.
func (s *RepoStore) All(ctx context.Context) ([]Repo, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, path, testing, branch, component, architecture, mtime FROM pv_repos ORDER BY name`)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.DBTransient, "listing repos", err)
	}
	defer rows.Close()

	var out []Repo
	for rows.Next() {
		var r Repo
		if err := rows.Scan(&r.Name, &r.Path, &r.Testing, &r.Branch, &r.Component, &r.Architecture, &r.Mtime); err != nil {
			return nil, repoerrors.Wrap(repoerrors.DBTransient, "scanning repo row", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteMissing removes repo rows no longer present among
// currentNames, cascading to their packages — garbage collection for
// branches whose pool directory has disappeared.
func (s *RepoStore) DeleteMissing(ctx context.Context, currentNames []string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pv_repos WHERE NOT (name = ANY($1))`, currentNames)
	if err != nil {
		return 0, repoerrors.Wrap(repoerrors.DBTransient, "deleting removed repos", err)
	}
	return tag.RowsAffected(), nil
}
