package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	repoerrors "github.com/repovector/repovector/internal/errors"
)

// DBSyncStore owns pv_dbsync: the last-applied ETag/timestamp of each
// externally-synced foreign table (abbs-meta, piss). Nothing in this
// repository writes it: Scheduler.Sync returns ErrNotImplemented.
type DBSyncStore struct{ pool *Pool }

func NewDBSyncStore(pool *Pool) *DBSyncStore { return &DBSyncStore{pool: pool} }

// Get returns the stored ETag for name, or "" if never synced.
func (s *DBSyncStore) Get(ctx context.Context, name string) (string, error) {
	row := s.pool.QueryRow(ctx, `SELECT etag FROM pv_dbsync WHERE name = $1`, name)
	var etag string
	if err := row.Scan(&etag); err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", repoerrors.Wrap(repoerrors.DBTransient, "fetching dbsync etag for "+name, err)
	}
	return etag, nil
}

// Set records name's ETag as of now.
func (s *DBSyncStore) Set(ctx context.Context, name, etag string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO pv_dbsync (name, etag, mtime) VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET etag = $2, mtime = $3`,
		name, etag, time.Now().UTC())
	if err != nil {
		return repoerrors.Wrap(repoerrors.DBTransient, "setting dbsync etag for "+name, err)
	}
	return nil
}
