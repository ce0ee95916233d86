package db

import (
	"context"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	repoerrors "github.com/repovector/repovector/internal/errors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Pool wraps a pgxpool.Pool with the migration runner, splitting
// connection setup from schema migration.
type Pool struct {
	*pgxpool.Pool
}

// Connect opens a pool against connspec (a postgres:// DSN).
func Connect(ctx context.Context, connspec string) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(connspec)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.Config, "parsing db_pgconn", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.DBFatal, "connecting to database", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, repoerrors.Wrap(repoerrors.DBFatal, "pinging database", err)
	}
	return &Pool{pool}, nil
}

// Migrate applies every pending schema migration embedded under
// migrations/.
func Migrate(connspec string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return repoerrors.Wrap(repoerrors.DBFatal, "loading embedded migrations", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, withPgxScheme(connspec))
	if err != nil {
		return repoerrors.Wrap(repoerrors.DBFatal, "initializing migration runner", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return repoerrors.Wrap(repoerrors.DBFatal, "applying migrations", err)
	}
	return nil
}

// withPgxScheme rewrites a postgres:// DSN into the pgx5:// scheme
// golang-migrate's pgx/v5 database driver registers itself under.
func withPgxScheme(connspec string) string {
	const pgPrefix = "postgres://"
	const pgAltPrefix = "postgresql://"
	switch {
	case hasPrefix(connspec, pgPrefix):
		return "pgx5://" + connspec[len(pgPrefix):]
	case hasPrefix(connspec, pgAltPrefix):
		return "pgx5://" + connspec[len(pgAltPrefix):]
	default:
		return connspec
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
