package db

import (
	"context"
	"encoding/json"

	repoerrors "github.com/repovector/repovector/internal/errors"
)

// IssueStore records per-file and QA findings (the Issue entity).
type IssueStore struct{ pool *Pool }

func NewIssueStore(pool *Pool) *IssueStore { return &IssueStore{pool: pool} }

// Record upserts one Issue row, refreshing mtime/atime on conflict.
func (s *IssueStore) Record(ctx context.Context, issue Issue) error {
	detail, err := json.Marshal(issue.Detail)
	if err != nil {
		return repoerrors.Wrap(repoerrors.IO, "marshaling issue detail", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO pv_package_issues (package, version, repo, errno, filename, level, detail)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (package, version, repo, errno, filename)
DO UPDATE SET level=$6, detail=$7, mtime=now(), atime=now()`,
		issue.Package, issue.Version, issue.Repo, issue.Errno, issue.Filename, issue.Level, detail)
	if err != nil {
		return repoerrors.Wrap(repoerrors.DBTransient, "recording issue for "+issue.Filename, err)
	}
	return nil
}

// RefreshDue reports whether the QA analysis pass is due: skip if
// the most recent atime is within delayHours of now.
func (s *IssueStore) RefreshDue(ctx context.Context, delayHours int) (bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT NOT coalesce(max(atime) + make_interval(hours => $1) >= now(), false) FROM pv_package_issues`, delayHours)
	var due bool
	if err := row.Scan(&due); err != nil {
		return false, repoerrors.Wrap(repoerrors.DBTransient, "checking QA refresh gate", err)
	}
	return due, nil
}
