package scan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/repovector/repovector/internal/config"
	"github.com/repovector/repovector/internal/db"
	"github.com/repovector/repovector/internal/deb"
	"github.com/repovector/repovector/internal/discover"
	repoerrors "github.com/repovector/repovector/internal/errors"
	"github.com/repovector/repovector/internal/metrics"
	"github.com/repovector/repovector/internal/version"
)

// maxWorkers caps the inspection worker pool at min(CPUs, 16).
func maxWorkers() int {
	n := numCPU()
	if n > 16 {
		return 16
	}
	if n < 1 {
		return 1
	}
	return n
}

// Orchestrator reconciles one pool/ tree against the Package index.
type Orchestrator struct {
	packages *db.PackageStore
	repos    *db.RepoStore
	issues   *db.IssueStore
	cfg      *config.Config
	logger   *zap.Logger
	workers  int
	metrics  *metrics.Registry
}

// New builds an Orchestrator bound to the given stores and configuration.
func New(packages *db.PackageStore, repos *db.RepoStore, issues *db.IssueStore, cfg *config.Config, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{packages: packages, repos: repos, issues: issues, cfg: cfg, logger: logger, workers: maxWorkers()}
}

// WithMetrics attaches a metrics registry that per-file failures are
// counted against, by error kind. Optional: nil-safe if never called.
func (o *Orchestrator) WithMetrics(m *metrics.Registry) *Orchestrator {
	o.metrics = m
	return o
}

// parseOutcome is the result of inspecting and classifying one file,
// produced by a worker and consumed by the single DB-writer goroutine.
// All filename fields here are pool-relative, matching the Filename
// column's stored form.
type parseOutcome struct {
	absPath string
	relPath string
	stat    fileStat
	action  string // "unchanged", "skip", "rename", "upsert", "failed"

	renameKey db.Key

	pkg db.Package
	loc discover.Location

	err     error
	errno   int32
	errKind repoerrors.Kind
}

// Scan reconciles poolRoot's on-disk .deb files against the database.
func (o *Orchestrator) Scan(ctx context.Context, poolRoot string) (Result, error) {
	start := time.Now()
	var res Result

	diskPaths, err := discover.CollectDebs(poolRoot)
	if err != nil {
		return res, err
	}

	resolver := discover.NewResolver(o.cfg)

	outcomes := make(chan parseOutcome, o.workers*2)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.workers)

	for _, path := range diskPaths {
		path := path
		group.Go(func() error {
			outcome := o.inspectOne(groupCtx, poolRoot, path, resolver)
			select {
			case outcomes <- outcome:
				return nil
			case <-groupCtx.Done():
				return groupCtx.Err()
			}
		})
	}

	writerDone := make(chan error, 1)
	touchedRepos := make(map[string]bool)
	go func() {
		writerDone <- o.writeLoop(ctx, outcomes, &res, touchedRepos)
	}()

	groupErr := group.Wait()
	close(outcomes)
	writerErr := <-writerDone

	if groupErr != nil && groupErr != context.Canceled {
		return res, repoerrors.Wrap(repoerrors.Cancelled, "scan worker pool", groupErr)
	}
	if writerErr != nil {
		return res, writerErr
	}

	relPaths := make([]string, 0, len(diskPaths))
	for _, p := range diskPaths {
		rel, err := filepath.Rel(poolRoot, p)
		if err != nil {
			rel = p
		}
		relPaths = append(relPaths, rel)
	}
	removed, err := o.removeMissing(ctx, relPaths)
	if err != nil {
		return res, err
	}
	res.Removed = removed

	for repoName := range touchedRepos {
		if err := o.touchRepoMtime(ctx, repoName); err != nil {
			o.logger.Warn("failed to update repo mtime", zap.String("repo", repoName), zap.Error(err))
		}
	}

	res.Duration = time.Since(start)
	return res, nil
}

// inspectOne performs the stat/skip-unchanged/hash/rename/inspect
// decision tree for a single file, entirely without writing to the
// database — it only reads, so it's safe to run concurrently across
// workers.
func (o *Orchestrator) inspectOne(ctx context.Context, poolRoot, absPath string, resolver *discover.Resolver) parseOutcome {
	relPath, err := filepath.Rel(poolRoot, absPath)
	if err != nil {
		relPath = absPath
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return parseOutcome{absPath: absPath, relPath: relPath, action: "failed", err: err, errKind: repoerrors.IO, errno: db.ErrnoIOError}
	}
	st := fileStat{path: absPath, size: info.Size(), mtime: info.ModTime().Unix()}

	existing, err := o.packages.ByFilename(ctx, relPath)
	if err != nil {
		return parseOutcome{absPath: absPath, relPath: relPath, action: "failed", err: err, errKind: repoerrors.DBTransient}
	}
	if existing != nil && existing.Size == st.size && existing.Mtime == st.mtime {
		return parseOutcome{absPath: absPath, relPath: relPath, stat: st, action: "unchanged"}
	}

	hash, err := sha256File(absPath)
	if err != nil {
		return parseOutcome{absPath: absPath, relPath: relPath, stat: st, action: "failed", err: err, errKind: repoerrors.IO, errno: db.ErrnoIOError}
	}

	byHash, err := o.packages.BySHA256(ctx, hash)
	if err != nil {
		return parseOutcome{absPath: absPath, relPath: relPath, stat: st, action: "failed", err: err, errKind: repoerrors.DBTransient}
	}
	if byHash != nil && byHash.Filename != relPath {
		return parseOutcome{
			absPath: absPath, relPath: relPath, stat: st, action: "rename",
			renameKey: byHash.Key,
		}
	}

	inspection, err := deb.Inspect(absPath)
	if err != nil {
		kind, errno := classifyInspectError(err)
		return parseOutcome{absPath: absPath, relPath: relPath, stat: st, action: "failed", err: err, errKind: kind, errno: errno}
	}

	loc, err := discover.Locate(relPath, inspection.Record.Architecture)
	if err != nil {
		return parseOutcome{absPath: absPath, relPath: relPath, stat: st, action: "failed", err: err, errKind: repoerrors.IO, errno: db.ErrnoIOError}
	}
	if !resolver.Allowed(loc.Branch) {
		return parseOutcome{absPath: absPath, relPath: relPath, stat: st, action: "skip"}
	}

	pkg := toDBPackage(inspection, loc, relPath, st, hash)
	return parseOutcome{absPath: absPath, relPath: relPath, stat: st, action: "upsert", pkg: pkg, loc: loc}
}

// classifyInspectError maps a deb.Inspect failure to the Issue errno
// table, preserving the real error kind instead of collapsing every
// failure into a single catch-all.
func classifyInspectError(err error) (repoerrors.Kind, int32) {
	switch {
	case repoerrors.Is(err, repoerrors.MissingControl):
		return repoerrors.MissingControl, db.ErrnoMissingControl
	case repoerrors.Is(err, repoerrors.ControlParse):
		return repoerrors.ControlParse, db.ErrnoControlParse
	case repoerrors.Is(err, repoerrors.UnsupportedCompression):
		return repoerrors.UnsupportedCompression, db.ErrnoUnsupportedComp
	case repoerrors.Is(err, repoerrors.IO):
		return repoerrors.IO, db.ErrnoIOError
	default:
		return repoerrors.MalformedArchive, db.ErrnoMalformedArchive
	}
}

func toDBPackage(inspection deb.Inspection, loc discover.Location, relPath string, st fileStat, hash string) db.Package {
	rec := inspection.Record
	section := rec.Section
	if section == "" {
		section = "unknown"
	}
	var debTime *int64
	if rec.DebTime != 0 {
		t := rec.DebTime
		debTime = &t
	}

	pkg := db.Package{
		Package:       rec.Package,
		Version:       rec.Version,
		Repo:          loc.RepoName,
		Architecture:  rec.Architecture,
		Filename:      relPath,
		Size:          st.size,
		SHA256:        hash,
		Mtime:         st.mtime,
		DebTime:       debTime,
		Section:       section,
		InstalledSize: rec.InstalledSize,
		Maintainer:    rec.Maintainer,
		Description:   rec.Description,
		VerComp:       version.Encode(rec.Version),
	}
	for relName, value := range rec.Dependencies {
		pkg.Dependencies = append(pkg.Dependencies, db.Dependency{Relationship: string(relName), Value: value})
	}
	for _, f := range inspection.Files {
		pkg.Files = append(pkg.Files, db.FileEntry{
			Path: f.Path, Name: f.Name, Size: f.Size, FType: int16(f.Type),
			Perm: int32(f.Perm), UID: f.UID, GID: f.GID, Uname: f.Uname, Gname: f.Gname,
		})
	}
	for _, sd := range inspection.SoDeps {
		pkg.SoDeps = append(pkg.SoDeps, db.SoDep{Depends: int16(sd.Depends), Name: sd.Name, Ver: sd.Ver})
	}
	return pkg
}

// writeLoop is the single serialized DB-writer goroutine: it drains
// the outcome channel and performs the corresponding write, retrying
// transient failures with backoff.
func (o *Orchestrator) writeLoop(ctx context.Context, outcomes <-chan parseOutcome, res *Result, touchedRepos map[string]bool) error {
	for outcome := range outcomes {
		switch outcome.action {
		case "unchanged":
			res.Unchanged++
		case "skip":
			// branch not allowed (discover=false and unconfigured): ignored silently.
		case "rename":
			err := withRetry(ctx, func() error {
				return o.packages.RenameFile(ctx, outcome.renameKey, outcome.relPath, outcome.stat.mtime)
			})
			if err != nil {
				o.recordFailure(ctx, outcome, err)
				res.Failed++
				continue
			}
			res.Renamed++
		case "upsert":
			var wasNew bool
			err := withRetry(ctx, func() error {
				var innerErr error
				wasNew, innerErr = o.packages.Upsert(ctx, outcome.pkg)
				return innerErr
			})
			if err != nil {
				o.recordFailure(ctx, outcome, err)
				res.Failed++
				continue
			}
			if wasNew {
				res.Added++
			} else {
				res.Duplicate++
			}
			if err := o.ensureRepo(ctx, outcome.pkg, outcome.loc); err != nil {
				o.logger.Warn("failed to ensure repo row", zap.String("repo", outcome.pkg.Repo), zap.Error(err))
			}
			touchedRepos[outcome.pkg.Repo] = true
		case "failed":
			o.recordFailure(ctx, outcome, outcome.err)
			res.Failed++
		}
	}
	return nil
}

func (o *Orchestrator) recordFailure(ctx context.Context, outcome parseOutcome, err error) {
	o.logger.Warn("scan failure", zap.String("path", outcome.relPath), zap.Error(err))
	if o.metrics != nil {
		o.metrics.ScanErrors.WithLabelValues(string(outcome.errKind)).Inc()
	}
	if repoerrors.IsFatal(err) {
		return
	}
	issue := db.Issue{
		Filename: outcome.relPath,
		Errno:    outcome.errno,
		Level:    "error",
		Detail:   map[string]any{"error": err.Error()},
	}
	if recErr := o.issues.Record(ctx, issue); recErr != nil {
		o.logger.Warn("failed to record issue", zap.String("path", outcome.relPath), zap.Error(recErr))
	}
}

// ensureRepo creates the Repo row for pkg.Repo if it doesn't exist
// yet, deriving its testing level from the branch configuration.
func (o *Orchestrator) ensureRepo(ctx context.Context, pkg db.Package, loc discover.Location) error {
	repo := db.Repo{
		Name:         pkg.Repo,
		Path:         loc.Branch + "/" + loc.Component,
		Testing:      testingLevel(o.cfg, loc.Branch),
		Branch:       loc.Branch,
		Component:    loc.Component,
		Architecture: pkg.Architecture,
		Mtime:        pkg.Mtime,
	}
	return o.repos.Upsert(ctx, repo)
}

// testingLevel derives the testing column from the configured branch
// table: a branch listed under [[branch]] takes its marked level
// (stable unless testing or explosive is set); a branch auto-
// registered via discover=true and absent from the table defaults to
// 1 (topic).
func testingLevel(cfg *config.Config, branch string) int16 {
	for _, b := range cfg.Branch {
		if b.Name == branch {
			return b.TestingLevel()
		}
	}
	if cfg.Config.Discover {
		return 1
	}
	return 0
}

// removeMissing deletes Package rows whose pool-relative filename is
// no longer present among relPaths.
func (o *Orchestrator) removeMissing(ctx context.Context, relPaths []string) (int, error) {
	stored, err := o.packages.AllFilenames(ctx)
	if err != nil {
		return 0, err
	}
	onDisk := make(map[string]bool, len(relPaths))
	for _, p := range relPaths {
		onDisk[p] = true
	}

	removed := 0
	for _, filename := range stored {
		if onDisk[filename] {
			continue
		}
		if err := o.packages.DeleteByFilename(ctx, filename); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (o *Orchestrator) touchRepoMtime(ctx context.Context, repoName string) error {
	maxMtime, err := o.packages.MaxMtime(ctx, repoName)
	if err != nil {
		return err
	}
	return o.repos.TouchMtime(ctx, repoName, maxMtime)
}

func withRetry(ctx context.Context, op func() error) error {
	return retry.Do(op,
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(250*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(func(err error) bool {
			return repoerrors.Is(err, repoerrors.DBTransient)
		}),
	)
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
