// Package scheduler drives the top-level commands: full, scan,
// release, analyze, gc, gen-key, and sync. It owns the per-branch TTL
// gate, the removed-branch garbage collector, the QA refresh
// interval, and the advisory lock that keeps concurrent full runs
// from racing.
package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/repovector/repovector/internal/config"
	"github.com/repovector/repovector/internal/db"
	repoerrors "github.com/repovector/repovector/internal/errors"
	"github.com/repovector/repovector/internal/emit"
	"github.com/repovector/repovector/internal/lockfile"
	"github.com/repovector/repovector/internal/materialize"
	"github.com/repovector/repovector/internal/metrics"
	"github.com/repovector/repovector/internal/notify"
	"github.com/repovector/repovector/internal/scan"
	"github.com/repovector/repovector/internal/sign"
)

// notifyChannel is the pub/sub channel change summaries are published
// to; there is no per-deployment override in the configuration.
const notifyChannel = "repovector.changes"

// ErrNotImplemented is returned by Sync: the abbs-meta/piss foreign
// table sync job has no implementation in this system.
var ErrNotImplemented = errors.New("sync: not implemented")

// rfc2822 mirrors the layout internal/emit renders Valid-Until with,
// needed here to parse an existing Release file back out again.
const rfc2822 = "Mon, 02 Jan 2006 15:04:05 +0000"

// Deps are the constructed collaborators a Scheduler dispatches work
// to. Signer and Notifier may be nil (unsigned releases, disabled
// notifications respectively); everything else is required.
type Deps struct {
	Config       *config.Config
	Logger       *zap.Logger
	Pool         *db.Pool
	Repos        *db.RepoStore
	Issues       *db.IssueStore
	Orchestrator *scan.Orchestrator
	Materializer *materialize.Driver
	Signer       sign.Signer
	Notifier     notify.Publisher
	Metrics      *metrics.Registry
}

// Scheduler dispatches the CLI-facing commands against Deps.
type Scheduler struct {
	deps Deps
}

// New builds a Scheduler over deps.
func New(deps Deps) *Scheduler {
	return &Scheduler{deps: deps}
}

func (s *Scheduler) poolRoot() string  { return filepath.Join(s.deps.Config.Config.Path, "pool") }
func (s *Scheduler) distsRoot() string { return filepath.Join(s.deps.Config.Config.Path, "dists") }
func (s *Scheduler) lockPath() string  { return filepath.Join(s.deps.Config.Config.Path, ".repovector.lock") }

// FullResult summarizes one full run across every stage.
type FullResult struct {
	Scan    scan.Result
	Changes []notify.RepoChange
	GC      GCResult
	Analyzed bool
}

// Full runs discover+scan, materialize, emit (per-branch, TTL-gated),
// notify, and garbage collection under the repository-root advisory
// lock. A held lock returns lockfile.ErrLocked without doing any
// work.
func (s *Scheduler) Full(ctx context.Context) (FullResult, error) {
	lock, err := lockfile.TryAcquire(s.lockPath())
	if err != nil {
		return FullResult{}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			s.deps.Logger.Warn("failed to release lock", zap.Error(err))
		}
	}()

	var res FullResult

	before, err := s.loadLatest(ctx)
	if err != nil {
		return res, err
	}

	scanResult, err := s.Scan(ctx)
	if err != nil {
		return res, err
	}
	res.Scan = scanResult
	s.recordScanMetrics(scanResult)

	snap, err := s.refreshMaterializer(ctx, "full")
	if err != nil {
		return res, err
	}

	res.Changes = notify.Diff(before, snap.Latest)
	s.publishChanges(ctx, res.Changes)

	if err := s.Release(ctx); err != nil {
		s.deps.Logger.Warn("release stage failed", zap.Error(err))
	}

	gcRes, err := s.GC(ctx)
	if err != nil {
		s.deps.Logger.Warn("gc stage failed", zap.Error(err))
	}
	res.GC = gcRes

	analyzed, err := s.Analyze(ctx)
	if err != nil {
		s.deps.Logger.Warn("analyze stage failed", zap.Error(err))
	}
	res.Analyzed = analyzed

	return res, nil
}

// Scan runs the scan orchestrator alone.
func (s *Scheduler) Scan(ctx context.Context) (scan.Result, error) {
	return s.deps.Orchestrator.Scan(ctx, s.poolRoot())
}

func (s *Scheduler) recordScanMetrics(r scan.Result) {
	m := s.deps.Metrics
	if m == nil {
		return
	}
	m.FilesScanned.WithLabelValues("added").Add(float64(r.Added))
	m.FilesScanned.WithLabelValues("duplicate").Add(float64(r.Duplicate))
	m.FilesScanned.WithLabelValues("renamed").Add(float64(r.Renamed))
	m.FilesScanned.WithLabelValues("removed").Add(float64(r.Removed))
	m.FilesScanned.WithLabelValues("failed").Add(float64(r.Failed))
	for i := 0; i < r.Unchanged; i++ {
		m.FilesSkipped.Inc()
	}
	m.ScanDuration.Observe(r.Duration.Seconds())
}

func (s *Scheduler) publishChanges(ctx context.Context, changes []notify.RepoChange) {
	if s.deps.Notifier == nil || len(changes) == 0 {
		return
	}
	errs := notify.PublishAll(ctx, s.deps.Notifier, notifyChannel, changes)
	for _, err := range errs {
		s.deps.Logger.Warn("change notifier publish failed", zap.Error(err))
		if s.deps.Metrics != nil {
			s.deps.Metrics.NotifyFailures.Inc()
		}
	}
}

// refreshMaterializer runs one derived-relation refresh, observing
// its wall-clock duration under the given caller label.
func (s *Scheduler) refreshMaterializer(ctx context.Context, caller string) (materialize.Snapshot, error) {
	start := time.Now()
	snap, err := s.deps.Materializer.Refresh(ctx)
	if s.deps.Metrics != nil {
		s.deps.Metrics.MaterializeDuration.WithLabelValues(caller).Observe(time.Since(start).Seconds())
	}
	return snap, err
}

// loadLatest reads the current pv_latest contents before a scan, so
// Full can diff against it once the materializer has refreshed.
func (s *Scheduler) loadLatest(ctx context.Context) (map[materialize.LatestKey]materialize.PackageRow, error) {
	rows, err := s.deps.Pool.Query(ctx, `SELECT repo, package, version FROM pv_latest`)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.DBTransient, "loading latest for change diff", err)
	}
	defer rows.Close()

	out := make(map[materialize.LatestKey]materialize.PackageRow)
	for rows.Next() {
		var key materialize.LatestKey
		var version string
		if err := rows.Scan(&key.Repo, &key.Package, &version); err != nil {
			return nil, repoerrors.Wrap(repoerrors.DBTransient, "scanning latest row", err)
		}
		out[key] = materialize.PackageRow{Version: version}
	}
	return out, rows.Err()
}

// Release emits every branch whose TTL has expired or whose repos
// changed since its Release was last written.
func (s *Scheduler) Release(ctx context.Context) error {
	branches, err := s.branches(ctx)
	if err != nil {
		return err
	}
	distsRoot := s.distsRoot()

	var firstErr error
	for _, branch := range branches {
		regen, err := s.NeedsRegenerate(ctx, branch)
		if err != nil {
			s.deps.Logger.Warn("freshness check failed, emitting anyway", zap.String("branch", branch), zap.Error(err))
		} else if !regen {
			continue
		}

		driver := s.emitterForBranch(branch)
		if err := driver.EmitBranch(ctx, distsRoot, branch); err != nil {
			s.deps.Logger.Warn("emit failed", zap.String("branch", branch), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.recordStanzaMetrics(ctx, branch)
	}
	return firstErr
}

// recordStanzaMetrics sets the per-repo StanzasEmitted gauge to the
// latest-restricted package count just published for branch.
func (s *Scheduler) recordStanzaMetrics(ctx context.Context, branch string) {
	if s.deps.Metrics == nil {
		return
	}
	rows, err := s.deps.Pool.Query(ctx, `
SELECT r.name, count(*) FROM pv_repos r
JOIN pv_latest l ON l.repo = r.name
WHERE r.branch = $1 GROUP BY r.name`, branch)
	if err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		var repo string
		var n int
		if err := rows.Scan(&repo, &n); err != nil {
			continue
		}
		s.deps.Metrics.StanzasEmitted.WithLabelValues(repo).Set(float64(n))
	}
}

// branches returns every distinct branch name recorded in pv_repos.
func (s *Scheduler) branches(ctx context.Context) ([]string, error) {
	repos, err := s.deps.Repos.All(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, r := range repos {
		if !seen[r.Branch] {
			seen[r.Branch] = true
			out = append(out, r.Branch)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Scheduler) emitterForBranch(branch string) *emit.Driver {
	cfg := s.deps.Config.Config
	return emit.NewDriver(s.deps.Pool, s.deps.Signer, emit.BranchConfig{
		Origin:             cfg.Origin,
		Label:              cfg.Label,
		Codename:           cfg.Codename,
		TTLDays:            s.deps.Config.TTLForBranch(branch),
		AcquireByHashDepth: cfg.AcquireByHash,
		ExtraDistFiles:     cfg.ExtraDistFiles,
		Description:        s.deps.Config.Description,
	})
}

// NeedsRegenerate reports whether branch's Release is missing, stale
// relative to its repos' mtimes, or within 24h of its Valid-Until.
func (s *Scheduler) NeedsRegenerate(ctx context.Context, branch string) (bool, error) {
	releasePath := filepath.Join(s.distsRoot(), branch, "Release")
	info, err := os.Stat(releasePath)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, repoerrors.Wrap(repoerrors.IO, "stat "+releasePath, err)
	}

	driver := s.emitterForBranch(branch)
	repoMtime, err := driver.RepoMtime(ctx, branch)
	if err != nil {
		return false, err
	}
	if repoMtime.After(info.ModTime()) {
		return true, nil
	}

	validUntil, ok := readValidUntil(releasePath)
	if !ok {
		return true, nil
	}
	return time.Until(validUntil) < 24*time.Hour, nil
}

func readValidUntil(releasePath string) (time.Time, bool) {
	data, err := os.ReadFile(releasePath)
	if err != nil {
		return time.Time{}, false
	}
	const prefix = "Valid-Until: "
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, prefix) {
			t, err := time.Parse(rfc2822, strings.TrimSpace(line[len(prefix):]))
			if err != nil {
				return time.Time{}, false
			}
			return t, true
		}
	}
	return time.Time{}, false
}

// GCResult summarizes one garbage-collection pass.
type GCResult struct {
	ReposRemoved    int64
	BranchesRemoved []string
}

// GC removes repo rows (and their dists/ trees) for branches whose
// pool/<branch> directory no longer exists on disk.
func (s *Scheduler) GC(ctx context.Context) (GCResult, error) {
	entries, err := os.ReadDir(s.poolRoot())
	if err != nil {
		return GCResult{}, repoerrors.Wrap(repoerrors.IO, "listing pool root", err)
	}
	onDisk := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			onDisk[e.Name()] = true
		}
	}

	repos, err := s.deps.Repos.All(ctx)
	if err != nil {
		return GCResult{}, err
	}

	var keepNames []string
	missing := make(map[string]bool)
	for _, r := range repos {
		if onDisk[r.Branch] {
			keepNames = append(keepNames, r.Name)
		} else {
			missing[r.Branch] = true
		}
	}

	removed, err := s.deps.Repos.DeleteMissing(ctx, keepNames)
	if err != nil {
		return GCResult{}, err
	}

	var branches []string
	for branch := range missing {
		branches = append(branches, branch)
		if err := os.RemoveAll(filepath.Join(s.distsRoot(), branch)); err != nil {
			s.deps.Logger.Warn("failed to remove branch dists tree", zap.String("branch", branch), zap.Error(err))
		}
	}
	sort.Strings(branches)

	return GCResult{ReposRemoved: removed, BranchesRemoved: branches}, nil
}

// Analyze recomputes so_breaks and records any new findings as
// Issues, skipping the pass entirely if the last one ran within
// qa_interval hours.
func (s *Scheduler) Analyze(ctx context.Context) (bool, error) {
	due, err := s.deps.Issues.RefreshDue(ctx, s.deps.Config.Config.QAInterval)
	if err != nil {
		return false, err
	}
	if !due {
		return false, nil
	}

	snap, err := s.refreshMaterializer(ctx, "analyze")
	if err != nil {
		return false, err
	}

	for _, b := range snap.SoBreaks {
		issue := db.Issue{
			Package:  b.ConsumerPkg,
			Version:  b.ConsumerVer,
			Repo:     b.ConsumerRepo,
			Errno:    db.ErrnoSOBreak,
			Filename: b.SOName,
			Level:    "warning",
			Detail: map[string]any{
				"provider_pkg":  b.ProviderPkg,
				"provider_repo": b.ProviderRepo,
				"soname":        b.SOName,
				"sover_provide": b.SOVer,
				"consumer_pkg":  b.ConsumerPkg,
				"consumer_repo": b.ConsumerRepo,
				"consumer_ver":  b.ConsumerVer,
				"sodepver":      b.SoDepVer,
			},
		}
		if err := s.deps.Issues.Record(ctx, issue); err != nil {
			s.deps.Logger.Warn("failed to record so-break issue", zap.String("package", b.ConsumerPkg), zap.Error(err))
		}
	}
	return true, nil
}

// GenKey generates a fresh signing identity and its setup
// instructions, ready to be printed and placed in configFile's
// certificate value.
func (s *Scheduler) GenKey(userID, configFile string) (*sign.Identity, string, error) {
	id, err := sign.GenerateIdentity(userID)
	if err != nil {
		return nil, "", err
	}
	return id, sign.Instructions(id, configFile), nil
}

// Sync would reconcile abbs-meta/piss foreign tables; unimplemented.
func (s *Scheduler) Sync(ctx context.Context) error {
	return ErrNotImplemented
}
