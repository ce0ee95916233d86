package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/repovector/repovector/internal/config"
	"github.com/repovector/repovector/internal/db"
	repoerrors "github.com/repovector/repovector/internal/errors"
	"github.com/repovector/repovector/internal/lockfile"
	"github.com/repovector/repovector/internal/logging"
	"github.com/repovector/repovector/internal/materialize"
	"github.com/repovector/repovector/internal/metrics"
	"github.com/repovector/repovector/internal/notify"
	"github.com/repovector/repovector/internal/scan"
	"github.com/repovector/repovector/internal/scheduler"
	"github.com/repovector/repovector/internal/sign"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, lockfile.ErrLocked):
		return 2
	case repoerrors.Is(err, repoerrors.Config):
		return 1
	case errors.Is(err, scheduler.ErrNotImplemented):
		return 1
	default:
		return 3
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "repovector",
	Short: "APT/dpkg repository indexer",
	Long:  "repovector scans a pool/ tree of .deb files, maintains the derived package index in Postgres, and publishes signed dists/ trees.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the TOML configuration file")
	rootCmd.MarkPersistentFlagRequired("config")

	rootCmd.AddCommand(fullCmd, scanCmd, releaseCmd, analyzeCmd, gcCmd, genKeyCmd, syncCmd)

	genKeyCmd.Flags().String("user-id", "", "identity string for the generated signing key (defaults to \"<label> Signing Key <origin>\")")
}

// environment builds every collaborator a Scheduler needs from the
// configuration file at configPath, and returns a cleanup function
// that releases the DB pool, metrics provider, and notifier.
func environment(ctx context.Context) (*scheduler.Scheduler, *config.Config, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	for _, w := range cfg.Lint() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	logger, err := logging.New("production", "info")
	if err != nil {
		return nil, nil, nil, repoerrors.Wrap(repoerrors.Config, "building logger", err)
	}

	if err := db.Migrate(cfg.Config.DBPgconn); err != nil {
		return nil, nil, nil, err
	}
	pool, err := db.Connect(ctx, cfg.Config.DBPgconn)
	if err != nil {
		return nil, nil, nil, err
	}

	reg, err := metrics.New()
	if err != nil {
		pool.Close()
		return nil, nil, nil, repoerrors.Wrap(repoerrors.Config, "building metrics registry", err)
	}

	repos := db.NewRepoStore(pool)
	issues := db.NewIssueStore(pool)
	packages := db.NewPackageStore(pool)

	orchestrator := scan.New(packages, repos, issues, cfg, logging.WithStage(logger, "scan")).WithMetrics(reg)
	materializer := materialize.NewDriver(pool)

	signer, err := loadSigner(cfg.Config.Certificate)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	var notifier notify.Publisher
	var redisPub *notify.RedisPublisher
	if cfg.Config.ChangeNotifier != "" {
		redisPub, err = notify.NewRedisPublisher(cfg.Config.ChangeNotifier)
		if err != nil {
			pool.Close()
			return nil, nil, nil, repoerrors.Wrap(repoerrors.Config, "connecting change notifier", err)
		}
		notifier = redisPub
	}

	metricsSrv := startMetricsServer(reg, logging.WithStage(logger, "metrics"))

	sched := scheduler.New(scheduler.Deps{
		Config:       cfg,
		Logger:       logging.WithStage(logger, "scheduler"),
		Pool:         pool,
		Repos:        repos,
		Issues:       issues,
		Orchestrator: orchestrator,
		Materializer: materializer,
		Signer:       signer,
		Notifier:     notifier,
		Metrics:      reg,
	})

	cleanup := func() {
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(context.Background())
		}
		if redisPub != nil {
			_ = redisPub.Close()
		}
		_ = reg.Shutdown(context.Background())
		pool.Close()
	}
	return sched, cfg, cleanup, nil
}

// loadSigner reads the certificate config value. An empty value means
// unsigned releases. A gpg:// URI names an external signing agent,
// which this implementation does not carry a driver for.
func loadSigner(certificate string) (sign.Signer, error) {
	if certificate == "" {
		return nil, nil
	}
	if strings.HasPrefix(certificate, "gpg://") {
		return nil, repoerrors.New(repoerrors.Config, "gpg:// external signing agents are not supported; point certificate at an armored key file instead")
	}
	armored, err := os.ReadFile(certificate)
	if err != nil {
		return nil, repoerrors.Wrap(repoerrors.Config, "reading certificate file "+certificate, err)
	}
	signer, err := sign.LoadSigner(string(armored))
	if err != nil {
		return nil, err
	}
	return signer, nil
}

// startMetricsServer exposes reg on :9090/metrics in the background and
// returns the server. If the port can't be bound, the failure is only
// logged (a scrape endpoint is a convenience, not a requirement to run).
func startMetricsServer(reg *metrics.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	srv := &http.Server{Addr: ":9090", Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}

// withCancelOnSignal returns a context cancelled on SIGINT/SIGTERM,
// giving the orchestrator's cooperative shutdown a trigger.
func withCancelOnSignal() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

var fullCmd = &cobra.Command{
	Use:   "full",
	Short: "Run discover+scan, materialize, emit, and notify under the repository lock",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withCancelOnSignal()
		defer cancel()

		sched, _, cleanup, err := environment(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := sched.Full(ctx)
		if err != nil {
			return err
		}
		printSummary(res)
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Reconcile the pool/ tree against the package index",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withCancelOnSignal()
		defer cancel()

		sched, _, cleanup, err := environment(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := sched.Scan(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("added=%d updated=%d duplicate=%d renamed=%d unchanged=%d removed=%d failed=%d\n",
			res.Added, res.Updated, res.Duplicate, res.Renamed, res.Unchanged, res.Removed, res.Failed)
		return nil
	},
}

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Emit dists/ for every branch whose Release is stale",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withCancelOnSignal()
		defer cancel()

		sched, _, cleanup, err := environment(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		return sched.Release(ctx)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Recompute derived relations and refresh QA findings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withCancelOnSignal()
		defer cancel()

		sched, _, cleanup, err := environment(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		ran, err := sched.Analyze(ctx)
		if err != nil {
			return err
		}
		if !ran {
			fmt.Println("analyze skipped: within qa_interval of the last pass")
		}
		return nil
	},
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove repos and dists/ trees for branches no longer on disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withCancelOnSignal()
		defer cancel()

		sched, _, cleanup, err := environment(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := sched.GC(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d repo(s) across %d branch(es): %s\n",
			res.ReposRemoved, len(res.BranchesRemoved), strings.Join(res.BranchesRemoved, ", "))
		return nil
	},
}

var genKeyCmd = &cobra.Command{
	Use:   "gen-key",
	Short: "Generate a fresh signing identity and print setup instructions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		userID, _ := cmd.Flags().GetString("user-id")
		if userID == "" {
			userID = fmt.Sprintf("%s Signing Key <%s>", cfg.Config.Label, cfg.Config.Origin)
		}

		sched := scheduler.New(scheduler.Deps{Config: cfg})
		_, instructions, err := sched.GenKey(userID, configPath)
		if err != nil {
			return err
		}
		fmt.Println(instructions)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile abbs-meta/piss foreign tables (not implemented)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withCancelOnSignal()
		defer cancel()

		sched, _, cleanup, err := environment(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		return sched.Sync(ctx)
	},
}

func printSummary(res scheduler.FullResult) {
	fmt.Printf("scan: added=%d updated=%d duplicate=%d renamed=%d unchanged=%d removed=%d failed=%d\n",
		res.Scan.Added, res.Scan.Updated, res.Scan.Duplicate, res.Scan.Renamed, res.Scan.Unchanged, res.Scan.Removed, res.Scan.Failed)
	fmt.Printf("changes: %d repo(s) affected\n", len(res.Changes))
	if len(res.GC.BranchesRemoved) > 0 {
		fmt.Printf("gc: removed %d repo(s) across branches %s\n", res.GC.ReposRemoved, strings.Join(res.GC.BranchesRemoved, ", "))
	}
	if res.Analyzed {
		fmt.Println("analyze: QA findings refreshed")
	}
}
