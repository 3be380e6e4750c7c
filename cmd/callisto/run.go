package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/callisto/pkg/config"
	"mercator-hq/callisto/pkg/policy"
	"mercator-hq/callisto/pkg/policy/validation"
	"mercator-hq/callisto/pkg/rollout/audit"
	"mercator-hq/callisto/pkg/rollout/canary"
	"mercator-hq/callisto/pkg/rollout/hotreload"
	"mercator-hq/callisto/pkg/rollout/rollback"
	"mercator-hq/callisto/pkg/rollout/source"
	"mercator-hq/callisto/pkg/rollout/updater"
	"mercator-hq/callisto/pkg/rollout/version"
	"mercator-hq/callisto/pkg/telemetry/health"
	"mercator-hq/callisto/pkg/telemetry/metrics"
)

var runFlags struct {
	logLevel string
	dryRun   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the rollout engine",
	Long: `Start the rollout engine with the specified configuration.

The engine loads the policy file, watches it for changes, and exposes
canary deployment, rollback, and audit facilities. Policy updates flow
through validation, the configured hot-reload strategy, and version
tracking.

Examples:
  # Start with default config
  callisto run

  # Start with custom config
  callisto run --config /etc/callisto/config.yaml

  # Validate config without starting the engine
  callisto run --dry-run`,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the engine")
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if runFlags.logLevel != "" {
		cfg.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initial policy.
	policySource := source.NewFileSource(cfg.Source.Path, source.WatchConfig{
		DebounceInterval: cfg.Source.DebounceInterval,
	}, logger)
	initial, err := policySource.Load()
	if err != nil {
		return fmt.Errorf("loading initial policy: %w", err)
	}
	fmt.Printf("✓ Policy loaded: %s (version %s)\n", initial.ID, initial.Version)

	// Telemetry.
	collector := metrics.NewCollector(&cfg.Metrics, nil)

	// Traffic split.
	criteria, err := canary.ParseCriteriaKind(cfg.Canary.Criteria)
	if err != nil {
		return err
	}
	split := canary.TrafficSplit{
		Percentage: cfg.Canary.InitialPercentage,
		Criteria:   canary.SplitCriteria{Kind: criteria, Name: cfg.Canary.CriteriaName},
	}
	for _, g := range cfg.Canary.UserGroups {
		split.UserGroups = append(split.UserGroups, canary.UserGroup{
			Name:        g.Name,
			Users:       g.Users,
			ForceCanary: g.ForceCanary,
		})
	}
	canaryMgr, err := canary.NewManager(initial, split, &canary.ManagerConfig{
		EventBufferSize: cfg.Canary.EventBufferSize,
		Telemetry:       collector,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating canary manager: %w", err)
	}
	defer canaryMgr.Close()

	// Rollback.
	rollbackMgr, err := rollback.NewManager(cfg.Rollback, canaryMgr, collector, logger)
	if err != nil {
		return fmt.Errorf("creating rollback manager: %w", err)
	}
	defer rollbackMgr.Close()

	var monitor *rollback.Monitor
	if cfg.Rollback.Enabled {
		monitor = rollback.NewMonitor(rollbackMgr, logger)
		monitor.Start(ctx)
		defer monitor.Stop()
		fmt.Printf("✓ Rollback monitor started (window %s)\n", cfg.Rollback.EvaluationWindow)
	}

	// Version lineage.
	versionMgr := version.NewManager(cfg.Version.MaxVersions, logger)
	if _, err := versionMgr.CreateVersion(initial, "system", "initial policy load"); err != nil {
		return fmt.Errorf("recording initial version: %w", err)
	}

	// Hot reload.
	strategy, err := hotreload.ParseStrategy(cfg.HotReload.Strategy)
	if err != nil {
		return err
	}
	validationLevel, err := validation.ParseLevel(cfg.Validation.Level)
	if err != nil {
		return err
	}
	engine := validation.NewEngine(logger)

	var reloadStages []hotreload.GradualStage
	for _, s := range cfg.HotReload.Stages {
		reloadStages = append(reloadStages, hotreload.GradualStage{Name: s.Name, Duration: s.Duration})
	}
	reloadMgr := hotreload.NewManager(initial, hotreload.Config{
		Options: hotreload.Options{
			Strategy:         strategy,
			GracePeriod:      cfg.HotReload.GracePeriod,
			Stages:           reloadStages,
			StageDelay:       cfg.HotReload.StageDelay,
			ValidationPeriod: cfg.HotReload.ValidationPeriod,
			MaxHistory:       cfg.HotReload.MaxHistory,
		},
		Validate: func(ctx context.Context, candidate *policy.Policy) error {
			if result := engine.Validate(candidate, validationLevel); !result.IsValid {
				return fmt.Errorf("candidate policy has %d blocking findings", result.CriticalCount())
			}
			return nil
		},
		Telemetry: collector,
	}, logger)
	defer reloadMgr.Close()

	// Dynamic updates: each applied policy goes through the reload
	// strategy and then replaces the stable branch.
	apply := func(ctx context.Context, old, candidate *policy.Policy) error {
		if err := reloadMgr.Reload(ctx, candidate); err != nil {
			return err
		}
		return canaryMgr.RestoreStablePolicy(candidate)
	}
	policyUpdater, err := updater.New(initial, updater.Config{
		ValidateBeforeApply: cfg.Updater.ValidateBeforeApply,
		ValidationLevel:     validationLevel,
		AutoRollback:        cfg.Updater.AutoRollback,
		MaxHistory:          cfg.Updater.MaxHistory,
		Telemetry:           collector,
	}, engine, apply, logger)
	if err != nil {
		return fmt.Errorf("creating updater: %w", err)
	}
	defer policyUpdater.Close()

	// Audit trail.
	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		store, err := audit.NewStore(&audit.StoreConfig{
			Path:        cfg.Audit.Path,
			BusyTimeout: cfg.Audit.BusyTimeout,
			WALMode:     true,
		})
		if err != nil {
			return fmt.Errorf("opening audit store: %w", err)
		}
		defer store.Close()
		auditStore = store

		recorder := audit.NewRecorder(store, logger)
		canaryCh, cancelCanary := canaryMgr.Subscribe()
		rollbackCh, cancelRollback := rollbackMgr.Subscribe()
		updateCh, cancelUpdates := policyUpdater.Subscribe()
		reloadCh, cancelReloads := reloadMgr.Subscribe()
		defer cancelCanary()
		defer cancelRollback()
		defer cancelUpdates()
		defer cancelReloads()
		recorder.ConsumeCanary(ctx, canaryCh)
		recorder.ConsumeRollback(ctx, rollbackCh)
		recorder.ConsumeUpdates(ctx, updateCh)
		recorder.ConsumeReloads(ctx, reloadCh)

		pruner := audit.NewPruner(store, audit.PrunerConfig{
			RetentionDays: cfg.Audit.RetentionDays,
			MaxRecords:    cfg.Audit.MaxRecords,
			PruneSchedule: cfg.Audit.PruneSchedule,
		})
		scheduler := audit.NewScheduler(pruner)
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("starting audit scheduler: %w", err)
		}
		defer scheduler.Stop()
		fmt.Printf("✓ Audit trail enabled (%s)\n", cfg.Audit.Path)
	}

	// Policy file watching feeds the updater.
	if cfg.Source.Watch {
		go func() {
			err := policySource.Watch(ctx, func(p *policy.Policy) {
				if _, err := policyUpdater.UpdatePolicy(ctx, p); err != nil {
					logger.Error("policy update rejected", "policy_id", p.ID, "error", err)
					return
				}
				if _, err := versionMgr.CreateVersion(p, "file-watcher", "policy file changed"); err != nil {
					logger.Error("failed to record policy version", "error", err)
				}
			})
			if err != nil {
				logger.Error("policy watcher exited", "error", err)
			}
		}()
		fmt.Printf("✓ Watching policy file: %s\n", cfg.Source.Path)
	}

	// Metrics endpoint, probes, and drop-counter export.
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		checker := health.New(0)
		checker.Register("source", func(context.Context) error {
			_, err := policySource.Load()
			return err
		})
		if auditStore != nil {
			checker.Register("audit", func(ctx context.Context) error {
				_, err := auditStore.Count(ctx)
				return err
			})
		}

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, collector.Handler())
		mux.Handle("/healthz", checker.LivenessHandler())
		mux.Handle("/readyz", checker.ReadinessHandler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.ListenAddress, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		go exportDropCounters(ctx, collector, canaryMgr, rollbackMgr, policyUpdater, reloadMgr)
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Metrics.ListenAddress, cfg.Metrics.Path)
	}

	fmt.Println("\nPress Ctrl+C to stop")
	<-ctx.Done()

	fmt.Println("\nShutting down...")
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", "error", err)
		}
	}
	if monitor != nil {
		monitor.Stop()
	}
	logger.Info("engine stopped")
	return nil
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// exportDropCounters periodically publishes each bus's drop counter.
func exportDropCounters(
	ctx context.Context,
	collector *metrics.Collector,
	canaryMgr *canary.Manager,
	rollbackMgr *rollback.Manager,
	policyUpdater *updater.Updater,
	reloadMgr *hotreload.Manager,
) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			collector.SetEventsDropped("canary", float64(canaryMgr.DroppedEvents()))
			collector.SetEventsDropped("rollback", float64(rollbackMgr.DroppedEvents()))
			collector.SetEventsDropped("updater", float64(policyUpdater.DroppedEvents()))
			collector.SetEventsDropped("hotreload", float64(reloadMgr.DroppedEvents()))
		}
	}
}
