package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scalimax/attendtrack/internal/config"
	"github.com/scalimax/attendtrack/internal/metrics"
	"github.com/scalimax/attendtrack/internal/scheduler"
	"github.com/scalimax/attendtrack/internal/systemd"
	"github.com/scalimax/attendtrack/internal/tracker"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the periodic recalculation daemon",
	Long: `Run starts the scheduler that periodically purges orphaned locks and
recalculates attendance sessions and aggregates for every register, plus the
metrics endpoint.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting AttendTrack")

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().Str("type", cfg.Storage.Type).Msg("Storage initialized")

	trk := tracker.New(store, tracker.Options{
		MaxOfflineSessionDuration: parseDuration(cfg.Tracking.MaxOfflineSessionDuration, tracker.DefaultMaxOfflineSessionDuration),
		LockOrphanAge:             parseDuration(cfg.Tracking.LockOrphanAge, tracker.DefaultLockOrphanAge),
		CourseCacheSize:           cfg.Tracking.TrackedCourseCacheSize,
		CourseCacheTTL:            parseDuration(cfg.Tracking.TrackedCourseCacheTTL, tracker.DefaultCourseCacheTTL),
	}, logger)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		interval := parseDuration(cfg.Scheduler.Interval, 5*time.Minute)
		sched = scheduler.New(store, trk, interval, logger)
		sched.Start()
	} else {
		logger.Warn().Msg("Scheduler disabled, recalculation must be driven manually")
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddress, cfg.Metrics.Port)
		metricsServer = metrics.NewServer(metricsAddr, logger)

		// Prefer a systemd socket-activated listener when one was passed in.
		listeners, err := systemd.GetListeners()
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to inspect systemd listeners")
		} else if listeners.Activated && listeners.Metrics != nil {
			metricsServer.SetListener(listeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		logger.Info().Str("addr", metricsAddr).Msg("Metrics server started")
	}

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd readiness")
	}

	logger.Info().Msg("AttendTrack startup complete")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	logger.Info().Msg("Shutdown signal received, gracefully stopping...")

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to notify systemd shutdown")
	}

	if sched != nil {
		sched.Stop()
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	logger.Info().Msg("AttendTrack stopped")
	return nil
}
