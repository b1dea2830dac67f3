package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Session metrics
	SessionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendtrack_sessions_created_total",
			Help: "Total sessions written, split by kind",
		},
		[]string{"register", "kind"},
	)

	SessionsDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendtrack_sessions_deleted_total",
			Help: "Total sessions deleted during recalculations",
		},
		[]string{"register"},
	)

	// Recalculation metrics
	UsersUpdated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendtrack_users_updated_total",
			Help: "Total per-user session updates completed",
		},
		[]string{"register", "mode"},
	)

	RecalcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attendtrack_recalc_duration_seconds",
			Help:    "Per-user recalculation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"register"},
	)

	RecalcErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendtrack_recalc_errors_total",
			Help: "Per-user recalculation failures",
		},
		[]string{"register"},
	)

	// Lock metrics
	LockContentionSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendtrack_lock_contention_skips_total",
			Help: "Updates skipped because another worker held the lock",
		},
		[]string{"register"},
	)

	OrphanLocksPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attendtrack_orphan_locks_purged_total",
			Help: "Orphaned locks removed by the scheduler",
		},
	)

	// Offline session metrics
	OfflineSessionsAdded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendtrack_offline_sessions_added_total",
			Help: "Self-certified sessions accepted",
		},
		[]string{"register"},
	)

	OfflineSessionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendtrack_offline_sessions_rejected_total",
			Help: "Self-certified sessions rejected by validation",
		},
		[]string{"register", "reason"},
	)

	// Scheduler metrics
	SchedulerRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attendtrack_scheduler_runs_total",
			Help: "Completed scheduler passes",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		SessionsCreated,
		SessionsDeleted,
		UsersUpdated,
		RecalcDuration,
		RecalcErrors,
		LockContentionSkips,
		OrphanLocksPurged,
		OfflineSessionsAdded,
		OfflineSessionsRejected,
		SchedulerRuns,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
