package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/authgate/internal/authgate/store"
	"github.com/aussiebroadwan/authgate/pkg/ratelimit"
)

const DefaultAuditRetention = 90 * 24 * time.Hour

// HousekeepingService periodically evicts expired rate limit windows and
// prunes old audit rows so neither grows without bound.
type HousekeepingService struct {
	Store          store.Store
	Limiter        *ratelimit.Limiter
	Logger         *slog.Logger
	Interval       time.Duration
	AuditRetention time.Duration
	Now            func() time.Time

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(
	s store.Store,
	limiter *ratelimit.Limiter,
	logger *slog.Logger,
	interval, retention time.Duration,
) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if retention <= 0 {
		retention = DefaultAuditRetention
	}

	return &HousekeepingService{
		Store:          s,
		Limiter:        limiter,
		Logger:         logger,
		Interval:       interval,
		AuditRetention: retention,
		Now:            func() time.Time { return time.Now().UTC() },
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop() to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup runs one pass. Each step is independent; a failure in one does not
// stop the other.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	s.Logger.Debug("starting housekeeping cleanup")

	var evicted int
	if s.Limiter != nil {
		evicted = s.Limiter.Sweep()
	}

	cutoff := s.Now().Add(-s.AuditRetention)
	pruned, err := s.Store.Audit().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.Logger.Error("failed to prune audit events", "error", err)
	}

	s.Logger.Info("housekeeping cleanup completed",
		"rate_windows_evicted", evicted,
		"audit_events_pruned", pruned,
	)
}
