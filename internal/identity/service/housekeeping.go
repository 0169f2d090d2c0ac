package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/veldtlabs/warden/internal/identity/store"
)

// HousekeepingService periodically sweeps PENDING invites past expiry to
// EXPIRED and deletes expired reset tokens. Advisory only: every spend
// path re-checks expiry itself, so cadence never affects correctness.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates the sweeper. A non-positive interval
// defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background worker. Non-blocking; call Stop to shut
// it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress sweep ends.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep runs each pass independently so one failure never blocks the rest.
func (s *HousekeepingService) sweep() {
	ctx := context.Background()
	now := time.Now().UTC()

	if moved, err := s.Store.Invites().SweepExpired(ctx, now); err != nil {
		s.Logger.Error("failed to sweep expired invites", "error", err)
	} else if moved > 0 {
		s.Logger.Info("expired invites swept", "count", moved)
	}

	if err := s.Store.ResetTokens().DeleteExpired(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired reset tokens", "error", err)
	}
}
