package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically removes expired sessions on a cron schedule.
type Sweeper struct {
	manager  *Manager
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewSweeper creates a sweeper for manager. schedule accepts standard cron
// expressions and descriptors such as "@every 1m".
func NewSweeper(manager *Manager, schedule string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		manager:  manager,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With("component", "session.sweeper"),
	}
}

// Start schedules sweeping until ctx is cancelled or Stop is called. An
// empty schedule does nothing.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("sweep schedule not configured, skipping sweeper")
		return nil
	}
	if s.running {
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sweeping: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("session sweeper started", "schedule", s.schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Sweep runs one cleanup pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	n, err := s.manager.CleanExpired(ctx)
	if err != nil {
		s.logger.Error("session sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("expired sessions removed", "count", n)
	}
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("session sweeper stopped")
	}
}

// IsRunning reports whether the schedule is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
