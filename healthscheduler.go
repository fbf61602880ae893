package installer

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// HealthSchedulerConfig configures the periodic health check runner.
type HealthSchedulerConfig struct {
	// Schedule is a cron expression controlling how often all installed
	// modules are health checked. Defaults to every minute.
	Schedule string `json:"schedule" yaml:"schedule"`

	// TenantID restricts evaluation to one tenant. Empty evaluates every
	// tenant's installations.
	TenantID string `json:"tenantId,omitempty" yaml:"tenantId,omitempty"`
}

// HealthScheduler runs aggregate health evaluations on a cron schedule.
// Each tick evaluates every installed module through the orchestrator,
// which updates the installations' health fields and publishes a
// health-evaluated event per snapshot.
type HealthScheduler struct {
	config       HealthSchedulerConfig
	orchestrator *Orchestrator
	logger       Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID

	snapshotMu sync.RWMutex
	latest     *AggregateSnapshot
}

// NewHealthScheduler creates a scheduler with the given configuration.
func NewHealthScheduler(config HealthSchedulerConfig, orchestrator *Orchestrator, logger Logger) *HealthScheduler {
	if config.Schedule == "" {
		config.Schedule = "@every 1m"
	}
	return &HealthScheduler{config: config, orchestrator: orchestrator, logger: logger}
}

// Start begins periodic evaluation. It is a no-op when already started.
func (s *HealthScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New()
	entryID, err := c.AddFunc(s.config.Schedule, func() { s.evaluate(ctx) })
	if err != nil {
		return fmt.Errorf("invalid health check schedule %q: %w", s.config.Schedule, err)
	}
	c.Start()

	s.cron = c
	s.entryID = entryID
	s.logger.Info("Health scheduler started", "schedule", s.config.Schedule)
	return nil
}

// Stop halts periodic evaluation and waits for an in-flight run to finish.
func (s *HealthScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.cron = nil
}

// Latest returns the most recent snapshot, or nil before the first run.
func (s *HealthScheduler) Latest() *AggregateSnapshot {
	s.snapshotMu.RLock()
	defer s.snapshotMu.RUnlock()
	return s.latest
}

// RunNow evaluates immediately, outside the schedule, and returns the
// snapshot. The scheduler uses the same path on every tick.
func (s *HealthScheduler) RunNow(ctx context.Context) (*AggregateSnapshot, error) {
	snapshot, err := s.orchestrator.AggregateHealth(ctx, s.config.TenantID)
	if err != nil {
		return nil, err
	}
	s.snapshotMu.Lock()
	s.latest = snapshot
	s.snapshotMu.Unlock()
	return snapshot, nil
}

func (s *HealthScheduler) evaluate(ctx context.Context) {
	snapshot, err := s.RunNow(ctx)
	if err != nil {
		s.logger.Warn("Scheduled health evaluation failed", "error", err)
		return
	}
	s.logger.Debug("Scheduled health evaluation completed",
		"snapshot", snapshot.SnapshotID,
		"total", snapshot.Summary.Total,
		"healthy", snapshot.Summary.Healthy)
}
