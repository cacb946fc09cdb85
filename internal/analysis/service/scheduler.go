package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"domainintel/internal/analysis/models"
	"domainintel/internal/analysis/ports"
)

// SchedulerConfig sets the tick interval, how many ticks make a pass, and
// the age at which a finished record is rescanned.
type SchedulerConfig struct {
	Tick         time.Duration
	TicksPerPass int
	StaleAfter   time.Duration
}

// PassStats summarizes one staleness pass.
type PassStats struct {
	Examined  int
	Rescanned int
	Failed    int
}

// Scheduler re-analyzes finished records once they go stale. It runs a
// pass on start, then one every TicksPerPass ticks.
type Scheduler struct {
	store  ports.Store
	runner Runner
	cfg    SchedulerConfig
	options

	mu    sync.Mutex
	ticks int
}

func NewScheduler(store ports.Store, runner Runner, cfg SchedulerConfig, opts ...Option) (*Scheduler, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if runner == nil {
		return nil, errors.New("analyzer is required")
	}
	if cfg.Tick <= 0 || cfg.TicksPerPass < 1 || cfg.StaleAfter <= 0 {
		return nil, errors.New("tick, ticks per pass and stale-after must be positive")
	}
	return &Scheduler{store: store, runner: runner, cfg: cfg, options: newOptions(opts)}, nil
}

// Run performs an immediate pass and then ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler started",
		"tick", s.cfg.Tick,
		"ticks_per_pass", s.cfg.TicksPerPass,
		"stale_after", s.cfg.StaleAfter,
	)
	s.RunPass(ctx)

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick advances the counter and runs a pass when it reaches TicksPerPass,
// resetting it to zero. It reports whether a pass ran.
func (s *Scheduler) Tick(ctx context.Context) bool {
	s.mu.Lock()
	s.ticks++
	due := s.ticks >= s.cfg.TicksPerPass
	if due {
		s.ticks = 0
	}
	s.mu.Unlock()

	if due {
		s.RunPass(ctx)
	}
	return due
}

// Ticks returns the ticks accumulated since the last pass.
func (s *Scheduler) Ticks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// RunPass rescans every stale record synchronously. Per-domain failures
// are logged and counted; a cancelled ctx stops the pass between domains.
func (s *Scheduler) RunPass(ctx context.Context) PassStats {
	var stats PassStats

	records, err := s.store.List(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduler failed to list domains", "error", err)
		return stats
	}
	if len(records) == 0 {
		s.logger.InfoContext(ctx, "scheduler found no domains")
		s.metrics.IncrementPass()
		return stats
	}

	now := s.now()
	for _, rec := range records {
		if ctx.Err() != nil {
			s.logger.InfoContext(ctx, "scheduler pass interrupted", "rescanned", stats.Rescanned)
			return stats
		}
		stats.Examined++
		if !NeedsRescan(rec, now, s.cfg.StaleAfter) {
			continue
		}

		s.logger.InfoContext(ctx, "re-analyzing stale domain", "domain", rec.Domain)
		if _, err := s.runner.Analyze(ctx, rec.Domain, models.SourceScheduler); err != nil {
			stats.Failed++
			s.logger.ErrorContext(ctx, "scheduled re-analysis failed", "domain", rec.Domain, "error", err)
			continue
		}
		stats.Rescanned++
		s.metrics.IncrementRescan()
	}

	s.metrics.IncrementPass()
	s.logger.InfoContext(ctx, "scheduler pass finished",
		"examined", stats.Examined,
		"rescanned", stats.Rescanned,
		"failed", stats.Failed,
	)
	return stats
}

// NeedsRescan reports whether a finished record is due: never scanned, or
// last scanned at least staleAfter before now. Pending and unrecognized
// statuses are never due.
func NeedsRescan(rec *models.DomainRecord, now time.Time, staleAfter time.Duration) bool {
	if !rec.Status.IsTerminal() {
		return false
	}
	if rec.LastScanAt == nil || rec.LastScanAt.IsZero() {
		return true
	}
	return now.Sub(*rec.LastScanAt) >= staleAfter
}
