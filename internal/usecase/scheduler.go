package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"FiscalScanner/internal/config"
	"FiscalScanner/internal/domain"
	"FiscalScanner/internal/ports"
)

// Runner executes one ingestion run for a source.
type Runner interface {
	Run(ctx context.Context, src config.SourceConfig, dryRun bool) (*domain.IngestionJob, error)
}

// Scheduler decides when each source is due and dispatches runs. Every
// worker process runs its own tick loop; a database advisory lock makes
// sure only one of them dispatches per tick. The lock covers the dispatch
// decision only, never the dispatched work.
type Scheduler struct {
	sources      []config.SourceConfig
	locker       ports.AdvisoryLocker
	ledger       ports.JobLedger
	runner       Runner
	lockID       int64
	tickInterval time.Duration
	runOnStart   bool
	logger       *slog.Logger
	now          func() time.Time

	mu      sync.Mutex
	nextDue map[string]time.Time
}

// SchedulerDeps wires the scheduler's collaborators.
type SchedulerDeps struct {
	Sources []config.SourceConfig
	Locker  ports.AdvisoryLocker
	Ledger  ports.JobLedger
	Runner  Runner
	Logger  *slog.Logger
}

// NewScheduler builds a scheduler from configuration.
func NewScheduler(cfg config.SchedulerConfig, deps SchedulerDeps) *Scheduler {
	return &Scheduler{
		sources:      deps.Sources,
		locker:       deps.Locker,
		ledger:       deps.Ledger,
		runner:       deps.Runner,
		lockID:       cfg.LockID,
		tickInterval: cfg.TickInterval(),
		runOnStart:   cfg.RunOnStart,
		logger:       deps.Logger,
		now:          time.Now,
		nextDue:      map[string]time.Time{},
	}
}

// Start seeds the due-time table and ticks until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.seedDueTimes(s.now())

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.Tick(ctx, s.now())
	for {
		select {
		case now := <-ticker.C:
			s.Tick(ctx, now)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// seedDueTimes spreads the first run of each source across its jitter
// window. Run-on-start makes everything due immediately instead.
func (s *Scheduler) seedDueTimes(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, src := range s.sources {
		if s.runOnStart {
			s.nextDue[src.Domain] = now
			continue
		}
		jitter := time.Duration(0)
		if src.JitterMinutes > 0 {
			jitter = time.Duration(rand.Int63n(int64(src.JitterMinutes)*60)) * time.Second
		}
		s.nextDue[src.Domain] = now.Add(jitter)
	}
}

// Tick acquires the coordination lock and dispatches every due source.
// Losing the lock makes the tick a no-op: another worker owns this round.
// Dispatch is fire-and-forget; the lock is released once the decisions are
// made, not when the runs finish.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	acquired, err := s.locker.TryAcquire(ctx, s.lockID)
	if err != nil {
		s.warn("lock acquisition failed", "error", err)
		return
	}
	if !acquired {
		s.debug("tick skipped, lock held elsewhere")
		return
	}
	defer func() {
		if releaseErr := s.locker.Release(ctx, s.lockID); releaseErr != nil {
			s.warn("lock release failed", "error", releaseErr)
		}
	}()

	for _, src := range s.dueSources(now) {
		active, err := s.ledger.HasActiveJob(ctx, src.Domain)
		if err != nil {
			s.warn("active-job check failed", "domain", src.Domain, "error", err)
			continue
		}
		if active {
			// previous run still executing; retry on a later tick
			s.debug("dispatch skipped, run still active", "domain", src.Domain)
			continue
		}

		s.advance(src, now)
		s.dispatch(ctx, src)
	}
}

// TriggerSource runs a single source immediately, outside its schedule,
// and waits for the resulting job.
func (s *Scheduler) TriggerSource(ctx context.Context, sourceDomain string, dryRun bool) (*domain.IngestionJob, error) {
	for _, src := range s.sources {
		if src.Domain == sourceDomain {
			return s.runner.Run(ctx, src, dryRun)
		}
	}
	return nil, fmt.Errorf("source %s is not configured", sourceDomain)
}

func (s *Scheduler) dueSources(now time.Time) []config.SourceConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []config.SourceConfig
	for _, src := range s.sources {
		if !s.nextDue[src.Domain].After(now) {
			due = append(due, src)
		}
	}
	return due
}

func (s *Scheduler) advance(src config.SourceConfig, now time.Time) {
	s.mu.Lock()
	s.nextDue[src.Domain] = now.Add(src.Interval())
	s.mu.Unlock()
}

// dispatch detaches the run from the tick's context so a slow source
// cannot stall scheduling of the others.
func (s *Scheduler) dispatch(ctx context.Context, src config.SourceConfig) {
	s.info("dispatching run", "domain", src.Domain)
	runCtx := context.WithoutCancel(ctx)
	go func() {
		if _, err := s.runner.Run(runCtx, src, false); err != nil {
			s.warn("dispatched run failed", "domain", src.Domain, "error", err)
		}
	}()
}

func (s *Scheduler) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Scheduler) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Scheduler) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
