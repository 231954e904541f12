package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"FiscalScanner/internal/config"
	"FiscalScanner/internal/domain"
	"FiscalScanner/internal/extractor"
	"FiscalScanner/internal/fetcher"
	"FiscalScanner/internal/filter"
	"FiscalScanner/internal/logging"
	"FiscalScanner/internal/storage"
	"FiscalScanner/internal/usecase"
	"FiscalScanner/internal/validator"
)

// Application wires configuration to use cases and owns the DB handle.
type Application struct {
	cfg       config.Config
	db        *sql.DB
	ledger    *storage.JobLedger
	reviews   *storage.ReviewQueue
	scheduler *usecase.Scheduler
	prober    *usecase.Prober
	logger    *slog.Logger
}

// New opens the database and builds the full component graph.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	records := storage.NewRecordStore(db)
	ledger := storage.NewJobLedger(db)
	reviews := storage.NewReviewQueue(db)
	locker := storage.NewAdvisoryLock(db)

	client := fetcher.New(cfg.Fetcher, nil, baseLogger.With("component", "fetcher"))
	chain := extractor.NewChain(baseLogger.With("component", "extractor"),
		extractor.TableStrategy{}, extractor.PathStrategy{})
	checker := validator.New(cfg.Validation)

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:    client,
		Extractor: chain,
		Validator: checker,
		Filter:    filter.New(checker.MinConfidence()),
		Records:   records,
		Ledger:    ledger,
		Reviews:   reviews,
		Logger:    baseLogger.With("component", "pipeline"),
	})

	scheduler := usecase.NewScheduler(cfg.Scheduler, usecase.SchedulerDeps{
		Sources: cfg.Sources,
		Locker:  locker,
		Ledger:  ledger,
		Runner:  pipeline,
		Logger:  baseLogger.With("component", "scheduler"),
	})

	return &Application{
		cfg:       cfg,
		db:        db,
		ledger:    ledger,
		reviews:   reviews,
		scheduler: scheduler,
		prober:    usecase.NewProber(nil, baseLogger.With("component", "probe")),
		logger:    baseLogger,
	}, nil
}

// Run starts the scheduler loop and blocks until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	a.logger.Info("scheduler starting",
		"sources", len(a.cfg.Sources),
		"tick", a.cfg.Scheduler.TickInterval(),
		"run_on_start", a.cfg.Scheduler.RunOnStart)
	return a.scheduler.Start(ctx)
}

// Trigger runs a single source immediately, outside its schedule.
func (a *Application) Trigger(ctx context.Context, sourceDomain string, dryRun bool) (*domain.IngestionJob, error) {
	return a.scheduler.TriggerSource(ctx, sourceDomain, dryRun)
}

// Probe checks reachability of every configured target.
func (a *Application) Probe(ctx context.Context) []usecase.ProbeResult {
	return a.prober.Check(ctx, a.cfg.Sources)
}

// Jobs lists ledger rows per the filter.
func (a *Application) Jobs(ctx context.Context, f domain.JobFilter) ([]domain.IngestionJob, error) {
	return a.ledger.ListJobs(ctx, f)
}

// Stats aggregates the ledger over a lookback window.
func (a *Application) Stats(ctx context.Context, since time.Time) (domain.JobStats, error) {
	return a.ledger.Stats(ctx, since)
}

// ResolveReview marks a review-queue entry handled.
func (a *Application) ResolveReview(ctx context.Context, id int64) error {
	return a.reviews.Resolve(ctx, id)
}

// Close releases the database handle.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
