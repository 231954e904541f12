package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"FiscalScanner/internal/config"
	"FiscalScanner/internal/domain"
	"FiscalScanner/internal/extractor"
	"FiscalScanner/internal/filter"
	"FiscalScanner/internal/ports"
	"FiscalScanner/internal/validator"
)

const historyWindow = 20

// PipelineDeps wires all driven adapters into the ingestion pipeline.
type PipelineDeps struct {
	Source    ports.ContentSource
	Extractor *extractor.Chain
	Validator *validator.Validator
	Filter    *filter.ConfidenceFilter
	Records   ports.RecordStore
	Ledger    ports.JobLedger
	Reviews   ports.ReviewQueue
	Logger    *slog.Logger
}

// Pipeline executes one ingestion run: fetch, extract, validate, filter,
// persist, with every outcome recorded on the job ledger.
type Pipeline struct {
	source    ports.ContentSource
	extractor *extractor.Chain
	validator *validator.Validator
	filter    *filter.ConfidenceFilter
	records   ports.RecordStore
	ledger    ports.JobLedger
	reviews   ports.ReviewQueue
	logger    *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		source:    deps.Source,
		extractor: deps.Extractor,
		validator: deps.Validator,
		filter:    deps.Filter,
		records:   deps.Records,
		ledger:    deps.Ledger,
		reviews:   deps.Reviews,
		logger:    deps.Logger,
	}
}

// Run drives a full run for one source. Per-record problems are absorbed
// into the job's error list; only an unexpected panic fails the run, and
// partial counters are preserved when it does. Dry runs execute the whole
// pipeline but suppress persistence of accepted records.
func (p *Pipeline) Run(ctx context.Context, src config.SourceConfig, dryRun bool) (job *domain.IngestionJob, err error) {
	job = domain.NewJob(src.Domain, dryRun)
	if err := p.ledger.CreateJob(ctx, job); err != nil {
		return job, fmt.Errorf("create job for %s: %w", src.Domain, err)
	}

	defer func() {
		if r := recover(); r != nil {
			job.RecordError("pipeline", src.Domain, fmt.Sprintf("unexpected failure: %v", r))
			_ = job.Transition(domain.JobFailed)
			if updateErr := p.ledger.UpdateJob(ctx, job); updateErr != nil {
				p.warn("persist failed job state", "job", job.ID, "error", updateErr)
			}
			err = fmt.Errorf("run for %s aborted: %v", src.Domain, r)
		}
	}()

	if err := job.Transition(domain.JobRunning); err != nil {
		return job, err
	}
	if err := p.ledger.UpdateJob(ctx, job); err != nil {
		return job, fmt.Errorf("mark job running: %w", err)
	}

	p.info("run started", "domain", src.Domain, "targets", len(src.Targets), "dry_run", dryRun)

	for _, target := range src.Targets {
		p.processTarget(ctx, job, target, dryRun)
		// keep partial progress visible between targets
		if updateErr := p.ledger.UpdateJob(ctx, job); updateErr != nil {
			p.warn("persist partial progress", "job", job.ID, "error", updateErr)
		}
	}

	final := domain.JobCompleted
	if len(job.Errors) > 0 {
		final = domain.JobCompletedWithErrors
	}
	if err := job.Transition(final); err != nil {
		return job, err
	}
	if err := p.ledger.UpdateJob(ctx, job); err != nil {
		return job, fmt.Errorf("finalize job: %w", err)
	}

	p.info("run finished", "domain", src.Domain, "status", job.Status,
		"processed", job.ItemsProcessed, "created", job.ItemsCreated,
		"updated", job.ItemsUpdated, "errors", len(job.Errors))
	return job, nil
}

func (p *Pipeline) processTarget(ctx context.Context, job *domain.IngestionJob, target config.TargetConfig, dryRun bool) {
	content, err := p.source.Fetch(ctx, target.URL)
	if err != nil {
		job.RecordError("fetch", target.Name, err.Error())
		p.warn("fetch failed", "target", target.Name, "error", err)
		return
	}
	hash := content.Hash()
	prev, err := p.ledger.LastContentHash(ctx, job.Domain, target.Name)
	if err != nil {
		p.debug("content hash lookup failed", "target", target.Name, "error", err)
	}
	job.Metadata[domain.ContentHashKey(target.Name)] = hash
	if err == nil && prev != "" && prev == hash {
		p.info("content unchanged since last run, skipping extraction",
			"target", target.Name, "hash", hash)
		return
	}

	records, err := p.extractor.Extract(content, target)
	if err != nil {
		job.RecordError("extract", target.Name, err.Error())
		p.warn("extraction failed", "target", target.Name, "error", err)
		return
	}
	if len(records) == 0 {
		p.info("target yielded no records", "target", target.Name)
		return
	}

	dupKeys := make([]string, len(records))
	for i, rec := range records {
		dupKeys[i] = validator.DuplicateKey(rec)
	}
	existing, err := p.records.AlreadyStored(ctx, dupKeys)
	if err != nil {
		job.RecordError("persist", target.Name, fmt.Sprintf("duplicate lookup: %v", err))
		p.warn("duplicate lookup failed", "target", target.Name, "error", err)
		return
	}

	seen := map[string]bool{}
	for i, rec := range records {
		job.ItemsProcessed++

		result := p.validator.Validate(rec)
		rec.Confidence = result.Confidence

		if !p.filter.ShouldAccept(result) {
			entry := p.filter.Reject(rec, result)
			job.RecordError("validate", target.Name, fmt.Sprintf("%s: %s", rec.Describe(), entry.Reason))
			if !dryRun {
				if err := p.reviews.Enqueue(ctx, entry); err != nil {
					job.RecordError("review", target.Name, err.Error())
					p.warn("review enqueue failed", "target", target.Name, "error", err)
				}
			}
			continue
		}

		key := dupKeys[i]
		if seen[key] {
			p.debug("duplicate within run skipped", "target", target.Name, "record", rec.Describe())
			continue
		}
		seen[key] = true

		p.flagOutlier(ctx, rec)

		if !dryRun {
			if err := p.records.SaveRecord(ctx, rec, key); err != nil {
				job.RecordError("persist", target.Name, err.Error())
				p.warn("record persistence failed", "target", target.Name, "error", err)
				continue
			}
		}

		if existing[key] {
			job.ItemsUpdated++
		} else {
			job.ItemsCreated++
		}
	}
}

// flagOutlier logs accepted budget amounts that deviate strongly from the
// entity's history. Informational only; it never blocks persistence.
func (p *Pipeline) flagOutlier(ctx context.Context, rec domain.Record) {
	if rec.Type != domain.RecordBudgetLine || rec.AllocatedAmount == nil {
		return
	}

	history, err := p.records.HistoricalAmounts(ctx, rec.EntityID, rec.Category, historyWindow)
	if err != nil {
		p.debug("history lookup failed", "record", rec.Describe(), "error", err)
		return
	}
	if validator.IsOutlier(*rec.AllocatedAmount, history) {
		p.warn("amount is a statistical outlier", "record", rec.Describe(), "amount", *rec.AllocatedAmount)
	}
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

func (p *Pipeline) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
