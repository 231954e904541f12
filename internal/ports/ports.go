package ports

import (
	"context"
	"time"

	"FiscalScanner/internal/domain"
)

// ContentSource retrieves raw publisher content for one target URL.
type ContentSource interface {
	Fetch(ctx context.Context, url string) (domain.RawContent, error)
}

// RecordStore persists accepted records and answers duplicate/history queries.
type RecordStore interface {
	AlreadyStored(ctx context.Context, dupKeys []string) (map[string]bool, error)
	SaveRecord(ctx context.Context, rec domain.Record, dupKey string) error
	HistoricalAmounts(ctx context.Context, entityID int64, category string, limit int) ([]float64, error)
}

// JobLedger is the durable run history.
type JobLedger interface {
	CreateJob(ctx context.Context, job *domain.IngestionJob) error
	UpdateJob(ctx context.Context, job *domain.IngestionJob) error
	HasActiveJob(ctx context.Context, sourceDomain string) (bool, error)
	LastContentHash(ctx context.Context, sourceDomain, target string) (string, error)
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.IngestionJob, error)
	Stats(ctx context.Context, since time.Time) (domain.JobStats, error)
}

// ReviewQueue holds records rejected by the confidence filter.
type ReviewQueue interface {
	Enqueue(ctx context.Context, entry domain.ReviewEntry) error
	Resolve(ctx context.Context, id int64) error
}

// AdvisoryLocker is the cross-process mutual-exclusion primitive backing
// scheduler coordination.
type AdvisoryLocker interface {
	TryAcquire(ctx context.Context, lockID int64) (bool, error)
	Release(ctx context.Context, lockID int64) error
}
