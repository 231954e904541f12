package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"FiscalScanner/internal/domain"
	"FiscalScanner/internal/ports"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// JobLedger is the Postgres-backed run history.
type JobLedger struct {
	db *sql.DB
}

var _ ports.JobLedger = (*JobLedger)(nil)

// NewJobLedger wires a sql.DB implementation.
func NewJobLedger(db *sql.DB) *JobLedger {
	return &JobLedger{db: db}
}

// CreateJob inserts the PENDING ledger row for a new run.
func (l *JobLedger) CreateJob(ctx context.Context, job *domain.IngestionJob) error {
	if l.db == nil {
		return nil
	}

	errorsJSON, metadataJSON, err := marshalJobFields(job)
	if err != nil {
		return err
	}

	query, args, err := psql.Insert("ingestion_jobs").
		Columns("id", "domain", "status", "dry_run", "started_at", "finished_at",
			"items_processed", "items_created", "items_updated",
			"errors", "metadata", "created_at").
		Values(job.ID, job.Domain, job.Status, job.DryRun, job.StartedAt, job.FinishedAt,
			job.ItemsProcessed, job.ItemsCreated, job.ItemsUpdated,
			errorsJSON, metadataJSON, job.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// UpdateJob writes the current job state. Only the run that owns the job
// id calls this, so there is no cross-run contention on a row.
func (l *JobLedger) UpdateJob(ctx context.Context, job *domain.IngestionJob) error {
	if l.db == nil {
		return nil
	}

	errorsJSON, metadataJSON, err := marshalJobFields(job)
	if err != nil {
		return err
	}

	query, args, err := psql.Update("ingestion_jobs").
		Set("status", job.Status).
		Set("started_at", job.StartedAt).
		Set("finished_at", job.FinishedAt).
		Set("items_processed", job.ItemsProcessed).
		Set("items_created", job.ItemsCreated).
		Set("items_updated", job.ItemsUpdated).
		Set("errors", errorsJSON).
		Set("metadata", metadataJSON).
		Where(sq.Eq{"id": job.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	return nil
}

// HasActiveJob reports whether a non-terminal job exists for the domain.
// The scheduler uses this as the overlap guard before dispatching.
func (l *JobLedger) HasActiveJob(ctx context.Context, sourceDomain string) (bool, error) {
	if l.db == nil {
		return false, nil
	}

	query, args, err := psql.Select("1").
		From("ingestion_jobs").
		Where(sq.Eq{"domain": sourceDomain}).
		Where(sq.Eq{"status": []domain.JobStatus{domain.JobPending, domain.JobRunning}}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build active query: %w", err)
	}

	var one int
	switch err := l.db.QueryRowContext(ctx, query, args...).Scan(&one); err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, fmt.Errorf("query active job: %w", err)
	}
}

// LastContentHash returns the content hash the most recent completed real
// run recorded for a target, empty when no prior run saw the target. Dry
// runs are excluded: they persist nothing, so their hashes must not
// suppress a real run.
func (l *JobLedger) LastContentHash(ctx context.Context, sourceDomain, target string) (string, error) {
	if l.db == nil {
		return "", nil
	}

	query := `SELECT metadata ->> $1 FROM ingestion_jobs
	          WHERE domain = $2 AND dry_run = FALSE AND status IN ($3, $4)
	          ORDER BY created_at DESC LIMIT 1`

	var hash sql.NullString
	err := l.db.QueryRowContext(ctx, query,
		domain.ContentHashKey(target), sourceDomain,
		domain.JobCompleted, domain.JobCompletedWithErrors).Scan(&hash)
	switch err {
	case nil:
		return hash.String, nil
	case sql.ErrNoRows:
		return "", nil
	default:
		return "", fmt.Errorf("query last content hash: %w", err)
	}
}

// ListJobs returns ledger rows filtered by domain, status and creation
// window, newest first, paginated.
func (l *JobLedger) ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.IngestionJob, error) {
	if l.db == nil {
		return nil, nil
	}

	builder := psql.Select("id", "domain", "status", "dry_run", "started_at", "finished_at",
		"items_processed", "items_created", "items_updated",
		"errors", "metadata", "created_at").
		From("ingestion_jobs").
		OrderBy("created_at DESC")

	if filter.Domain != "" {
		builder = builder.Where(sq.Eq{"domain": filter.Domain})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if !filter.From.IsZero() {
		builder = builder.Where(sq.GtOrEq{"created_at": filter.From})
	}
	if !filter.To.IsZero() {
		builder = builder.Where(sq.Lt{"created_at": filter.To})
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	builder = builder.Limit(uint64(limit))
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.IngestionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return jobs, nil
}

// Stats aggregates counts per terminal status, summed item counters and a
// per-domain breakdown since the given time.
func (l *JobLedger) Stats(ctx context.Context, since time.Time) (domain.JobStats, error) {
	stats := domain.JobStats{
		ByStatus: map[domain.JobStatus]int{},
		ByDomain: map[string]int{},
	}
	if l.db == nil {
		return stats, nil
	}

	statusQuery, args, err := psql.Select("status", "COUNT(*)",
		"COALESCE(SUM(items_processed), 0)",
		"COALESCE(SUM(items_created), 0)",
		"COALESCE(SUM(items_updated), 0)").
		From("ingestion_jobs").
		Where(sq.GtOrEq{"created_at": since}).
		GroupBy("status").
		ToSql()
	if err != nil {
		return stats, fmt.Errorf("build status stats: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, statusQuery, args...)
	if err != nil {
		return stats, fmt.Errorf("query status stats: %w", err)
	}
	for rows.Next() {
		var status domain.JobStatus
		var count, processed, created, updated int
		if err := rows.Scan(&status, &count, &processed, &created, &updated); err != nil {
			_ = rows.Close()
			return stats, fmt.Errorf("scan status stats: %w", err)
		}
		stats.ByStatus[status] = count
		stats.ItemsProcessed += processed
		stats.ItemsCreated += created
		stats.ItemsUpdated += updated
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return stats, fmt.Errorf("status stats iteration: %w", err)
	}
	if err := rows.Close(); err != nil {
		return stats, fmt.Errorf("close status stats: %w", err)
	}

	domainQuery, args, err := psql.Select("domain", "COUNT(*)").
		From("ingestion_jobs").
		Where(sq.GtOrEq{"created_at": since}).
		GroupBy("domain").
		ToSql()
	if err != nil {
		return stats, fmt.Errorf("build domain stats: %w", err)
	}

	domainRows, err := l.db.QueryContext(ctx, domainQuery, args...)
	if err != nil {
		return stats, fmt.Errorf("query domain stats: %w", err)
	}
	defer domainRows.Close()
	for domainRows.Next() {
		var name string
		var count int
		if err := domainRows.Scan(&name, &count); err != nil {
			return stats, fmt.Errorf("scan domain stats: %w", err)
		}
		stats.ByDomain[name] = count
	}
	if err := domainRows.Err(); err != nil {
		return stats, fmt.Errorf("domain stats iteration: %w", err)
	}

	return stats, nil
}

func marshalJobFields(job *domain.IngestionJob) ([]byte, []byte, error) {
	errorsJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal job errors: %w", err)
	}
	metadataJSON, err := json.Marshal(job.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal job metadata: %w", err)
	}
	return errorsJSON, metadataJSON, nil
}

func scanJob(rows *sql.Rows) (domain.IngestionJob, error) {
	var job domain.IngestionJob
	var startedAt, finishedAt sql.NullTime
	var errorsJSON, metadataJSON []byte

	err := rows.Scan(&job.ID, &job.Domain, &job.Status, &job.DryRun,
		&startedAt, &finishedAt,
		&job.ItemsProcessed, &job.ItemsCreated, &job.ItemsUpdated,
		&errorsJSON, &metadataJSON, &job.CreatedAt)
	if err != nil {
		return domain.IngestionJob{}, fmt.Errorf("scan job: %w", err)
	}

	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &job.Errors); err != nil {
			return domain.IngestionJob{}, fmt.Errorf("unmarshal job errors: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &job.Metadata); err != nil {
			return domain.IngestionJob{}, fmt.Errorf("unmarshal job metadata: %w", err)
		}
	}

	return job, nil
}
