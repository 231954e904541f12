package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"FiscalScanner/internal/domain"
	"FiscalScanner/internal/ports"
)

// ReviewQueue stores rejected records until a human resolves them.
type ReviewQueue struct {
	db *sql.DB
}

var _ ports.ReviewQueue = (*ReviewQueue)(nil)

// NewReviewQueue wires a sql.DB implementation.
func NewReviewQueue(db *sql.DB) *ReviewQueue {
	return &ReviewQueue{db: db}
}

// Enqueue inserts a pending review entry with the full record snapshot.
func (q *ReviewQueue) Enqueue(ctx context.Context, entry domain.ReviewEntry) error {
	if q.db == nil {
		return nil
	}

	recordJSON, err := json.Marshal(entry.Record)
	if err != nil {
		return fmt.Errorf("marshal review record: %w", err)
	}

	query := `INSERT INTO review_queue (source_record, confidence, reason, status, created_at)
	          VALUES ($1, $2, $3, $4, $5)`

	_, err = q.db.ExecContext(ctx, query,
		recordJSON,
		entry.Confidence,
		entry.Reason,
		entry.Status,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue review entry: %w", err)
	}

	return nil
}

// Resolve marks an entry as handled.
func (q *ReviewQueue) Resolve(ctx context.Context, id int64) error {
	if q.db == nil {
		return nil
	}

	query := `UPDATE review_queue SET status = $1, resolved_at = NOW() WHERE id = $2`

	result, err := q.db.ExecContext(ctx, query, domain.ReviewResolved, id)
	if err != nil {
		return fmt.Errorf("resolve review entry %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("review entry %d not found", id)
	}

	return nil
}
