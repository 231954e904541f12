package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"FiscalScanner/internal/domain"
	"FiscalScanner/internal/ports"
)

// RecordStore persists accepted records into Postgres, keyed by their
// canonical duplicate hash.
type RecordStore struct {
	db *sql.DB
}

var _ ports.RecordStore = (*RecordStore)(nil)

// NewRecordStore wires a sql.DB implementation.
func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db}
}

// AlreadyStored returns a map with the duplicate keys that already exist.
func (r *RecordStore) AlreadyStored(ctx context.Context, dupKeys []string) (map[string]bool, error) {
	if r.db == nil || len(dupKeys) == 0 {
		return map[string]bool{}, nil
	}

	query := `SELECT dup_key FROM fiscal_records WHERE dup_key = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.StringArray(dupKeys))
	if err != nil {
		return nil, fmt.Errorf("query stored keys: %w", err)
	}

	result := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan key: %w", err)
		}
		result[key] = true
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// SaveRecord upserts the record snapshot by duplicate key.
func (r *RecordStore) SaveRecord(ctx context.Context, rec domain.Record, dupKey string) error {
	if r.db == nil {
		return nil
	}

	query := `INSERT INTO fiscal_records
	              (dup_key, record_type, entity_id, period_id, category,
	               allocated_amount, actual_amount, severity, finding,
	               source_url, confidence)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	          ON CONFLICT (dup_key) DO UPDATE
	          SET allocated_amount = EXCLUDED.allocated_amount,
	              actual_amount = EXCLUDED.actual_amount,
	              severity = EXCLUDED.severity,
	              finding = EXCLUDED.finding,
	              confidence = EXCLUDED.confidence,
	              updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		dupKey,
		rec.Type,
		rec.EntityID,
		rec.PeriodID,
		rec.Category,
		rec.AllocatedAmount,
		rec.ActualAmount,
		nullable(rec.Severity),
		nullable(rec.Finding),
		rec.SourceURL,
		rec.Confidence,
	)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}

	return nil
}

// HistoricalAmounts returns recent allocated amounts for an entity/category
// pair, newest first, for outlier detection.
func (r *RecordStore) HistoricalAmounts(ctx context.Context, entityID int64, category string, limit int) ([]float64, error) {
	if r.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT allocated_amount FROM fiscal_records
	          WHERE entity_id = $1 AND category = $2 AND allocated_amount IS NOT NULL
	          ORDER BY created_at DESC LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, entityID, category, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var amounts []float64
	for rows.Next() {
		var amount float64
		if err := rows.Scan(&amount); err != nil {
			return nil, fmt.Errorf("scan amount: %w", err)
		}
		amounts = append(amounts, amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return amounts, nil
}

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
