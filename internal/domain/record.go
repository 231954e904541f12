package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// RecordType selects the validation rules and canonical key for a record.
type RecordType string

const (
	RecordBudgetLine   RecordType = "budget_line"
	RecordAuditFinding RecordType = "audit_finding"
)

// Record is a candidate extracted from a publisher page. Budget lines use
// the amount fields; audit findings use Severity and Finding. Amounts are
// pointers so a missing value is distinguishable from an explicit zero.
type Record struct {
	Type            RecordType
	EntityID        int64
	PeriodID        int64
	Category        string
	AllocatedAmount *float64
	ActualAmount    *float64
	Severity        string
	Finding         string
	SourceURL       string
	Confidence      float64
}

// ValidationResult is attached to each record before the persistence decision.
type ValidationResult struct {
	IsValid    bool
	Confidence float64
	Errors     []string
	Warnings   []string
	Metadata   map[string]string
}

// RawContent is the fetched payload for one target. It lives only for the
// duration of a run; the hash is kept on the job for idempotency checks.
type RawContent struct {
	Body        []byte
	ContentType string
	FetchedAt   time.Time
}

// Hash returns the sha256 hex digest of the body.
func (c RawContent) Hash() string {
	sum := sha256.Sum256(c.Body)
	return hex.EncodeToString(sum[:])
}

// ReviewStatus tracks the disposition of a review-queue entry.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending_review"
	ReviewResolved ReviewStatus = "resolved"
)

// ReviewEntry holds a record rejected by the confidence filter until a
// human resolves it.
type ReviewEntry struct {
	ID         int64
	Record     Record
	Confidence float64
	Reason     string
	Status     ReviewStatus
	CreatedAt  time.Time
}

// NewReviewEntry wraps a rejected record with its rejection context.
func NewReviewEntry(rec Record, confidence float64, reason string) ReviewEntry {
	return ReviewEntry{
		Record:     rec,
		Confidence: confidence,
		Reason:     reason,
		Status:     ReviewPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// Describe returns a short human-readable identifier for log lines.
func (r Record) Describe() string {
	switch r.Type {
	case RecordAuditFinding:
		return fmt.Sprintf("audit entity=%d period=%d severity=%s", r.EntityID, r.PeriodID, r.Severity)
	default:
		return fmt.Sprintf("budget entity=%d period=%d category=%s", r.EntityID, r.PeriodID, r.Category)
	}
}
