package filter

import (
	"fmt"
	"strings"

	"FiscalScanner/internal/domain"
)

// ConfidenceFilter gates validated records. Rejection is a routing
// decision, never a failure: sub-threshold records go to the review queue
// instead of the primary store.
type ConfidenceFilter struct {
	minConfidence float64
}

// New builds a filter; non-positive thresholds fall back to 0.6.
func New(minConfidence float64) *ConfidenceFilter {
	if minConfidence <= 0 {
		minConfidence = 0.6
	}
	return &ConfidenceFilter{minConfidence: minConfidence}
}

// ShouldAccept reports whether the record may be persisted directly.
func (f *ConfidenceFilter) ShouldAccept(result domain.ValidationResult) bool {
	return result.IsValid && result.Confidence >= f.minConfidence
}

// Reject wraps a gated record into a pending review entry carrying the
// original data and the rejection reason.
func (f *ConfidenceFilter) Reject(rec domain.Record, result domain.ValidationResult) domain.ReviewEntry {
	reason := fmt.Sprintf("confidence %.2f below threshold %.2f", result.Confidence, f.minConfidence)
	if len(result.Errors) > 0 {
		reason = fmt.Sprintf("validation failed: %s", strings.Join(result.Errors, "; "))
	}
	return domain.NewReviewEntry(rec, result.Confidence, reason)
}
