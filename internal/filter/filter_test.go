package filter

import (
	"strings"
	"testing"

	"FiscalScanner/internal/domain"
)

func TestShouldAcceptThreshold(t *testing.T) {
	t.Parallel()

	f := New(0.6)

	if !f.ShouldAccept(domain.ValidationResult{IsValid: true, Confidence: 0.6}) {
		t.Fatal("threshold is inclusive")
	}
	if f.ShouldAccept(domain.ValidationResult{IsValid: true, Confidence: 0.59}) {
		t.Fatal("sub-threshold must be rejected")
	}
	if f.ShouldAccept(domain.ValidationResult{IsValid: false, Confidence: 0.9}) {
		t.Fatal("invalid records must be rejected regardless of confidence")
	}
}

func TestRejectBuildsPendingEntry(t *testing.T) {
	t.Parallel()

	f := New(0.6)
	rec := domain.Record{Type: domain.RecordBudgetLine, EntityID: 1, PeriodID: 1, Category: "Health"}

	entry := f.Reject(rec, domain.ValidationResult{Confidence: 0.4})
	if entry.Status != domain.ReviewPending {
		t.Fatalf("expected pending_review, got %s", entry.Status)
	}
	if entry.Confidence != 0.4 {
		t.Fatalf("unexpected confidence: %v", entry.Confidence)
	}
	if !strings.Contains(entry.Reason, "below threshold") {
		t.Fatalf("unexpected reason: %q", entry.Reason)
	}
	if entry.Record.EntityID != 1 {
		t.Fatal("original record must be carried")
	}

	withErrors := f.Reject(rec, domain.ValidationResult{Confidence: 0.3, Errors: []string{"negative monetary amount"}})
	if !strings.Contains(withErrors.Reason, "negative monetary amount") {
		t.Fatalf("validation errors should drive the reason, got %q", withErrors.Reason)
	}
}
