package validator

import (
	"strings"
	"testing"

	"FiscalScanner/internal/config"
	"FiscalScanner/internal/domain"
)

func amount(v float64) *float64 { return &v }

func newValidator() *Validator {
	return New(config.ValidationConfig{MinConfidence: 0.6})
}

func budgetRecord() domain.Record {
	return domain.Record{
		Type:            domain.RecordBudgetLine,
		EntityID:        1,
		PeriodID:        1,
		Category:        "Health Services",
		AllocatedAmount: amount(1_000_000),
	}
}

func TestValidateCleanBudgetRecord(t *testing.T) {
	t.Parallel()

	result := newValidator().Validate(budgetRecord())

	if !result.IsValid {
		t.Fatalf("expected valid, got errors %v", result.Errors)
	}
	if result.Confidence != 1.0 {
		t.Fatalf("expected confidence 1.0, got %v", result.Confidence)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
}

func TestValidateNegativeAmount(t *testing.T) {
	t.Parallel()

	rec := budgetRecord()
	rec.Category = "Health"
	rec.AllocatedAmount = amount(-500)

	result := newValidator().Validate(rec)

	if result.IsValid {
		t.Fatal("expected invalid")
	}
	if result.Confidence > 0.7 {
		t.Fatalf("expected confidence <= 0.7, got %v", result.Confidence)
	}
	found := false
	for _, msg := range result.Errors {
		if strings.Contains(msg, "negative") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a negative-amount error, got %v", result.Errors)
	}
}

func TestValidateMissingFields(t *testing.T) {
	t.Parallel()

	result := newValidator().Validate(domain.Record{Type: domain.RecordBudgetLine})

	if result.IsValid {
		t.Fatal("expected invalid when required fields are missing")
	}
	if len(result.Errors) != 4 {
		t.Fatalf("expected 4 missing-field errors, got %v", result.Errors)
	}
	// 4 * 0.25 drains the whole score, clamp holds at zero
	if result.Confidence != 0 {
		t.Fatalf("expected confidence 0, got %v", result.Confidence)
	}
}

func TestConfidenceAlwaysClamped(t *testing.T) {
	t.Parallel()

	v := New(config.ValidationConfig{
		MinConfidence: 0.6,
		Penalties:     map[string]float64{CheckMissingField: 5.0},
	})

	result := v.Validate(domain.Record{Type: domain.RecordAuditFinding})
	if result.Confidence < 0 || result.Confidence > 1 {
		t.Fatalf("confidence %v outside [0,1]", result.Confidence)
	}
}

func TestValidateWarningsDoNotInvalidate(t *testing.T) {
	t.Parallel()

	rec := budgetRecord()
	rec.AllocatedAmount = amount(0)

	result := newValidator().Validate(rec)

	if !result.IsValid {
		t.Fatalf("zero amount should warn, not fail: %v", result.Errors)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", result.Warnings)
	}
	if result.Confidence != 0.9 {
		t.Fatalf("expected confidence 0.9, got %v", result.Confidence)
	}
}

func TestValidateLargeAmountAndVariance(t *testing.T) {
	t.Parallel()

	rec := budgetRecord()
	rec.AllocatedAmount = amount(2e12)
	rec.ActualAmount = amount(8e12)

	result := newValidator().Validate(rec)

	if !result.IsValid {
		t.Fatalf("expected valid with warnings, got errors %v", result.Errors)
	}
	if len(result.Warnings) != 2 {
		t.Fatalf("expected large-amount and variance warnings, got %v", result.Warnings)
	}
}

func TestValidateShortCategory(t *testing.T) {
	t.Parallel()

	rec := budgetRecord()
	rec.Category = "IT"

	result := newValidator().Validate(rec)

	if !result.IsValid {
		t.Fatalf("short category should warn, not fail: %v", result.Errors)
	}
	if result.Confidence != 0.95 {
		t.Fatalf("expected confidence 0.95, got %v", result.Confidence)
	}
}

func TestValidateAuditSeverityEnum(t *testing.T) {
	t.Parallel()

	rec := domain.Record{
		Type:     domain.RecordAuditFinding,
		EntityID: 2,
		PeriodID: 3,
		Severity: "catastrophic",
		Finding:  "Unreconciled expenditures in Q3 procurement.",
	}

	result := newValidator().Validate(rec)

	if result.IsValid {
		t.Fatal("expected invalid for unknown severity")
	}
	if result.Confidence != 0.8 {
		t.Fatalf("expected confidence 0.8, got %v", result.Confidence)
	}
}

func TestDuplicateKeyStability(t *testing.T) {
	t.Parallel()

	first := budgetRecord()
	second := budgetRecord()
	second.SourceURL = "https://elsewhere.example.gov"
	second.ActualAmount = amount(999)

	if DuplicateKey(first) != DuplicateKey(second) {
		t.Fatal("non-key fields must not change the duplicate hash")
	}

	third := budgetRecord()
	third.Category = "Education"
	if DuplicateKey(first) == DuplicateKey(third) {
		t.Fatal("differing key fields must change the duplicate hash")
	}
}

func TestDuplicateKeyAuditUsesFindingPrefix(t *testing.T) {
	t.Parallel()

	base := domain.Record{
		Type:     domain.RecordAuditFinding,
		EntityID: 1,
		PeriodID: 1,
		Finding:  strings.Repeat("a", 100),
	}
	longer := base
	longer.Finding = base.Finding + " trailing detail beyond the canonical prefix"

	if DuplicateKey(base) != DuplicateKey(longer) {
		t.Fatal("findings identical in the first 100 chars must collide")
	}
}

func TestIsOutlierNeedsThreeSamples(t *testing.T) {
	t.Parallel()

	if IsOutlier(1e9, nil) {
		t.Fatal("no history must never flag")
	}
	if IsOutlier(1e9, []float64{100, 100}) {
		t.Fatal("fewer than 3 samples must never flag")
	}
}

func TestIsOutlierZScore(t *testing.T) {
	t.Parallel()

	history := []float64{100, 110, 90, 105, 95}
	if IsOutlier(102, history) {
		t.Fatal("in-range value flagged")
	}
	if !IsOutlier(10_000, history) {
		t.Fatal("extreme value not flagged")
	}
	if IsOutlier(500, []float64{100, 100, 100}) {
		t.Fatal("zero-variance history must not flag")
	}
}
