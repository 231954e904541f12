package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"FiscalScanner/internal/config"
	"FiscalScanner/internal/domain"
)

// Check names double as penalty-map keys in configuration.
const (
	CheckMissingField   = "missing_field"
	CheckNegativeAmount = "negative_amount"
	CheckZeroAmount     = "zero_amount"
	CheckLargeAmount    = "large_amount"
	CheckVariance       = "variance_exceeded"
	CheckShortName      = "short_name"
	CheckInvalidEnum    = "invalid_enum"
)

var defaultPenalties = map[string]float64{
	CheckMissingField:   0.25,
	CheckNegativeAmount: 0.3,
	CheckZeroAmount:     0.1,
	CheckLargeAmount:    0.15,
	CheckVariance:       0.1,
	CheckShortName:      0.05,
	CheckInvalidEnum:    0.2,
}

const (
	largeAmountThreshold = 1e12
	varianceThreshold    = 2.0
	outlierZScore        = 3.0
	minOutlierSamples    = 3
	findingKeyPrefixLen  = 100
)

var allowedSeverities = map[string]bool{
	"low":      true,
	"medium":   true,
	"high":     true,
	"critical": true,
}

// Validator scores extraction records with additive penalties and flags
// defects as errors or warnings.
type Validator struct {
	minConfidence float64
	penalties     map[string]float64
}

// New builds a validator from configuration; unset penalties fall back to
// the built-in defaults.
func New(cfg config.ValidationConfig) *Validator {
	min := cfg.MinConfidence
	if min <= 0 {
		min = 0.6
	}

	penalties := make(map[string]float64, len(defaultPenalties))
	for name, weight := range defaultPenalties {
		penalties[name] = weight
	}
	for name, weight := range cfg.Penalties {
		penalties[name] = weight
	}

	return &Validator{minConfidence: min, penalties: penalties}
}

// MinConfidence exposes the acceptance threshold for the confidence filter.
func (v *Validator) MinConfidence() float64 { return v.minConfidence }

// Validate runs the type-specific checks. Confidence starts at 1.0, each
// defect subtracts its configured penalty, and the result is clamped to
// [0,1]. A record is valid only when it has no errors and clears the
// confidence threshold.
func (v *Validator) Validate(rec domain.Record) domain.ValidationResult {
	result := domain.ValidationResult{
		Confidence: 1.0,
		Metadata:   map[string]string{"record_type": string(rec.Type)},
	}

	for _, field := range v.missingFields(rec) {
		v.fail(&result, CheckMissingField, fmt.Sprintf("missing required field %s", field))
	}

	v.checkAmounts(rec, &result)

	switch rec.Type {
	case domain.RecordAuditFinding:
		if rec.Severity != "" && !allowedSeverities[rec.Severity] {
			v.fail(&result, CheckInvalidEnum, fmt.Sprintf("severity %q is not in the allowed set", rec.Severity))
		}
	default:
		if rec.Category != "" && len(rec.Category) < 3 {
			v.warnOn(&result, CheckShortName, fmt.Sprintf("category %q is shorter than 3 characters", rec.Category))
		}
	}

	result.Confidence = clamp(result.Confidence)
	result.IsValid = len(result.Errors) == 0 && result.Confidence >= v.minConfidence
	return result
}

func (v *Validator) missingFields(rec domain.Record) []string {
	var missing []string
	if rec.EntityID == 0 {
		missing = append(missing, "entity_id")
	}
	if rec.PeriodID == 0 {
		missing = append(missing, "period_id")
	}

	switch rec.Type {
	case domain.RecordAuditFinding:
		if rec.Severity == "" {
			missing = append(missing, "severity")
		}
		if rec.Finding == "" {
			missing = append(missing, "finding")
		}
	default:
		if rec.Category == "" {
			missing = append(missing, "category")
		}
		if rec.AllocatedAmount == nil {
			missing = append(missing, "allocated_amount")
		}
	}

	return missing
}

func (v *Validator) checkAmounts(rec domain.Record, result *domain.ValidationResult) {
	if rec.AllocatedAmount == nil {
		return
	}
	allocated := *rec.AllocatedAmount

	switch {
	case allocated < 0:
		v.fail(result, CheckNegativeAmount, fmt.Sprintf("negative monetary amount %.2f", allocated))
	case allocated == 0:
		v.warnOn(result, CheckZeroAmount, "monetary amount is zero")
	case allocated > largeAmountThreshold:
		v.warnOn(result, CheckLargeAmount, fmt.Sprintf("amount %.2f exceeds large-magnitude threshold", allocated))
	}

	if rec.ActualAmount != nil && allocated > 0 {
		variance := math.Abs(*rec.ActualAmount-allocated) / allocated
		if variance > varianceThreshold {
			v.warnOn(result, CheckVariance, fmt.Sprintf("actual-vs-allocated variance %.0f%% exceeds 200%%", variance*100))
		}
	}
}

func (v *Validator) fail(result *domain.ValidationResult, check, message string) {
	result.Errors = append(result.Errors, message)
	result.Confidence -= v.penalties[check]
}

func (v *Validator) warnOn(result *domain.ValidationResult, check, message string) {
	result.Warnings = append(result.Warnings, message)
	result.Confidence -= v.penalties[check]
}

func clamp(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

// DuplicateKey builds a stable hash over the type-specific canonical
// tuple. Records sharing the tuple are duplicates regardless of any other
// field differences.
func DuplicateKey(rec domain.Record) string {
	var parts []string
	switch rec.Type {
	case domain.RecordAuditFinding:
		finding := rec.Finding
		if len(finding) > findingKeyPrefixLen {
			finding = finding[:findingKeyPrefixLen]
		}
		parts = []string{
			string(domain.RecordAuditFinding),
			fmt.Sprintf("%d", rec.EntityID),
			fmt.Sprintf("%d", rec.PeriodID),
			finding,
		}
	default:
		amount := ""
		if rec.AllocatedAmount != nil {
			amount = fmt.Sprintf("%.2f", *rec.AllocatedAmount)
		}
		parts = []string{
			string(domain.RecordBudgetLine),
			fmt.Sprintf("%d", rec.EntityID),
			fmt.Sprintf("%d", rec.PeriodID),
			rec.Category,
			amount,
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// IsOutlier flags value when the historical sample is large enough and the
// z-score exceeds 3. Fewer than 3 samples never flags.
func IsOutlier(value float64, history []float64) bool {
	if len(history) < minOutlierSamples {
		return false
	}

	var sum float64
	for _, h := range history {
		sum += h
	}
	mean := sum / float64(len(history))

	var sq float64
	for _, h := range history {
		sq += (h - mean) * (h - mean)
	}
	stddev := math.Sqrt(sq / float64(len(history)))
	if stddev == 0 {
		return false
	}

	return math.Abs(value-mean)/stddev > outlierZScore
}
