package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"FiscalScanner/internal/config"
	"FiscalScanner/internal/domain"
)

const (
	StrategyTable = "table"
	StrategyPath  = "path"
)

// Field names shared by both strategy specs.
const (
	fieldEntityID        = "entity_id"
	fieldPeriodID        = "period_id"
	fieldCategory        = "category"
	fieldAllocatedAmount = "allocated_amount"
	fieldActualAmount    = "actual_amount"
	fieldSeverity        = "severity"
	fieldFinding         = "finding"
)

// TableStrategy extracts records via structural CSS selectors: one row
// selector, then a per-field selector evaluated inside each row.
type TableStrategy struct{}

func (TableStrategy) Name() string { return StrategyTable }

func (TableStrategy) Extract(doc *goquery.Document, target config.TargetConfig) []domain.Record {
	spec := target.Table
	if spec.RowSelector == "" || len(spec.Fields) == 0 {
		return nil
	}

	var records []domain.Record
	doc.Find(spec.RowSelector).Each(func(_ int, row *goquery.Selection) {
		fields := map[string]string{}
		for name, selector := range spec.Fields {
			fields[name] = strings.TrimSpace(row.Find(selector).First().Text())
		}
		if rec, ok := buildRecord(target, fields); ok {
			records = append(records, rec)
		}
	})

	return records
}

// PathStrategy is the positional fallback: rows located by selector, field
// values read from fixed cell indices. Survives pages that drop their CSS
// classes but keep column order.
type PathStrategy struct{}

func (PathStrategy) Name() string { return StrategyPath }

func (PathStrategy) Extract(doc *goquery.Document, target config.TargetConfig) []domain.Record {
	spec := target.Path
	if spec.RowSelector == "" || len(spec.Columns) == 0 {
		return nil
	}

	var records []domain.Record
	doc.Find(spec.RowSelector).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}

		fields := map[string]string{}
		for name, idx := range spec.Columns {
			fields[name] = strings.TrimSpace(cells.Eq(idx).Text())
		}
		if rec, ok := buildRecord(target, fields); ok {
			records = append(records, rec)
		}
	})

	return records
}

var amountCleaner = regexp.MustCompile(`[^\d.\-]`)

// buildRecord maps raw cell text to a typed record. Rows with no usable
// field at all are dropped; partially filled rows survive so the validator
// can score them.
func buildRecord(target config.TargetConfig, fields map[string]string) (domain.Record, bool) {
	rec := domain.Record{
		Type:      domain.RecordType(target.RecordType),
		SourceURL: target.URL,
	}
	if rec.Type == "" {
		rec.Type = domain.RecordBudgetLine
	}

	var populated bool
	for name, raw := range fields {
		if raw == "" {
			continue
		}
		populated = true

		switch name {
		case fieldEntityID:
			rec.EntityID, _ = strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		case fieldPeriodID:
			rec.PeriodID, _ = strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		case fieldCategory:
			rec.Category = raw
		case fieldAllocatedAmount:
			rec.AllocatedAmount = parseAmount(raw)
		case fieldActualAmount:
			rec.ActualAmount = parseAmount(raw)
		case fieldSeverity:
			rec.Severity = strings.ToLower(raw)
		case fieldFinding:
			rec.Finding = raw
		}
	}

	return rec, populated
}

// parseAmount strips currency symbols and thousands separators before
// parsing; unparseable values stay nil so the validator flags them missing.
func parseAmount(raw string) *float64 {
	cleaned := amountCleaner.ReplaceAllString(raw, "")
	if cleaned == "" || cleaned == "-" {
		return nil
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &value
}
