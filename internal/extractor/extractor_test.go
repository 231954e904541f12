package extractor

import (
	"testing"
	"time"

	"FiscalScanner/internal/config"
	"FiscalScanner/internal/domain"
)

const budgetTableHTML = `
<html><body>
<table id="budget">
  <tr class="line">
    <td class="entity">12</td>
    <td class="period">4</td>
    <td class="cat">Health Services</td>
    <td class="alloc">KES 1,500,000.00</td>
    <td class="actual">1,200,000</td>
  </tr>
  <tr class="line">
    <td class="entity">12</td>
    <td class="period">4</td>
    <td class="cat">Education</td>
    <td class="alloc">750,000</td>
    <td class="actual"></td>
  </tr>
</table>
</body></html>`

func budgetTarget() config.TargetConfig {
	return config.TargetConfig{
		Name:       "county-budget",
		URL:        "https://treasury.example.gov/budget",
		RecordType: string(domain.RecordBudgetLine),
		Strategies: []string{StrategyTable, StrategyPath},
		Table: config.TableSpec{
			RowSelector: "table#budget tr.line",
			Fields: map[string]string{
				"entity_id":        "td.entity",
				"period_id":        "td.period",
				"category":         "td.cat",
				"allocated_amount": "td.alloc",
				"actual_amount":    "td.actual",
			},
		},
		Path: config.PathSpec{
			RowSelector: "table tr",
			Columns: map[string]int{
				"entity_id":        0,
				"period_id":        1,
				"category":         2,
				"allocated_amount": 3,
			},
		},
	}
}

func content(html string) domain.RawContent {
	return domain.RawContent{Body: []byte(html), ContentType: "text/html", FetchedAt: time.Now()}
}

func TestTableStrategyExtractsRecords(t *testing.T) {
	t.Parallel()

	chain := NewChain(nil, TableStrategy{}, PathStrategy{})
	records, err := chain.Extract(content(budgetTableHTML), budgetTarget())
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.EntityID != 12 || first.PeriodID != 4 {
		t.Fatalf("unexpected ids: %+v", first)
	}
	if first.Category != "Health Services" {
		t.Fatalf("unexpected category: %s", first.Category)
	}
	if first.AllocatedAmount == nil || *first.AllocatedAmount != 1_500_000 {
		t.Fatalf("currency symbols and separators should be stripped: %+v", first.AllocatedAmount)
	}
	if first.ActualAmount == nil || *first.ActualAmount != 1_200_000 {
		t.Fatalf("unexpected actual amount: %+v", first.ActualAmount)
	}

	if records[1].ActualAmount != nil {
		t.Fatal("empty cell must map to a nil amount")
	}
}

func TestChainFallsThroughToPathStrategy(t *testing.T) {
	t.Parallel()

	// no element matches the table spec's class selectors, only positions work
	html := `
	<html><body><table>
	  <tr><td>7</td><td>2</td><td>Water</td><td>90,000</td></tr>
	</table></body></html>`

	chain := NewChain(nil, TableStrategy{}, PathStrategy{})
	records, err := chain.Extract(content(html), budgetTarget())
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("expected the positional fallback to fire, got %d records", len(records))
	}
	rec := records[0]
	if rec.EntityID != 7 || rec.Category != "Water" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.AllocatedAmount == nil || *rec.AllocatedAmount != 90_000 {
		t.Fatalf("unexpected amount: %+v", rec.AllocatedAmount)
	}
}

func TestChainEmptyResultIsNotAnError(t *testing.T) {
	t.Parallel()

	chain := NewChain(nil, TableStrategy{}, PathStrategy{})
	records, err := chain.Extract(content("<html><body><p>maintenance</p></body></html>"), budgetTarget())
	if err != nil {
		t.Fatalf("zero matches must not error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestChainUnknownStrategy(t *testing.T) {
	t.Parallel()

	target := budgetTarget()
	target.Strategies = []string{"llm-vision"}

	chain := NewChain(nil, TableStrategy{}, PathStrategy{})
	if _, err := chain.Extract(content(budgetTableHTML), target); err == nil {
		t.Fatal("expected error for unregistered strategy")
	}
}

func TestAuditFindingExtraction(t *testing.T) {
	t.Parallel()

	html := `
	<html><body>
	<div class="finding">
	  <span class="entity">3</span><span class="period">9</span>
	  <span class="sev">HIGH</span>
	  <p class="text">Procurement records missing for Q2.</p>
	</div>
	</body></html>`

	target := config.TargetConfig{
		Name:       "audit-findings",
		URL:        "https://oag.example.gov/findings",
		RecordType: string(domain.RecordAuditFinding),
		Strategies: []string{StrategyTable},
		Table: config.TableSpec{
			RowSelector: "div.finding",
			Fields: map[string]string{
				"entity_id": "span.entity",
				"period_id": "span.period",
				"severity":  "span.sev",
				"finding":   "p.text",
			},
		},
	}

	chain := NewChain(nil, TableStrategy{})
	records, err := chain.Extract(content(html), target)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if rec.Type != domain.RecordAuditFinding {
		t.Fatalf("unexpected type: %s", rec.Type)
	}
	if rec.Severity != "high" {
		t.Fatalf("severity should be lowercased, got %q", rec.Severity)
	}
	if rec.Finding != "Procurement records missing for Q2." {
		t.Fatalf("unexpected finding: %q", rec.Finding)
	}
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want *float64
	}{
		{"1,234.56", ptr(1234.56)},
		{"KES 500", ptr(500)},
		{"-750", ptr(-750)},
		{"n/a", nil},
		{"", nil},
	}

	for _, tc := range cases {
		got := parseAmount(tc.in)
		switch {
		case tc.want == nil && got != nil:
			t.Fatalf("%q: expected nil, got %v", tc.in, *got)
		case tc.want != nil && (got == nil || *got != *tc.want):
			t.Fatalf("%q: expected %v, got %v", tc.in, *tc.want, got)
		}
	}
}

func ptr(v float64) *float64 { return &v }
