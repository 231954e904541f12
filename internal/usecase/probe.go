package usecase

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"FiscalScanner/internal/config"
)

// ProbeResult is the reachability report for one configured target.
type ProbeResult struct {
	Domain      string
	Target      string
	URL         string
	Reachable   bool
	MarkerFound bool
	Latency     time.Duration
	Error       string
}

// Prober independently checks each source's HTTP reachability, the
// presence of its expected structural marker, and response latency. No
// extraction or validation runs; this is the operational early-warning
// check for upstream site changes.
type Prober struct {
	client *http.Client
	logger *slog.Logger
}

// NewProber wires an HTTP client; nil gets a 15s-timeout default.
func NewProber(client *http.Client, logger *slog.Logger) *Prober {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Prober{client: client, logger: logger}
}

// Check probes every target of every source and returns one result each.
func (p *Prober) Check(ctx context.Context, sources []config.SourceConfig) []ProbeResult {
	var results []ProbeResult
	for _, src := range sources {
		for _, target := range src.Targets {
			result := p.checkTarget(ctx, src.Domain, target)
			if p.logger != nil {
				p.logger.Info("probe result",
					"domain", result.Domain, "target", result.Target,
					"reachable", result.Reachable, "marker", result.MarkerFound,
					"latency", result.Latency)
			}
			results = append(results, result)
		}
	}
	return results
}

func (p *Prober) checkTarget(ctx context.Context, sourceDomain string, target config.TargetConfig) ProbeResult {
	result := ProbeResult{
		Domain: sourceDomain,
		Target: target.Name,
		URL:    target.URL,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	req.Header.Set("User-Agent", "FiscalScanner/1.0 (probe)")

	start := time.Now()
	resp, err := p.client.Do(req)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		result.Error = resp.Status
		return result
	}
	result.Reachable = true

	marker := target.Marker
	if marker == "" {
		marker = target.Table.RowSelector
	}
	if marker == "" {
		result.MarkerFound = true
		return result
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.MarkerFound = doc.Find(marker).Length() > 0

	return result
}
