package extractor

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"

	"FiscalScanner/internal/config"
	"FiscalScanner/internal/domain"
)

// Strategy is one method of deriving records from a parsed document.
// Implementations are pure functions of (document, target spec) and must
// not share mutable state, so the chain can be reordered freely.
type Strategy interface {
	Name() string
	Extract(doc *goquery.Document, target config.TargetConfig) []domain.Record
}

// Chain tries a target's strategies in declared order; the first non-empty
// result wins. All strategies coming back empty is a legitimate outcome,
// logged as a warning, not an error.
type Chain struct {
	strategies map[string]Strategy
	logger     *slog.Logger
}

// NewChain registers the available strategies by name.
func NewChain(logger *slog.Logger, strategies ...Strategy) *Chain {
	byName := make(map[string]Strategy, len(strategies))
	for _, s := range strategies {
		byName[s.Name()] = s
	}
	return &Chain{strategies: byName, logger: logger}
}

// Extract parses the fetched content once and walks the fallback chain.
func (c *Chain) Extract(content domain.RawContent, target config.TargetConfig) ([]domain.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content.Body))
	if err != nil {
		return nil, fmt.Errorf("parse document for %s: %w", target.Name, err)
	}

	names := target.Strategies
	if len(names) == 0 {
		names = []string{StrategyTable, StrategyPath}
	}

	for _, name := range names {
		strategy, ok := c.strategies[name]
		if !ok {
			return nil, fmt.Errorf("target %s: strategy %s is not registered", target.Name, name)
		}

		records := strategy.Extract(doc, target)
		if len(records) > 0 {
			c.debug("strategy produced records", "target", target.Name, "strategy", name, "count", len(records))
			return records, nil
		}
		c.debug("strategy yielded nothing, falling through", "target", target.Name, "strategy", name)
	}

	c.warn("no strategy yielded records", "target", target.Name, "url", target.URL)
	return nil, nil
}

func (c *Chain) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Chain) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
