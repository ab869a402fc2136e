// Package parser routes fetched pages to type-specific extractors and
// upserts the resulting facts.
package parser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/revloop/revloop/internal/metrics"
	"github.com/revloop/revloop/internal/orchestrator"
	"github.com/revloop/revloop/internal/taxonomy"
)

// Extractor turns one stored page into catalog writes.
type Extractor interface {
	Extract(ctx context.Context, url string, body []byte) error
}

// Dispatcher classifies page URLs and hands the page content to the
// matching extractor. Re-invocation for the same page version is safe: all
// extractors upsert.
type Dispatcher struct {
	pages      orchestrator.PageStore
	extractors map[orchestrator.TargetKind]Extractor
	logger     *zap.Logger
}

// NewDispatcher wires a Dispatcher with the standard extractor set.
func NewDispatcher(
	pages orchestrator.PageStore,
	metadata *MetadataExtractor,
	reviews *ReviewListExtractor,
	status *ReviewStatusExtractor,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		pages: pages,
		extractors: map[orchestrator.TargetKind]Extractor{
			orchestrator.KindMetadata:     metadata,
			orchestrator.KindReviewPage:   reviews,
			orchestrator.KindReviewStatus: status,
		},
		logger: logger,
	}
}

// ProcessPage loads the stored page for a URL and runs the extractor its
// classification selects.
func (d *Dispatcher) ProcessPage(ctx context.Context, url string) error {
	cls, err := taxonomy.Classify(url)
	if err != nil {
		return err
	}
	extractor, ok := d.extractors[cls.Kind]
	if !ok {
		return fmt.Errorf("no extractor for kind %q", cls.Kind)
	}
	body, err := d.pages.GetPage(ctx, url)
	if err != nil {
		return fmt.Errorf("load page: %w", err)
	}
	if err := extractor.Extract(ctx, url, body); err != nil {
		return err
	}
	d.logger.Debug("page parsed",
		zap.String("url", url), zap.String("kind", string(cls.Kind)))
	return nil
}

// ProcessBatch runs ProcessPage for every URL, isolating per-item failures
// and aggregating them after every item has been attempted.
func (d *Dispatcher) ProcessBatch(ctx context.Context, urls []string) error {
	var errs []error
	for _, url := range urls {
		if err := d.ProcessPage(ctx, url); err != nil {
			d.logger.Error("parse failed", zap.String("url", url), zap.Error(err))
			metrics.ObserveBatchFailure("parse")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &orchestrator.BatchError{Op: "parse batch", Failed: len(errs), Errs: errs}
	}
	return nil
}
