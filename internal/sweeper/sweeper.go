// Package sweeper implements mark-and-sweep reconciliation: the live entity
// set is re-derived from the authoritative source each pass, and catalog
// rows for entities no longer present are garbage-collected.
package sweeper

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/revloop/revloop/internal/metrics"
	"github.com/revloop/revloop/internal/orchestrator"
	"github.com/revloop/revloop/internal/parser"
	"github.com/revloop/revloop/internal/taxonomy"
)

// Config controls sweeper fan-out.
type Config struct {
	Concurrency int
}

// Sweeper re-derives each user's live review set by crawling the listing
// pages fresh, bypassing the catalog, and deletes orphaned status targets
// and review facts. Liveness is recomputed from ground truth every pass,
// which makes the sweep self-healing against missed deletes elsewhere.
type Sweeper struct {
	catalog orchestrator.Catalog
	fetcher orchestrator.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Sweeper.
func New(
	catalog orchestrator.Catalog,
	fetcher orchestrator.Fetcher,
	cfg Config,
	logger *zap.Logger,
) *Sweeper {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{catalog: catalog, fetcher: fetcher, cfg: cfg, logger: logger}
}

// SweepAll reconciles every registered user. Per-user failures are isolated
// and aggregated; one user's fetch failure never blocks sweeping the rest.
func (s *Sweeper) SweepAll(ctx context.Context) ([]orchestrator.SweepReport, error) {
	users, err := s.catalog.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var (
		reports []orchestrator.SweepReport
		errs    []error
	)
	for _, userID := range users {
		report, err := s.SweepUser(ctx, userID)
		if err != nil {
			s.logger.Error("user sweep failed",
				zap.String("user_id", userID), zap.Error(err))
			metrics.ObserveBatchFailure("sweep")
			errs = append(errs, err)
			continue
		}
		reports = append(reports, report)
	}
	if len(errs) > 0 {
		return reports, &orchestrator.BatchError{Op: "reconciliation sweep", Failed: len(errs), Errs: errs}
	}
	return reports, nil
}

// SweepUser reconciles one user and reports how many rows were deleted per
// store.
func (s *Sweeper) SweepUser(ctx context.Context, userID string) (orchestrator.SweepReport, error) {
	start := time.Now()

	live, err := s.liveEntityIDs(ctx, userID)
	if err != nil {
		return orchestrator.SweepReport{}, fmt.Errorf("derive live entities for %q: %w", userID, err)
	}

	stored, err := s.catalog.ListReviews(ctx, userID)
	if err != nil {
		return orchestrator.SweepReport{}, fmt.Errorf("list stored reviews: %w", err)
	}

	report := orchestrator.SweepReport{UserID: userID}
	for _, fact := range stored {
		if _, ok := live[fact.EntityID]; ok {
			continue
		}
		if err := s.catalog.DeleteTarget(ctx, userID, orchestrator.KindReviewStatus, fact.EntityID); err != nil {
			return report, fmt.Errorf("delete orphan target %q: %w", fact.EntityID, err)
		}
		report.TargetsDeleted++
		if err := s.catalog.DeleteReview(ctx, userID, fact.EntityID); err != nil {
			return report, fmt.Errorf("delete orphan fact %q: %w", fact.EntityID, err)
		}
		report.FactsDeleted++
		s.logger.Info("orphaned review deleted",
			zap.String("user_id", userID), zap.String("entity_id", fact.EntityID))
	}

	metrics.ObserveSweepDeletions("targets", report.TargetsDeleted)
	metrics.ObserveSweepDeletions("facts", report.FactsDeleted)
	metrics.ObserveSweepDuration(time.Since(start))
	s.logger.Info("user sweep finished",
		zap.String("user_id", userID),
		zap.Int("live_entities", len(live)),
		zap.Int("targets_deleted", report.TargetsDeleted),
		zap.Int("facts_deleted", report.FactsDeleted),
	)
	return report, nil
}

// liveEntityIDs fetches the metadata page and all listing pages fresh and
// returns the authoritative entity set. Any fetch or parse failure aborts
// the user's sweep: deleting on partial authority would over-collect.
func (s *Sweeper) liveEntityIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	doc, err := s.fetchDocument(ctx, taxonomy.MetadataURL(userID))
	if err != nil {
		return nil, err
	}
	count, err := parser.ParseReviewCount(doc)
	if err != nil {
		return nil, fmt.Errorf("parse review count: %w", err)
	}

	urls := taxonomy.ReviewPageURLs(userID, count)
	pages := make([][]parser.ParsedReview, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, url := range urls {
		g.Go(func() error {
			doc, err := s.fetchDocument(gctx, url)
			if err != nil {
				return err
			}
			reviews, err := parser.ParseReviews(doc)
			if err != nil {
				return fmt.Errorf("parse %s: %w", url, err)
			}
			pages[i] = reviews
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	live := make(map[string]struct{})
	for _, reviews := range pages {
		for _, review := range reviews {
			live[review.EntityID] = struct{}{}
		}
	}
	return live, nil
}

func (s *Sweeper) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	result, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if result.StatusCode < 200 || result.StatusCode > 299 {
		return nil, &orchestrator.FetchError{URL: url, StatusCode: result.StatusCode}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return doc, nil
}
