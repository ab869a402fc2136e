// Package discovery keeps each user's crawl target set consistent with the
// facts currently known about them.
package discovery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/revloop/revloop/internal/metrics"
	"github.com/revloop/revloop/internal/notify"
	"github.com/revloop/revloop/internal/orchestrator"
	"github.com/revloop/revloop/internal/taxonomy"
)

// Engine derives the desired crawl target set per user and upserts it into
// the catalog. Both the scheduled sweep and the reactive fact-change path
// run the same idempotent upserts, so concurrent firing is safe.
type Engine struct {
	catalog   orchestrator.Catalog
	clock     orchestrator.Clock
	targetTTL time.Duration
	logger    *zap.Logger
}

// New constructs an Engine.
func New(
	catalog orchestrator.Catalog,
	clock orchestrator.Clock,
	targetTTL time.Duration,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		catalog:   catalog,
		clock:     clock,
		targetTTL: targetTTL,
		logger:    logger,
	}
}

// SweepAll runs target derivation for every registered user. One user's
// failure never aborts the others; failures are aggregated into a single
// BatchError after every user has been attempted.
func (e *Engine) SweepAll(ctx context.Context) error {
	users, err := e.catalog.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	var errs []error
	for _, userID := range users {
		if err := e.SweepUser(ctx, userID); err != nil {
			e.logger.Error("user discovery failed",
				zap.String("user_id", userID), zap.Error(err))
			metrics.ObserveBatchFailure("discovery")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &orchestrator.BatchError{Op: "discovery sweep", Failed: len(errs), Errs: errs}
	}
	return nil
}

// SweepUser derives the full target set for one user: the metadata target
// always, listing targets when a metadata fact provides the review count,
// and one status target per known review fact. Every upsert re-bumps the
// target TTL.
func (e *Engine) SweepUser(ctx context.Context, userID string) error {
	if err := e.upsertMetadataTarget(ctx, userID); err != nil {
		return err
	}

	meta, ok, err := e.catalog.GetMetadata(ctx, userID)
	if err != nil {
		return fmt.Errorf("get metadata fact: %w", err)
	}
	if ok {
		if err := e.upsertReviewPageTargets(ctx, userID, meta.ReviewCount); err != nil {
			return err
		}
	}

	reviews, err := e.catalog.ListReviews(ctx, userID)
	if err != nil {
		return fmt.Errorf("list review facts: %w", err)
	}
	for _, review := range reviews {
		if err := e.upsertStatusTarget(ctx, review); err != nil {
			return err
		}
	}
	return nil
}

// HandleFactChange is the reactive trigger: a changed metadata fact expands
// the user's listing targets without waiting for the next scheduled sweep,
// and a changed review fact immediately creates its status target.
func (e *Engine) HandleFactChange(ctx context.Context, event notify.FactChanged) error {
	switch event.Kind {
	case notify.FactKindMetadata:
		if event.Metadata == nil {
			return fmt.Errorf("metadata event without payload for user %q", event.UserID)
		}
		return e.upsertReviewPageTargets(ctx, event.UserID, event.Metadata.ReviewCount)
	case notify.FactKindReview:
		if event.Review == nil {
			return fmt.Errorf("review event without payload for user %q", event.UserID)
		}
		return e.upsertStatusTarget(ctx, *event.Review)
	default:
		return fmt.Errorf("unknown fact kind %q", event.Kind)
	}
}

func (e *Engine) upsertTarget(ctx context.Context, target orchestrator.CrawlTarget) error {
	target.ExpiresAt = e.clock.Now().Add(e.targetTTL)
	if err := e.catalog.UpsertTarget(ctx, target); err != nil {
		return fmt.Errorf("upsert %s target: %w", target.Kind, err)
	}
	metrics.ObserveTargetUpsert(string(target.Kind))
	e.logger.Debug("target upserted",
		zap.String("user_id", target.UserID),
		zap.String("kind", string(target.Kind)),
		zap.String("discriminator", target.Discriminator),
		zap.String("url", target.URL),
	)
	return nil
}

func (e *Engine) upsertMetadataTarget(ctx context.Context, userID string) error {
	return e.upsertTarget(ctx, orchestrator.CrawlTarget{
		UserID: userID,
		Kind:   orchestrator.KindMetadata,
		URL:    taxonomy.MetadataURL(userID),
	})
}

func (e *Engine) upsertReviewPageTargets(ctx context.Context, userID string, reviewCount int) error {
	for offset := 0; offset < reviewCount; offset += orchestrator.PageSize {
		err := e.upsertTarget(ctx, orchestrator.CrawlTarget{
			UserID:        userID,
			Kind:          orchestrator.KindReviewPage,
			Discriminator: fmt.Sprintf("%d", offset),
			URL:           taxonomy.ReviewPageURL(userID, offset),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) upsertStatusTarget(ctx context.Context, review orchestrator.ReviewFact) error {
	return e.upsertTarget(ctx, orchestrator.CrawlTarget{
		UserID:        review.UserID,
		Kind:          orchestrator.KindReviewStatus,
		Discriminator: review.EntityID,
		URL:           taxonomy.ReviewStatusURL(review.EntityID, review.ReviewID),
	})
}
