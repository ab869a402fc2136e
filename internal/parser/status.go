package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/revloop/revloop/internal/metrics"
	"github.com/revloop/revloop/internal/orchestrator"
	"github.com/revloop/revloop/internal/taxonomy"
)

// ReviewStatusExtractor determines whether a review is still visible on its
// entity's page and records the observation on the owning review fact.
type ReviewStatusExtractor struct {
	deps Deps
}

// NewReviewStatusExtractor constructs a ReviewStatusExtractor.
func NewReviewStatusExtractor(deps Deps) *ReviewStatusExtractor {
	return &ReviewStatusExtractor{deps: deps}
}

// Extract checks whether the review ID carried in the URL still appears as
// a literal substring of the rendered page. The owning user is not known a
// priori; it is resolved through the globally unique review ID, and zero or
// multiple owners is a referential defect that propagates unresolved.
func (x *ReviewStatusExtractor) Extract(ctx context.Context, url string, body []byte) error {
	cls, err := taxonomy.Classify(url)
	if err != nil {
		return err
	}
	if cls.Kind != orchestrator.KindReviewStatus {
		return &orchestrator.ExtractionError{URL: url, Reason: "not a review status url"}
	}
	reviewID, err := taxonomy.ReviewID(url)
	if err != nil {
		return &orchestrator.ExtractionError{URL: url, Reason: err.Error()}
	}

	alive := orchestrator.AliveNo
	if strings.Contains(string(body), reviewID) {
		alive = orchestrator.AliveYes
	}

	userID, err := x.deps.Facts.FindReviewOwner(ctx, reviewID)
	if err != nil {
		return err
	}
	if err := x.deps.Facts.UpdateReviewStatus(ctx, userID, cls.Discriminator, alive); err != nil {
		return fmt.Errorf("update review status: %w", err)
	}
	metrics.ObserveFactUpsert("review_status")
	return nil
}
