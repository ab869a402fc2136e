package parser

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/revloop/revloop/internal/metrics"
	"github.com/revloop/revloop/internal/notify"
	"github.com/revloop/revloop/internal/orchestrator"
	"github.com/revloop/revloop/internal/taxonomy"
)

var leadingDigits = regexp.MustCompile(`[0-9]+`)

// MetadataExtractor parses a profile metadata page into a MetadataFact.
type MetadataExtractor struct {
	deps Deps
}

// NewMetadataExtractor constructs a MetadataExtractor.
func NewMetadataExtractor(deps Deps) *MetadataExtractor {
	return &MetadataExtractor{deps: deps}
}

// Extract parses display name, city, and review count and upserts the fact.
func (x *MetadataExtractor) Extract(ctx context.Context, url string, body []byte) error {
	userID, err := taxonomy.UserID(url)
	if err != nil {
		return &orchestrator.ExtractionError{URL: url, Reason: err.Error()}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return &orchestrator.ExtractionError{URL: url, Reason: fmt.Sprintf("parse html: %v", err)}
	}

	name := strings.TrimSpace(doc.Find(".user-profile_info h1").First().Text())
	if name == "" {
		return &orchestrator.ExtractionError{URL: url, Reason: "no profile name element"}
	}
	city := strings.TrimSpace(doc.Find(".user-location").First().Text())

	count, err := ParseReviewCount(doc)
	if err != nil {
		return &orchestrator.ExtractionError{URL: url, Reason: err.Error()}
	}

	now := x.deps.Clock.Now()
	fact := orchestrator.MetadataFact{
		UserID:      userID,
		DisplayName: name,
		City:        city,
		ReviewCount: count,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(x.deps.FactTTL),
	}
	if err := x.deps.Facts.UpsertMetadata(ctx, fact); err != nil {
		return fmt.Errorf("upsert metadata fact: %w", err)
	}
	metrics.ObserveFactUpsert("metadata")

	return x.deps.publishFactChange(ctx, notify.FactChanged{
		UserID:   userID,
		Kind:     notify.FactKindMetadata,
		Metadata: &fact,
	})
}

// ParseReviewCount reads the leading digits of the review-count element.
// The sweeper also calls this directly when it re-derives the live page set
// from a fresh fetch.
func ParseReviewCount(doc *goquery.Document) (int, error) {
	text := doc.Find(".review-count").First().Text()
	digits := leadingDigits.FindString(text)
	if digits == "" {
		return 0, fmt.Errorf("no review count in %q", strings.TrimSpace(text))
	}
	count, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("parse review count: %w", err)
	}
	return count, nil
}
