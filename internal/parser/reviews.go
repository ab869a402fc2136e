package parser

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/revloop/revloop/internal/metrics"
	"github.com/revloop/revloop/internal/notify"
	"github.com/revloop/revloop/internal/orchestrator"
	"github.com/revloop/revloop/internal/taxonomy"
)

var (
	datePattern = regexp.MustCompile(`[0-9]{1,2}/[0-9]{1,2}/[0-9]{4}`)
	lineBreaks  = regexp.MustCompile(`<br\s*/?>`)
)

// ParsedReview is one review scraped off a listing page.
type ParsedReview struct {
	EntityID      string
	EntityName    string
	EntityAddress string
	ReviewID      string
	ReviewDate    string
}

// ReviewListExtractor parses a review listing page into ReviewFacts.
type ReviewListExtractor struct {
	deps Deps
}

// NewReviewListExtractor constructs a ReviewListExtractor.
func NewReviewListExtractor(deps Deps) *ReviewListExtractor {
	return &ReviewListExtractor{deps: deps}
}

// Extract aligns the independently located element groups positionally and
// upserts one ReviewFact per review on the page.
func (x *ReviewListExtractor) Extract(ctx context.Context, url string, body []byte) error {
	userID, err := taxonomy.UserID(url)
	if err != nil {
		return &orchestrator.ExtractionError{URL: url, Reason: err.Error()}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return &orchestrator.ExtractionError{URL: url, Reason: fmt.Sprintf("parse html: %v", err)}
	}

	reviews, err := ParseReviews(doc)
	if err != nil {
		return &orchestrator.ExtractionError{URL: url, Reason: err.Error()}
	}

	now := x.deps.Clock.Now()
	for _, review := range reviews {
		fact := orchestrator.ReviewFact{
			UserID:        userID,
			EntityID:      review.EntityID,
			EntityName:    review.EntityName,
			EntityAddress: review.EntityAddress,
			ReviewID:      review.ReviewID,
			ReviewDate:    review.ReviewDate,
			Alive:         orchestrator.AliveUnknown,
			UpdatedAt:     now,
			ExpiresAt:     now.Add(x.deps.FactTTL),
		}
		if err := x.deps.Facts.UpsertReview(ctx, fact); err != nil {
			return fmt.Errorf("upsert review fact: %w", err)
		}
		metrics.ObserveFactUpsert("review")
		err := x.deps.publishFactChange(ctx, notify.FactChanged{
			UserID: userID,
			Kind:   notify.FactKindReview,
			Review: &fact,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ParseReviews locates the four element groups on a listing page and aligns
// them by position: the Nth element of each group belongs to the Nth review.
// The sweeper reuses this when it re-derives the live entity set.
func ParseReviews(doc *goquery.Document) ([]ParsedReview, error) {
	var entityIDs, entityNames []string
	doc.Find(".biz-name").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		parts := strings.Split(href, "/")
		entityIDs = append(entityIDs, parts[len(parts)-1])
		entityNames = append(entityNames, strings.TrimSpace(s.Text()))
	})

	var addresses []string
	doc.Find("address").Each(func(_ int, s *goquery.Selection) {
		addresses = append(addresses, sanitizeAddress(s))
	})

	var reviewIDs []string
	doc.Find(".review").Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr("data-review-id"); ok {
			reviewIDs = append(reviewIDs, id)
		}
	})

	// The site repeats a prior review's date inline under a "Previous
	// review" qualifier; those elements must not contribute a date.
	var dates []string
	var dateErr error
	doc.Find(".rating-qualifier").Each(func(_ int, s *goquery.Selection) {
		text := s.Text()
		if strings.Contains(text, "Previous review") {
			return
		}
		date := datePattern.FindString(text)
		if date == "" {
			dateErr = fmt.Errorf("no date in rating qualifier %q", strings.TrimSpace(text))
			return
		}
		dates = append(dates, date)
	})
	if dateErr != nil {
		return nil, dateErr
	}

	n := min(len(entityIDs), len(addresses), len(reviewIDs), len(dates))
	reviews := make([]ParsedReview, 0, n)
	for i := 0; i < n; i++ {
		reviews = append(reviews, ParsedReview{
			EntityID:      entityIDs[i],
			EntityName:    entityNames[i],
			EntityAddress: addresses[i],
			ReviewID:      reviewIDs[i],
			ReviewDate:    dates[i],
		})
	}
	return reviews, nil
}

// sanitizeAddress flattens an address element: embedded line breaks become
// spaces.
func sanitizeAddress(s *goquery.Selection) string {
	inner, err := s.Html()
	if err != nil {
		return strings.TrimSpace(s.Text())
	}
	return strings.TrimSpace(lineBreaks.ReplaceAllString(inner, " "))
}
