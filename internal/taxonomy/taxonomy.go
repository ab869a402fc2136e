// Package taxonomy classifies review-site URLs and builds them. Discovery
// derives catalog keys from URLs it constructs here, and the sweeper
// re-derives the same keys from URLs it reads back, so both directions live
// in one package to keep them deterministic by construction.
package taxonomy

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/revloop/revloop/internal/orchestrator"
)

const (
	metadataURLFormat   = "https://www.yelp.com/user_details?userid=%s"
	reviewPageURLFormat = "https://www.yelp.com/user_details_reviews_self?userid=%s&rec_pagestart=%d"
	statusURLFormat     = "https://www.yelp.com/biz/%s?hrid=%s"
)

var entityPathPattern = regexp.MustCompile(`/biz/([a-z0-9-]+)`)

// Classification is the (kind, discriminator) pair derived from a URL.
type Classification struct {
	Kind          orchestrator.TargetKind
	Discriminator string
}

// Classify maps a URL onto one of the three target kinds. The discriminator
// is derived from the URL alone, so classifying the same URL twice always
// yields the same catalog key.
func Classify(rawURL string) (Classification, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Classification{}, &orchestrator.UnrecognizedTargetError{URL: rawURL}
	}
	q := u.Query()

	switch {
	case strings.Contains(u.Path, "user_details_reviews_self"):
		offset := q.Get("rec_pagestart")
		if offset == "" {
			offset = "0"
		}
		if _, err := strconv.Atoi(offset); err != nil {
			return Classification{}, &orchestrator.UnrecognizedTargetError{URL: rawURL}
		}
		return Classification{Kind: orchestrator.KindReviewPage, Discriminator: offset}, nil

	case strings.Contains(u.Path, "user_details") && q.Get("userid") != "":
		return Classification{Kind: orchestrator.KindMetadata}, nil

	case strings.Contains(u.Path, "/biz/"):
		m := entityPathPattern.FindStringSubmatch(u.Path)
		if m == nil {
			return Classification{}, &orchestrator.UnrecognizedTargetError{URL: rawURL}
		}
		return Classification{Kind: orchestrator.KindReviewStatus, Discriminator: m[1]}, nil
	}
	return Classification{}, &orchestrator.UnrecognizedTargetError{URL: rawURL}
}

// MetadataURL builds the profile metadata URL for a user.
func MetadataURL(userID string) string {
	return fmt.Sprintf(metadataURLFormat, userID)
}

// ReviewPageURL builds a review listing URL at the given page offset.
func ReviewPageURL(userID string, offset int) string {
	return fmt.Sprintf(reviewPageURLFormat, userID, offset)
}

// ReviewPageURLs builds the complete listing URL set for a review count,
// one page per orchestrator.PageSize reviews.
func ReviewPageURLs(userID string, reviewCount int) []string {
	var urls []string
	for offset := 0; offset < reviewCount; offset += orchestrator.PageSize {
		urls = append(urls, ReviewPageURL(userID, offset))
	}
	return urls
}

// ReviewStatusURL builds the per-entity status URL carrying the review ID.
func ReviewStatusURL(entityID, reviewID string) string {
	return fmt.Sprintf(statusURLFormat, entityID, reviewID)
}

// UserID extracts the userid query parameter from a metadata or listing URL.
func UserID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	id := u.Query().Get("userid")
	if id == "" {
		return "", fmt.Errorf("no userid in url %q", rawURL)
	}
	return id, nil
}

// ReviewID extracts the hrid query parameter from a status URL.
func ReviewID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	id := u.Query().Get("hrid")
	if id == "" {
		return "", fmt.Errorf("no hrid in url %q", rawURL)
	}
	return id, nil
}

// PageKey derives the page-store object key for a URL. The encoding is
// reversible via PageURL.
func PageKey(rawURL string) string {
	return url.QueryEscape(rawURL)
}

// PageURL reverses PageKey.
func PageURL(key string) (string, error) {
	u, err := url.QueryUnescape(key)
	if err != nil {
		return "", fmt.Errorf("unescape page key: %w", err)
	}
	return u, nil
}
