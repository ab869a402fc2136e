package orchestrator

import (
	"context"
	"time"
)

// UserRegistry tracks which users the engine crawls for.
type UserRegistry interface {
	RegisterUser(ctx context.Context, userID string) error
	DeregisterUser(ctx context.Context, userID string) error
	ListUsers(ctx context.Context) ([]string, error)
}

// TargetStore persists crawl targets keyed by (user, kind, discriminator).
type TargetStore interface {
	// UpsertTarget creates or refreshes a target. Only URL and ExpiresAt are
	// written; fetch-state fields on an existing row are preserved.
	UpsertTarget(ctx context.Context, target CrawlTarget) error
	// MarkFetched records the outcome of one fetch attempt.
	MarkFetched(ctx context.Context, userID string, kind TargetKind, discriminator string, statusCode int, fetchErr string, contentHash string, at time.Time) error
	// ClearFetchError resets a target's error state so it re-enters
	// automatic batch selection.
	ClearFetchError(ctx context.Context, userID string, kind TargetKind, discriminator string) error
	ListTargets(ctx context.Context, userID string) ([]CrawlTarget, error)
	ListAllTargets(ctx context.Context) ([]CrawlTarget, error)
	DeleteTarget(ctx context.Context, userID string, kind TargetKind, discriminator string) error
}

// FactStore persists extracted facts.
type FactStore interface {
	UpsertMetadata(ctx context.Context, fact MetadataFact) error
	GetMetadata(ctx context.Context, userID string) (MetadataFact, bool, error)
	UpsertReview(ctx context.Context, fact ReviewFact) error
	UpdateReviewStatus(ctx context.Context, userID, entityID string, alive AliveStatus) error
	ListReviews(ctx context.Context, userID string) ([]ReviewFact, error)
	DeleteReview(ctx context.Context, userID, entityID string) error
	// FindReviewOwner maps a globally unique review ID to its owning user.
	// Zero or several owners is a ReferentialLookupError.
	FindReviewOwner(ctx context.Context, reviewID string) (string, error)
}

// Catalog is the full catalog store surface. Stores implement all three
// facets over one backend so deregistration can cascade.
type Catalog interface {
	UserRegistry
	TargetStore
	FactStore
}

// PageStore holds raw fetched pages keyed by their source URL.
type PageStore interface {
	PutPage(ctx context.Context, url string, body []byte) (string, error)
	GetPage(ctx context.Context, url string) ([]byte, error)
}

// FetchResult is what a Fetcher returns for one GET.
type FetchResult struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Fetcher performs a single HTTP GET.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// Publisher delivers change notifications at least once.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for change detection on raw pages.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces notification event IDs.
type IDGenerator interface {
	NewID() (string, error)
}
