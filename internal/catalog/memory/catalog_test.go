package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/revloop/revloop/internal/orchestrator"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestCatalog() (*Catalog, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return New(clock), clock
}

func TestRegisterAndListUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cat, _ := newTestCatalog()

	require.NoError(t, cat.RegisterUser(ctx, "u1"))
	require.NoError(t, cat.RegisterUser(ctx, "u2"))
	require.NoError(t, cat.RegisterUser(ctx, "u1"))

	users, err := cat.ListUsers(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"u1", "u2"}, users)

	require.Error(t, cat.RegisterUser(ctx, ""))
}

func TestUpsertTargetPreservesFetchState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cat, clock := newTestCatalog()

	target := orchestrator.CrawlTarget{
		UserID:        "u1",
		Kind:          orchestrator.KindReviewPage,
		Discriminator: "10",
		URL:           "https://www.yelp.com/user_details_reviews_self?userid=u1&rec_pagestart=10",
		ExpiresAt:     clock.now.Add(time.Hour),
	}
	require.NoError(t, cat.UpsertTarget(ctx, target))

	fetchedAt := clock.now.Add(time.Minute)
	require.NoError(t, cat.MarkFetched(ctx, "u1", orchestrator.KindReviewPage, "10", 200, "", "hash-1", fetchedAt))

	// Re-upserting the same key must not wipe the recorded fetch state.
	target.ExpiresAt = clock.now.Add(2 * time.Hour)
	require.NoError(t, cat.UpsertTarget(ctx, target))

	targets, err := cat.ListTargets(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.Equal(t, 200, targets[0].StatusCode)
	require.Equal(t, "hash-1", targets[0].ContentHash)
	require.True(t, targets[0].LastFetched.Equal(fetchedAt))
	require.True(t, targets[0].ExpiresAt.Equal(clock.now.Add(2*time.Hour)))
}

func TestTargetTTLExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cat, clock := newTestCatalog()

	require.NoError(t, cat.UpsertTarget(ctx, orchestrator.CrawlTarget{
		UserID:    "u1",
		Kind:      orchestrator.KindMetadata,
		URL:       "https://www.yelp.com/user_details?userid=u1",
		ExpiresAt: clock.now.Add(time.Hour),
	}))

	targets, err := cat.ListTargets(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, targets, 1)

	clock.now = clock.now.Add(2 * time.Hour)

	targets, err = cat.ListTargets(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, targets)

	all, err := cat.ListAllTargets(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestClearFetchError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cat, clock := newTestCatalog()

	require.NoError(t, cat.UpsertTarget(ctx, orchestrator.CrawlTarget{
		UserID:    "u1",
		Kind:      orchestrator.KindMetadata,
		URL:       "https://www.yelp.com/user_details?userid=u1",
		ExpiresAt: clock.now.Add(time.Hour),
	}))
	require.NoError(t, cat.MarkFetched(ctx, "u1", orchestrator.KindMetadata, "", 404, "fetch failed", "", clock.now))

	targets, err := cat.ListTargets(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "fetch failed", targets[0].LastError)

	require.NoError(t, cat.ClearFetchError(ctx, "u1", orchestrator.KindMetadata, ""))

	targets, err = cat.ListTargets(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, targets[0].LastError)
	require.Equal(t, 404, targets[0].StatusCode)
}

func TestDeregisterUserCascades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cat, clock := newTestCatalog()

	require.NoError(t, cat.RegisterUser(ctx, "u1"))
	require.NoError(t, cat.UpsertTarget(ctx, orchestrator.CrawlTarget{
		UserID: "u1", Kind: orchestrator.KindMetadata,
		URL:       "https://www.yelp.com/user_details?userid=u1",
		ExpiresAt: clock.now.Add(time.Hour),
	}))
	require.NoError(t, cat.UpsertMetadata(ctx, orchestrator.MetadataFact{UserID: "u1", ReviewCount: 3}))
	require.NoError(t, cat.UpsertReview(ctx, orchestrator.ReviewFact{UserID: "u1", EntityID: "e1", ReviewID: "r1"}))

	require.NoError(t, cat.DeregisterUser(ctx, "u1"))

	users, err := cat.ListUsers(ctx)
	require.NoError(t, err)
	require.Empty(t, users)

	targets, err := cat.ListTargets(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, targets)

	_, ok, err := cat.GetMetadata(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)

	reviews, err := cat.ListReviews(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, reviews)
}

func TestUpsertReviewPreservesObservedLiveness(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cat, _ := newTestCatalog()

	fact := orchestrator.ReviewFact{UserID: "u1", EntityID: "e1", ReviewID: "r1", Alive: orchestrator.AliveUnknown}
	require.NoError(t, cat.UpsertReview(ctx, fact))
	require.NoError(t, cat.UpdateReviewStatus(ctx, "u1", "e1", orchestrator.AliveYes))

	// A re-parse of the listing page carries no liveness observation and
	// must not regress the one recorded by the status check.
	require.NoError(t, cat.UpsertReview(ctx, fact))

	reviews, err := cat.ListReviews(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	require.Equal(t, orchestrator.AliveYes, reviews[0].Alive)
}

func TestFindReviewOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cat, _ := newTestCatalog()

	require.NoError(t, cat.UpsertReview(ctx, orchestrator.ReviewFact{UserID: "u1", EntityID: "e1", ReviewID: "r1"}))

	owner, err := cat.FindReviewOwner(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "u1", owner)

	var lookupErr *orchestrator.ReferentialLookupError
	_, err = cat.FindReviewOwner(ctx, "missing")
	require.ErrorAs(t, err, &lookupErr)
	require.Zero(t, lookupErr.Matches)

	// The same review ID under two users is a referential defect.
	require.NoError(t, cat.UpsertReview(ctx, orchestrator.ReviewFact{UserID: "u2", EntityID: "e9", ReviewID: "r1"}))
	_, err = cat.FindReviewOwner(ctx, "r1")
	require.ErrorAs(t, err, &lookupErr)
	require.Equal(t, 2, lookupErr.Matches)
}

func TestMetadataTTLExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cat, clock := newTestCatalog()

	require.NoError(t, cat.UpsertMetadata(ctx, orchestrator.MetadataFact{
		UserID:      "u1",
		ReviewCount: 7,
		ExpiresAt:   clock.now.Add(time.Hour),
	}))

	_, ok, err := cat.GetMetadata(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)

	clock.now = clock.now.Add(90 * time.Minute)

	_, ok, err = cat.GetMetadata(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)
}
