package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	catalogmem "github.com/revloop/revloop/internal/catalog/memory"
	"github.com/revloop/revloop/internal/notify"
	"github.com/revloop/revloop/internal/orchestrator"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestEngine() (*Engine, *catalogmem.Catalog, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	catalog := catalogmem.New(clock)
	return New(catalog, clock, time.Hour, zap.NewNop()), catalog, clock
}

func targetKeys(t *testing.T, catalog *catalogmem.Catalog, userID string) map[string]orchestrator.CrawlTarget {
	t.Helper()
	targets, err := catalog.ListTargets(context.Background(), userID)
	require.NoError(t, err)
	byKey := make(map[string]orchestrator.CrawlTarget, len(targets))
	for _, target := range targets {
		byKey[target.Key()] = target
	}
	return byKey
}

func TestSweepUserSeedsMetadataTargetOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, catalog, _ := newTestEngine()

	require.NoError(t, catalog.RegisterUser(ctx, "u1"))
	require.NoError(t, engine.SweepUser(ctx, "u1"))

	byKey := targetKeys(t, catalog, "u1")
	require.Len(t, byKey, 1)
	require.Contains(t, byKey, "metadata")
	require.Equal(t, "https://www.yelp.com/user_details?userid=u1", byKey["metadata"].URL)
}

func TestSweepUserExpandsFromFacts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, catalog, clock := newTestEngine()

	require.NoError(t, catalog.RegisterUser(ctx, "u1"))
	require.NoError(t, catalog.UpsertMetadata(ctx, orchestrator.MetadataFact{
		UserID:      "u1",
		ReviewCount: 24,
		ExpiresAt:   clock.now.Add(time.Hour),
	}))
	require.NoError(t, catalog.UpsertReview(ctx, orchestrator.ReviewFact{
		UserID:    "u1",
		EntityID:  "good-tacos",
		ReviewID:  "r1",
		ExpiresAt: clock.now.Add(time.Hour),
	}))

	require.NoError(t, engine.SweepUser(ctx, "u1"))

	byKey := targetKeys(t, catalog, "u1")
	// 1 metadata + 3 listing pages for 24 reviews + 1 status target.
	require.Len(t, byKey, 5)
	require.Contains(t, byKey, "metadata")
	require.Contains(t, byKey, "review_page#0")
	require.Contains(t, byKey, "review_page#10")
	require.Contains(t, byKey, "review_page#20")
	require.Contains(t, byKey, "review_status#good-tacos")
	require.Equal(t, "https://www.yelp.com/biz/good-tacos?hrid=r1", byKey["review_status#good-tacos"].URL)
}

func TestSweepUserPageBoundary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, catalog, clock := newTestEngine()

	require.NoError(t, catalog.RegisterUser(ctx, "u1"))
	require.NoError(t, catalog.UpsertMetadata(ctx, orchestrator.MetadataFact{
		UserID:      "u1",
		ReviewCount: 20,
		ExpiresAt:   clock.now.Add(time.Hour),
	}))

	require.NoError(t, engine.SweepUser(ctx, "u1"))

	byKey := targetKeys(t, catalog, "u1")
	// An exact multiple of the page size must not create a trailing
	// empty page.
	require.Len(t, byKey, 3)
	require.NotContains(t, byKey, "review_page#20")
}

func TestSweepUserIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, catalog, clock := newTestEngine()

	require.NoError(t, catalog.RegisterUser(ctx, "u1"))
	require.NoError(t, catalog.UpsertMetadata(ctx, orchestrator.MetadataFact{
		UserID:      "u1",
		ReviewCount: 15,
		ExpiresAt:   clock.now.Add(time.Hour),
	}))

	require.NoError(t, engine.SweepUser(ctx, "u1"))
	first := targetKeys(t, catalog, "u1")

	require.NoError(t, engine.SweepUser(ctx, "u1"))
	second := targetKeys(t, catalog, "u1")

	require.Equal(t, len(first), len(second))
	for key := range first {
		require.Contains(t, second, key)
	}
}

func TestSweepUserRefreshesTargetTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, catalog, clock := newTestEngine()

	require.NoError(t, catalog.RegisterUser(ctx, "u1"))
	require.NoError(t, engine.SweepUser(ctx, "u1"))

	clock.now = clock.now.Add(30 * time.Minute)
	require.NoError(t, engine.SweepUser(ctx, "u1"))

	byKey := targetKeys(t, catalog, "u1")
	require.True(t, byKey["metadata"].ExpiresAt.Equal(clock.now.Add(time.Hour)))
}

func TestSweepAllIsolatesUserFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, catalog, _ := newTestEngine()

	require.NoError(t, catalog.RegisterUser(ctx, "u1"))
	require.NoError(t, catalog.RegisterUser(ctx, "u2"))

	require.NoError(t, engine.SweepAll(ctx))

	for _, userID := range []string{"u1", "u2"} {
		byKey := targetKeys(t, catalog, userID)
		require.Contains(t, byKey, "metadata")
	}
}

func TestHandleFactChange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, catalog, _ := newTestEngine()

	require.NoError(t, catalog.RegisterUser(ctx, "u1"))

	err := engine.HandleFactChange(ctx, notify.FactChanged{
		UserID:   "u1",
		Kind:     notify.FactKindMetadata,
		Metadata: &orchestrator.MetadataFact{UserID: "u1", ReviewCount: 12},
	})
	require.NoError(t, err)

	byKey := targetKeys(t, catalog, "u1")
	require.Contains(t, byKey, "review_page#0")
	require.Contains(t, byKey, "review_page#10")

	err = engine.HandleFactChange(ctx, notify.FactChanged{
		UserID: "u1",
		Kind:   notify.FactKindReview,
		Review: &orchestrator.ReviewFact{UserID: "u1", EntityID: "nice-pho", ReviewID: "r7"},
	})
	require.NoError(t, err)

	byKey = targetKeys(t, catalog, "u1")
	require.Contains(t, byKey, "review_status#nice-pho")
}

func TestHandleFactChangeRejectsMalformedEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, _, _ := newTestEngine()

	require.Error(t, engine.HandleFactChange(ctx, notify.FactChanged{UserID: "u1", Kind: notify.FactKindMetadata}))
	require.Error(t, engine.HandleFactChange(ctx, notify.FactChanged{UserID: "u1", Kind: notify.FactKindReview}))
	require.Error(t, engine.HandleFactChange(ctx, notify.FactChanged{UserID: "u1", Kind: "bogus"}))
}
