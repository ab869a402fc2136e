package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	catalogmem "github.com/revloop/revloop/internal/catalog/memory"
	"github.com/revloop/revloop/internal/config"
	"github.com/revloop/revloop/internal/orchestrator"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestServer() (*Server, *catalogmem.Catalog, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	catalog := catalogmem.New(clock)
	srv := New(catalog, config.ServerConfig{Port: 0}, zap.NewNop())
	return srv, catalog, clock
}

func doRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer()

	rec := doRequest(t, srv, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer()

	rec := doRequest(t, srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUserLifecycle(t *testing.T) {
	t.Parallel()
	srv, catalog, _ := newTestServer()
	ctx := context.Background()

	rec := doRequest(t, srv, http.MethodPost, "/v1/users/u1")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/v1/users")
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		Users []string `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Equal(t, []string{"u1"}, listResp.Users)

	require.NoError(t, catalog.UpsertReview(ctx, orchestrator.ReviewFact{
		UserID: "u1", EntityID: "e1", ReviewID: "r1",
	}))

	rec = doRequest(t, srv, http.MethodDelete, "/v1/users/u1")
	require.Equal(t, http.StatusOK, rec.Code)

	users, err := catalog.ListUsers(ctx)
	require.NoError(t, err)
	require.Empty(t, users)

	reviews, err := catalog.ListReviews(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, reviews)
}

func TestGetFacts(t *testing.T) {
	t.Parallel()
	srv, catalog, clock := newTestServer()
	ctx := context.Background()

	require.NoError(t, catalog.UpsertMetadata(ctx, orchestrator.MetadataFact{
		UserID:      "u1",
		DisplayName: "Jane D.",
		ReviewCount: 5,
		ExpiresAt:   clock.now.Add(time.Hour),
	}))
	require.NoError(t, catalog.UpsertReview(ctx, orchestrator.ReviewFact{
		UserID:    "u1",
		EntityID:  "e1",
		ReviewID:  "r1",
		Alive:     orchestrator.AliveYes,
		ExpiresAt: clock.now.Add(time.Hour),
	}))

	rec := doRequest(t, srv, http.MethodGet, "/v1/users/u1/facts")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		UserID   string                     `json:"user_id"`
		Metadata *orchestrator.MetadataFact `json:"metadata"`
		Reviews  []orchestrator.ReviewFact  `json:"reviews"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "u1", resp.UserID)
	require.NotNil(t, resp.Metadata)
	require.Equal(t, "Jane D.", resp.Metadata.DisplayName)
	require.Len(t, resp.Reviews, 1)
	require.Equal(t, orchestrator.AliveYes, resp.Reviews[0].Alive)
}

func TestGetFactsUnknownUserReturnsEmpty(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer()

	rec := doRequest(t, srv, http.MethodGet, "/v1/users/nobody/facts")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Metadata *orchestrator.MetadataFact `json:"metadata"`
		Reviews  []orchestrator.ReviewFact  `json:"reviews"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Metadata)
	require.Empty(t, resp.Reviews)
}

func TestListTargets(t *testing.T) {
	t.Parallel()
	srv, catalog, clock := newTestServer()

	require.NoError(t, catalog.UpsertTarget(context.Background(), orchestrator.CrawlTarget{
		UserID:    "u1",
		Kind:      orchestrator.KindMetadata,
		URL:       "https://www.yelp.com/user_details?userid=u1",
		ExpiresAt: clock.now.Add(time.Hour),
	}))

	rec := doRequest(t, srv, http.MethodGet, "/v1/users/u1/targets")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Targets []orchestrator.CrawlTarget `json:"targets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Targets, 1)
	require.Equal(t, orchestrator.KindMetadata, resp.Targets[0].Kind)
}

func TestInvalidUserIDRejected(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer()

	rec := doRequest(t, srv, http.MethodGet, "/v1/users/bad%20id/facts")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
