package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aman-churiwal/marketplace-gateway/internal/broker"
	"github.com/aman-churiwal/marketplace-gateway/internal/cache"
	"github.com/aman-churiwal/marketplace-gateway/internal/models"
	"github.com/aman-churiwal/marketplace-gateway/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBroker struct {
	listings []models.Listing
	err      error
}

func (s *stubBroker) Name() string { return "stub" }

func (s *stubBroker) Listings(ctx context.Context, query models.ListingQuery) (*models.ListingPage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.ListingPage{Listings: s.listings, Total: len(s.listings), Page: 1, PageSize: query.PageSize, TotalPages: 1}, nil
}

func (s *stubBroker) FetchOne(ctx context.Context, id string) (*models.Listing, error) {
	for i := range s.listings {
		if s.listings[i].ID == id {
			return &s.listings[i], nil
		}
	}
	return nil, broker.ErrNotFound
}

func (s *stubBroker) Download(ctx context.Context, id, destDir string) *models.DownloadResult {
	return &models.DownloadResult{ListingID: id, Success: true}
}

func (s *stubBroker) Publish(ctx context.Context, req models.PublishRequest) (*models.PublishResult, error) {
	return &models.PublishResult{Success: true, ListingID: "p-1"}, nil
}

func (s *stubBroker) VerifySignature(listing *models.Listing) bool { return true }

func newTestRouter(b broker.Broker) *gin.Engine {
	gin.SetMode(gin.TestMode)

	c := cache.New(cache.Config{MaxSize: 100, DefaultTTL: time.Minute})
	svc := service.NewMarketplaceService(c, []broker.Broker{b}, time.Minute)
	h := NewListingsHandler(svc, time.Minute)

	r := gin.New()
	r.GET("/api/v1/listings", h.List)
	r.GET("/api/v1/listings/:id", h.Get)
	return r
}

func TestListSetsETagAndCacheControl(t *testing.T) {
	router := newTestRouter(&stubBroker{listings: []models.Listing{{ID: "1", Name: "one"}}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/listings", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("ETag"))
	assert.Equal(t, "max-age=60", w.Header().Get("Cache-Control"))

	var page models.ListingPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
}

func TestListConditionalGetReturns304(t *testing.T) {
	router := newTestRouter(&stubBroker{listings: []models.Listing{{ID: "1", Name: "one"}}})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v1/listings", nil))
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	second := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/listings", nil)
	req.Header.Set("If-None-Match", etag)
	router.ServeHTTP(second, req)

	assert.Equal(t, http.StatusNotModified, second.Code)
	assert.Equal(t, etag, second.Header().Get("ETag"))
	assert.Empty(t, second.Body.String(), "a 304 must not re-serialize the body")
}

func TestListTotalProviderFailure(t *testing.T) {
	router := newTestRouter(&stubBroker{err: broker.ErrUnreachable})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/listings", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGetListingNotFound(t *testing.T) {
	router := newTestRouter(&stubBroker{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/listings/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
