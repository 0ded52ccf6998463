package handler

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aman-churiwal/marketplace-gateway/internal/models"
	"github.com/aman-churiwal/marketplace-gateway/internal/service"
	"github.com/gin-gonic/gin"
)

type ListingsHandler struct {
	service  *service.MarketplaceService
	cacheTTL time.Duration
}

func NewListingsHandler(svc *service.MarketplaceService, cacheTTL time.Duration) *ListingsHandler {
	return &ListingsHandler{service: svc, cacheTTL: cacheTTL}
}

// List serves GET /api/v1/listings with conditional-GET semantics: a
// matching If-None-Match yields a 304 with the ETag and no body.
func (h *ListingsHandler) List(c *gin.Context) {
	var query models.ListingQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ifNoneMatch := c.GetHeader("If-None-Match")

	page, etag, notModified, err := h.service.GetListings(c.Request.Context(), query, ifNoneMatch)
	if err != nil {
		if errors.Is(err, service.ErrAllBrokersFailed) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("ETag", etag)

	if notModified {
		c.Status(http.StatusNotModified)
		return
	}

	c.Header("Cache-Control", fmt.Sprintf("max-age=%d", int(h.cacheTTL.Seconds())))
	c.JSON(http.StatusOK, page)
}

// Get serves GET /api/v1/listings/:id. Uncached: the lookup hits the
// brokers directly.
func (h *ListingsHandler) Get(c *gin.Context) {
	id := c.Param("id")

	listing, err := h.service.GetListing(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrListingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, listing)
}

// Download serves POST /api/v1/listings/:id/download.
func (h *ListingsHandler) Download(c *gin.Context) {
	id := c.Param("id")

	var req struct {
		DestDir string `json:"dest_dir"`
	}
	// Body is optional; an empty destination falls back to the temp dir.
	c.ShouldBindJSON(&req)
	if req.DestDir == "" {
		req.DestDir = os.TempDir()
	}

	result, err := h.service.DownloadListing(c.Request.Context(), id, req.DestDir)
	if err != nil {
		if errors.Is(err, service.ErrListingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}

	c.JSON(status, result)
}
