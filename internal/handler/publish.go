package handler

import (
	"errors"
	"net/http"

	"github.com/aman-churiwal/marketplace-gateway/internal/models"
	"github.com/aman-churiwal/marketplace-gateway/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type PublishHandler struct {
	marketplace *service.MarketplaceService
	submissions *service.SubmissionService
}

func NewPublishHandler(marketplace *service.MarketplaceService, submissions *service.SubmissionService) *PublishHandler {
	return &PublishHandler{marketplace: marketplace, submissions: submissions}
}

// Publish serves POST /api/v1/publish. The handler owns the submission
// record for the attempt; the marketplace service itself never touches
// submission state.
func (h *PublishHandler) Publish(c *gin.Context) {
	var req models.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	submission, err := h.submissions.Track(ctx, req.BundlePath, req.Broker, c.GetString("email"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record submission"})
		return
	}
	h.submissions.Begin(ctx, submission.ID)

	result, err := h.marketplace.PublishListing(ctx, req)
	if err != nil {
		var licenseErr *service.LicenseError
		switch {
		case errors.As(err, &licenseErr):
			h.submissions.Reject(ctx, submission.ID, licenseErr.Error())
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":         "license validation failed",
				"submission_id": submission.ID,
				"validation":    licenseErr.Result,
			})
		case errors.Is(err, service.ErrNoBrokerAvailable):
			h.submissions.Fail(ctx, submission.ID, err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			h.submissions.Fail(ctx, submission.ID, err.Error())
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}

	// No license error means validation passed; record the approval
	// before the broker's verdict.
	h.submissions.Approve(ctx, submission.ID)
	h.submissions.Complete(ctx, submission.ID, result)

	status := http.StatusCreated
	if !result.Success {
		status = http.StatusOK // "not supported" is an expected outcome
	}

	c.JSON(status, gin.H{
		"submission_id": submission.ID,
		"result":        result,
	})
}

// GetSubmission serves GET /api/v1/submissions/:id.
func (h *PublishHandler) GetSubmission(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission id"})
		return
	}

	submission, err := h.submissions.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if submission == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
		return
	}

	c.JSON(http.StatusOK, submission)
}

// ListSubmissions serves GET /api/v1/submissions, optionally filtered by
// status.
func (h *PublishHandler) ListSubmissions(c *gin.Context) {
	submissions, err := h.submissions.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, submissions)
}
