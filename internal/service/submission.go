package service

import (
	"context"
	"strings"

	"github.com/aman-churiwal/marketplace-gateway/internal/models"
	"github.com/google/uuid"
)

// SubmissionStore is the persistence boundary for submissions,
// satisfied by repository.SubmissionRepository.
type SubmissionStore interface {
	Create(ctx context.Context, submission *models.Submission) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Submission, error)
	List(ctx context.Context, status string) ([]models.Submission, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status, message string) error
	MarkPublished(ctx context.Context, id uuid.UUID, listingID string) error
}

// SubmissionService records publish attempts and walks them through the
// pending -> validating -> approved/rejected -> published/failed
// lifecycle. It sits outside the aggregation core: MarketplaceService
// never reads or writes submission state.
type SubmissionService struct {
	repo SubmissionStore
}

func NewSubmissionService(repo SubmissionStore) *SubmissionService {
	return &SubmissionService{repo: repo}
}

// Track creates a pending submission for a publish attempt.
func (s *SubmissionService) Track(ctx context.Context, bundlePath, broker, submittedBy string) (*models.Submission, error) {
	submission := &models.Submission{
		BundlePath:  bundlePath,
		Broker:      broker,
		Status:      models.SubmissionPending,
		SubmittedBy: submittedBy,
	}

	if err := s.repo.Create(ctx, submission); err != nil {
		return nil, err
	}

	return submission, nil
}

// Begin marks the submission as validating.
func (s *SubmissionService) Begin(ctx context.Context, id uuid.UUID) error {
	return s.repo.UpdateStatus(ctx, id, models.SubmissionValidating, "")
}

// Approve marks the submission as approved once license validation has
// passed, before the broker's outcome is known.
func (s *SubmissionService) Approve(ctx context.Context, id uuid.UUID) error {
	return s.repo.UpdateStatus(ctx, id, models.SubmissionApproved, "")
}

// Complete records the broker's publish outcome.
func (s *SubmissionService) Complete(ctx context.Context, id uuid.UUID, result *models.PublishResult) error {
	if result.Success {
		return s.repo.MarkPublished(ctx, id, result.ListingID)
	}

	message := result.Message
	if len(result.Errors) > 0 {
		message = strings.Join(result.Errors, "; ")
	}

	return s.repo.UpdateStatus(ctx, id, models.SubmissionFailed, message)
}

// Fail marks the submission as failed with a reason.
func (s *SubmissionService) Fail(ctx context.Context, id uuid.UUID, message string) error {
	return s.repo.UpdateStatus(ctx, id, models.SubmissionFailed, message)
}

// Reject marks the submission as rejected, e.g. after a failed license
// validation.
func (s *SubmissionService) Reject(ctx context.Context, id uuid.UUID, message string) error {
	return s.repo.UpdateStatus(ctx, id, models.SubmissionRejected, message)
}

func (s *SubmissionService) Get(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *SubmissionService) List(ctx context.Context, status string) ([]models.Submission, error) {
	return s.repo.List(ctx, status)
}
