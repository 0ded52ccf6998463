package service

import (
	"context"
	"testing"

	"github.com/aman-churiwal/marketplace-gateway/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSubmissionStore records every status transition in order.
type fakeSubmissionStore struct {
	submission *models.Submission
	statuses   []string
	messages   map[string]string
	listingID  string
}

func newFakeSubmissionStore() *fakeSubmissionStore {
	return &fakeSubmissionStore{messages: map[string]string{}}
}

func (f *fakeSubmissionStore) Create(ctx context.Context, s *models.Submission) error {
	s.ID = uuid.New()
	f.submission = s
	f.statuses = append(f.statuses, s.Status)
	return nil
}

func (f *fakeSubmissionStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	return f.submission, nil
}

func (f *fakeSubmissionStore) List(ctx context.Context, status string) ([]models.Submission, error) {
	if f.submission == nil {
		return nil, nil
	}
	return []models.Submission{*f.submission}, nil
}

func (f *fakeSubmissionStore) UpdateStatus(ctx context.Context, id uuid.UUID, status, message string) error {
	f.statuses = append(f.statuses, status)
	f.messages[status] = message
	return nil
}

func (f *fakeSubmissionStore) MarkPublished(ctx context.Context, id uuid.UUID, listingID string) error {
	f.statuses = append(f.statuses, models.SubmissionPublished)
	f.listingID = listingID
	return nil
}

func TestSubmissionLifecyclePublished(t *testing.T) {
	store := newFakeSubmissionStore()
	svc := NewSubmissionService(store)
	ctx := context.Background()

	submission, err := svc.Track(ctx, "/tmp/bundle.tgz", "official", "jane@example.com")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, submission.ID)

	require.NoError(t, svc.Begin(ctx, submission.ID))
	require.NoError(t, svc.Approve(ctx, submission.ID))
	require.NoError(t, svc.Complete(ctx, submission.ID, &models.PublishResult{Success: true, ListingID: "new-1"}))

	assert.Equal(t, []string{
		models.SubmissionPending,
		models.SubmissionValidating,
		models.SubmissionApproved,
		models.SubmissionPublished,
	}, store.statuses)
	assert.Equal(t, "new-1", store.listingID)
}

func TestSubmissionLifecycleBrokerDeclined(t *testing.T) {
	store := newFakeSubmissionStore()
	svc := NewSubmissionService(store)
	ctx := context.Background()

	submission, err := svc.Track(ctx, "/tmp/bundle.tgz", "community", "jane@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.Begin(ctx, submission.ID))
	require.NoError(t, svc.Approve(ctx, submission.ID))
	require.NoError(t, svc.Complete(ctx, submission.ID, &models.PublishResult{
		Success: false,
		Message: "provider is a read-only catalog",
	}))

	assert.Equal(t, models.SubmissionFailed, store.statuses[len(store.statuses)-1])
	assert.Equal(t, "provider is a read-only catalog", store.messages[models.SubmissionFailed])
}

func TestSubmissionLifecycleRejected(t *testing.T) {
	store := newFakeSubmissionStore()
	svc := NewSubmissionService(store)
	ctx := context.Background()

	submission, err := svc.Track(ctx, "/tmp/bundle.tgz", "official", "jane@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.Begin(ctx, submission.ID))
	require.NoError(t, svc.Reject(ctx, submission.ID, "incompatible bundle licenses"))

	assert.Equal(t, []string{
		models.SubmissionPending,
		models.SubmissionValidating,
		models.SubmissionRejected,
	}, store.statuses)
	assert.NotContains(t, store.statuses, models.SubmissionApproved)
	assert.Equal(t, "incompatible bundle licenses", store.messages[models.SubmissionRejected])
}
