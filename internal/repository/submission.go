package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/marketplace-gateway/internal/models"
	"github.com/aman-churiwal/marketplace-gateway/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubmissionRepository struct {
	db *storage.Postgres
}

func NewSubmissionRepository(db *storage.Postgres) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.DB.WithContext(ctx).Create(submission).Error
}

func (r *SubmissionRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	var submission models.Submission
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&submission).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &submission, err
}

func (r *SubmissionRepository) List(ctx context.Context, status string) ([]models.Submission, error) {
	var submissions []models.Submission

	q := r.db.DB.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}

	err := q.Find(&submissions).Error
	return submissions, err
}

func (r *SubmissionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status, message string) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":  status,
			"message": message,
		}).Error
}

func (r *SubmissionRepository) MarkPublished(ctx context.Context, id uuid.UUID, listingID string) error {
	now := time.Now()
	return r.db.DB.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.SubmissionPublished,
			"listing_id":   listingID,
			"published_at": &now,
		}).Error
}
