package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Submission lifecycle states.
const (
	SubmissionPending    = "pending"
	SubmissionValidating = "validating"
	SubmissionApproved   = "approved"
	SubmissionRejected   = "rejected"
	SubmissionPublished  = "published"
	SubmissionFailed     = "failed"
)

// Submission tracks one publish attempt through its lifecycle.
type Submission struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	ListingID   string     `gorm:"index" json:"listing_id,omitempty"`
	BundlePath  string     `gorm:"not null" json:"bundle_path"`
	Broker      string     `gorm:"not null" json:"broker"`
	Status      string     `gorm:"default:'pending';index" json:"status"`
	Message     string     `json:"message,omitempty"`
	SubmittedBy string     `json:"submitted_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (Submission) TableName() string {
	return "submissions"
}
