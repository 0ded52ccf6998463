package models

import (
	"time"
)

// Marketplace entry categories. Providers must map their own taxonomy
// onto one of these before a listing enters the shared model.
const (
	CategorySkill     = "skill"
	CategoryCommand   = "command"
	CategoryAgent     = "agent"
	CategoryHook      = "hook"
	CategoryMCPServer = "mcp-server"
	CategoryBundle    = "bundle"
)

// Publisher identifies who published a listing on a provider.
type Publisher struct {
	Name                string `json:"name"`
	Email               string `json:"email,omitempty"`
	Website             string `json:"website,omitempty"`
	Verified            bool   `json:"verified"`
	TrustKeyFingerprint string `json:"trust_key_fingerprint,omitempty"`
}

// Listing is one marketplace entry as normalized from a provider.
// Listings are immutable once built; a re-fetch produces a new value.
type Listing struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Version     string            `json:"version"`
	Publisher   Publisher         `json:"publisher"`
	License     string            `json:"license"`
	Tags        []string          `json:"tags,omitempty"`
	Downloads   int64             `json:"downloads"`
	Price       float64           `json:"price"` // 0.0 = free
	Signature   string            `json:"signature,omitempty"`
	SourceURL   string            `json:"source_url,omitempty"`
	BundleURL   string            `json:"bundle_url,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Free reports whether the listing costs nothing.
func (l *Listing) Free() bool {
	return l.Price == 0
}

// HasTag reports whether the listing carries the given tag.
func (l *Listing) HasTag(tag string) bool {
	for _, t := range l.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Sort orders accepted by ListingQuery. Unknown values fall back to newest.
const (
	SortNewest    = "newest"
	SortPopular   = "popular"
	SortUpdated   = "updated"
	SortName      = "name"
	SortDownloads = "downloads"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListingQuery carries the caller's filter/sort/page parameters.
type ListingQuery struct {
	Search       string   `form:"search" json:"search,omitempty"`
	Category     string   `form:"category" json:"category,omitempty"`
	Tags         []string `form:"tags" json:"tags,omitempty"` // AND semantics
	Publisher    string   `form:"publisher" json:"publisher,omitempty"`
	FreeOnly     bool     `form:"free_only" json:"free_only,omitempty"`
	VerifiedOnly bool     `form:"verified_only" json:"verified_only,omitempty"`
	Sort         string   `form:"sort" json:"sort,omitempty"`
	Page         int      `form:"page" json:"page,omitempty"`      // 1-indexed
	PageSize     int      `form:"page_size" json:"page_size,omitempty"`
}

// Normalize clamps paging values into their allowed ranges.
func (q *ListingQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
}

// ListingPage is one page of aggregated results plus paging metadata.
type ListingPage struct {
	Listings   []Listing `json:"listings"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalPages int       `json:"total_pages"`
}

// DownloadResult reports the outcome of a bundle download. Failures are
// carried in Errors rather than returned as a Go error so callers can
// treat every broker attempt uniformly.
type DownloadResult struct {
	ListingID string   `json:"listing_id"`
	Path      string   `json:"path,omitempty"`
	Size      int64    `json:"size"`
	Verified  bool     `json:"verified"`
	Success   bool     `json:"success"`
	Errors    []string `json:"errors,omitempty"`
}

// PublishRequest carries a bundle upload with its metadata.
type PublishRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Category    string   `json:"category" binding:"required"`
	Version     string   `json:"version" binding:"required"`
	License     string   `json:"license" binding:"required"`
	// Licenses of bundled dependencies, checked pairwise against License.
	DependencyLicenses []string `json:"dependency_licenses,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	BundlePath         string   `json:"bundle_path" binding:"required"`
	Price              float64  `json:"price"`
	Broker             string   `json:"broker,omitempty"`
}

// PublishResult is the provider's answer to a publish attempt.
// "Not supported" is an expected outcome, reported with Success=false
// rather than an error.
type PublishResult struct {
	Success   bool     `json:"success"`
	ListingID string   `json:"listing_id,omitempty"`
	Message   string   `json:"message,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}
