// Package broker adapts external marketplace providers to the shared
// listing model. Each concrete broker owns its own token bucket bounding
// outbound calls to that provider's API.
package broker

import (
	"context"
	"errors"

	"github.com/aman-churiwal/marketplace-gateway/internal/models"
)

var (
	// ErrRateLimited is returned when the broker's own token bucket
	// denies an outbound call. Soft: the caller may retry after backoff.
	ErrRateLimited = errors.New("broker rate limit exceeded")

	// ErrUnreachable is returned when the provider cannot be reached or
	// answers with a server error.
	ErrUnreachable = errors.New("provider unreachable")

	// ErrInvalidResponse is returned when the provider payload cannot be
	// parsed into the shared listing schema.
	ErrInvalidResponse = errors.New("invalid provider response")

	// ErrNotFound is returned by FetchOne when no listing matches.
	ErrNotFound = errors.New("listing not found")
)

// Broker is the capability set over one marketplace provider.
type Broker interface {
	Name() string

	// Listings fetches one page of listings matching query.
	Listings(ctx context.Context, query models.ListingQuery) (*models.ListingPage, error)

	// FetchOne looks up a single listing by id. Returns ErrNotFound on a miss.
	FetchOne(ctx context.Context, id string) (*models.Listing, error)

	// Download retrieves the artifact bundle into destDir. Failures are
	// reported in the result's Errors, never as a Go error.
	Download(ctx context.Context, id, destDir string) *models.DownloadResult

	// Publish uploads a bundle with metadata. Providers without publish
	// support answer with Success=false and a message, not an error.
	Publish(ctx context.Context, req models.PublishRequest) (*models.PublishResult, error)

	// VerifySignature reports whether the listing's signature validates
	// against a known publisher key. Listings without a signature pass.
	VerifySignature(listing *models.Listing) bool
}

// fetchOneByScan is the default FetchOne: page through Listings and
// filter client-side. O(n) over the provider's whole catalog, so
// concrete brokers should override it whenever the provider exposes a
// direct lookup endpoint.
func fetchOneByScan(ctx context.Context, b Broker, id string) (*models.Listing, error) {
	query := models.ListingQuery{Page: 1, PageSize: models.MaxPageSize}

	for {
		page, err := b.Listings(ctx, query)
		if err != nil {
			return nil, err
		}

		for i := range page.Listings {
			if page.Listings[i].ID == id {
				listing := page.Listings[i]
				return &listing, nil
			}
		}

		if query.Page >= page.TotalPages {
			return nil, ErrNotFound
		}
		query.Page++
	}
}
