package broker

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/aman-churiwal/marketplace-gateway/internal/models"
	"github.com/aman-churiwal/marketplace-gateway/internal/signing"
)

// SignedBroker talks to the authenticated marketplace provider. Listings
// carry publisher signatures and the provider accepts publishes from
// authenticated callers.
type SignedBroker struct {
	base
}

type SignedConfig struct {
	Name              string
	BaseURL           string
	APIKey            string
	RequestsPerMinute int
}

func NewSignedBroker(cfg SignedConfig, keys signing.KeyResolver) *SignedBroker {
	headers := map[string]string{
		"Authorization": "Bearer " + cfg.APIKey,
		"Accept":        "application/json",
	}

	return &SignedBroker{
		base: newBase(cfg.Name, cfg.BaseURL, headers, cfg.RequestsPerMinute, keys),
	}
}

// signedListing is the provider's wire representation of one entry.
type signedListing struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Version     string            `json:"version"`
	Publisher   signedPublisher   `json:"publisher"`
	License     string            `json:"license"`
	Tags        []string          `json:"tags"`
	Downloads   int64             `json:"downloads"`
	Price       float64           `json:"price"`
	Signature   string            `json:"signature"`
	SourceURL   string            `json:"source_url"`
	BundleURL   string            `json:"bundle_url"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Metadata    map[string]string `json:"metadata"`
}

type signedPublisher struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Website     string `json:"website"`
	Verified    bool   `json:"verified"`
	Fingerprint string `json:"fingerprint"`
}

type signedListingsResponse struct {
	Items    []signedListing `json:"items"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

func (s *SignedBroker) Listings(ctx context.Context, query models.ListingQuery) (*models.ListingPage, error) {
	params := url.Values{}
	if query.Search != "" {
		params.Set("search", query.Search)
	}
	if query.Category != "" {
		params.Set("category", query.Category)
	}
	params.Set("page", strconv.Itoa(query.Page))
	params.Set("page_size", strconv.Itoa(query.PageSize))

	var resp signedListingsResponse
	if err := s.getJSON(ctx, "/v1/listings", params, &resp); err != nil {
		return nil, err
	}

	page := &models.ListingPage{
		Total:    resp.Total,
		Page:     resp.Page,
		PageSize: resp.PageSize,
	}
	if resp.PageSize > 0 {
		page.TotalPages = (resp.Total + resp.PageSize - 1) / resp.PageSize
	}
	for _, item := range resp.Items {
		page.Listings = append(page.Listings, item.toListing())
	}

	return page, nil
}

// FetchOne uses the provider's direct lookup endpoint.
func (s *SignedBroker) FetchOne(ctx context.Context, id string) (*models.Listing, error) {
	var item signedListing
	if err := s.getJSON(ctx, "/v1/listings/"+url.PathEscape(id), nil, &item); err != nil {
		return nil, err
	}

	listing := item.toListing()
	return &listing, nil
}

func (s *SignedBroker) Download(ctx context.Context, id, destDir string) *models.DownloadResult {
	listing, err := s.FetchOne(ctx, id)
	if err != nil {
		return &models.DownloadResult{ListingID: id, Errors: []string{err.Error()}}
	}

	return s.downloadBundle(ctx, listing, destDir)
}

type signedPublishResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *SignedBroker) Publish(ctx context.Context, req models.PublishRequest) (*models.PublishResult, error) {
	bundle, err := os.ReadFile(req.BundlePath)
	if err != nil {
		return &models.PublishResult{
			Success: false,
			Message: "bundle could not be read",
			Errors:  []string{err.Error()},
		}, nil
	}

	body := map[string]interface{}{
		"name":        req.Name,
		"description": req.Description,
		"category":    req.Category,
		"version":     req.Version,
		"license":     req.License,
		"tags":        req.Tags,
		"price":       req.Price,
		"bundle":      base64.StdEncoding.EncodeToString(bundle),
	}

	var resp signedPublishResponse
	if err := s.postJSON(ctx, "/v1/publish", body, &resp); err != nil {
		if errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		return nil, fmt.Errorf("publish to %s failed: %w", s.name, err)
	}

	return &models.PublishResult{
		Success:   true,
		ListingID: resp.ID,
		Message:   resp.Status,
	}, nil
}

func (l signedListing) toListing() models.Listing {
	return models.Listing{
		ID:          l.ID,
		Name:        l.Name,
		Description: l.Description,
		Category:    l.Category,
		Version:     l.Version,
		Publisher: models.Publisher{
			Name:                l.Publisher.Name,
			Email:               l.Publisher.Email,
			Website:             l.Publisher.Website,
			Verified:            l.Publisher.Verified,
			TrustKeyFingerprint: l.Publisher.Fingerprint,
		},
		License:   l.License,
		Tags:      l.Tags,
		Downloads: l.Downloads,
		Price:     l.Price,
		Signature: l.Signature,
		SourceURL: l.SourceURL,
		BundleURL: l.BundleURL,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
		Metadata:  l.Metadata,
	}
}
