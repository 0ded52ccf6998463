package broker

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/aman-churiwal/marketplace-gateway/internal/models"
	"github.com/aman-churiwal/marketplace-gateway/internal/signing"
)

// CatalogBroker talks to the public, read-only catalog provider. No
// authentication, no publish support, no direct single-listing endpoint.
type CatalogBroker struct {
	base
}

type CatalogConfig struct {
	Name              string
	BaseURL           string
	RequestsPerMinute int
}

func NewCatalogBroker(cfg CatalogConfig, keys signing.KeyResolver) *CatalogBroker {
	headers := map[string]string{"Accept": "application/json"}

	return &CatalogBroker{
		base: newBase(cfg.Name, cfg.BaseURL, headers, cfg.RequestsPerMinute, keys),
	}
}

// catalogEntry is the catalog's wire representation, mapped onto the
// shared listing model field by field.
type catalogEntry struct {
	Slug       string   `json:"slug"`
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Kind       string   `json:"kind"`
	Version    string   `json:"version"`
	Author     string   `json:"author"`
	AuthorURL  string   `json:"author_url"`
	License    string   `json:"license"`
	Keywords   []string `json:"keywords"`
	Installs   int64    `json:"installs"`
	RepoURL    string   `json:"repo_url"`
	ArchiveURL string   `json:"archive_url"`
	Created    string   `json:"created"`
	Modified   string   `json:"modified"`
}

type catalogResponse struct {
	Results []catalogEntry `json:"results"`
	Count   int            `json:"count"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
}

func (c *CatalogBroker) Listings(ctx context.Context, query models.ListingQuery) (*models.ListingPage, error) {
	params := url.Values{}
	if query.Search != "" {
		params.Set("q", query.Search)
	}
	if query.Category != "" {
		params.Set("kind", query.Category)
	}
	params.Set("page", strconv.Itoa(query.Page))
	params.Set("per_page", strconv.Itoa(query.PageSize))

	var resp catalogResponse
	if err := c.getJSON(ctx, "/catalog", params, &resp); err != nil {
		return nil, err
	}

	page := &models.ListingPage{
		Total:    resp.Count,
		Page:     resp.Page,
		PageSize: resp.PerPage,
	}
	if resp.PerPage > 0 {
		page.TotalPages = (resp.Count + resp.PerPage - 1) / resp.PerPage
	}
	for _, entry := range resp.Results {
		page.Listings = append(page.Listings, entry.toListing())
	}

	return page, nil
}

// FetchOne falls back to scanning the catalog page by page; the provider
// has no direct lookup endpoint.
func (c *CatalogBroker) FetchOne(ctx context.Context, id string) (*models.Listing, error) {
	return fetchOneByScan(ctx, c, id)
}

func (c *CatalogBroker) Download(ctx context.Context, id, destDir string) *models.DownloadResult {
	listing, err := c.FetchOne(ctx, id)
	if err != nil {
		return &models.DownloadResult{ListingID: id, Errors: []string{err.Error()}}
	}

	return c.downloadBundle(ctx, listing, destDir)
}

// Publish is not supported by the public catalog. This is an expected
// outcome, reported in the result so callers can branch on it uniformly.
func (c *CatalogBroker) Publish(ctx context.Context, req models.PublishRequest) (*models.PublishResult, error) {
	return &models.PublishResult{
		Success: false,
		Message: fmt.Sprintf("provider %s is a read-only catalog and does not accept publishes", c.name),
	}, nil
}

func (e catalogEntry) toListing() models.Listing {
	created, _ := time.Parse(time.RFC3339, e.Created)
	modified, _ := time.Parse(time.RFC3339, e.Modified)

	return models.Listing{
		ID:          e.Slug,
		Name:        e.Title,
		Description: e.Summary,
		Category:    e.Kind,
		Version:     e.Version,
		Publisher: models.Publisher{
			Name:    e.Author,
			Website: e.AuthorURL,
		},
		License:   e.License,
		Tags:      e.Keywords,
		Downloads: e.Installs,
		SourceURL: e.RepoURL,
		BundleURL: e.ArchiveURL,
		CreatedAt: created,
		UpdatedAt: modified,
	}
}
