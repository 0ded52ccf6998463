package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aman-churiwal/marketplace-gateway/internal/broker"
	"github.com/aman-churiwal/marketplace-gateway/internal/cache"
	"github.com/aman-churiwal/marketplace-gateway/internal/circuitbreaker"
	"github.com/aman-churiwal/marketplace-gateway/internal/license"
	"github.com/aman-churiwal/marketplace-gateway/internal/models"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoBrokerAvailable is returned when a publish is attempted with
	// zero registered brokers, or names a broker that does not exist.
	ErrNoBrokerAvailable = errors.New("no broker available")

	// ErrAllBrokersFailed is returned only when every registered broker
	// failed for a listing query. Partial failure is absorbed.
	ErrAllBrokersFailed = errors.New("all marketplace providers failed")

	// ErrListingNotFound is returned when no broker knows the listing.
	ErrListingNotFound = errors.New("listing not found on any provider")
)

// LicenseError blocks a publish whose bundle licenses conflict.
type LicenseError struct {
	Result license.ValidationResult
}

func (e *LicenseError) Error() string {
	pairs := make([]string, 0, len(e.Result.Conflicts))
	for _, c := range e.Result.Conflicts {
		pairs = append(pairs, fmt.Sprintf("(%s, %s)", c.First, c.Second))
	}
	return "incompatible bundle licenses: " + strings.Join(pairs, ", ")
}

const brokerCallTimeout = 20 * time.Second

// MarketplaceService aggregates listings across every registered broker,
// serves them through the conditional cache, and gates publishes behind
// license validation.
type MarketplaceService struct {
	cache    *cache.ListingCache
	brokers  []broker.Broker
	breakers map[string]*circuitbreaker.CircuitBreaker
	cacheTTL time.Duration
	log      *logrus.Entry
}

func NewMarketplaceService(c *cache.ListingCache, brokers []broker.Broker, cacheTTL time.Duration) *MarketplaceService {
	breakers := make(map[string]*circuitbreaker.CircuitBreaker, len(brokers))
	for _, b := range brokers {
		breakers[b.Name()] = circuitbreaker.New(circuitbreaker.Config{})
	}

	return &MarketplaceService{
		cache:    c,
		brokers:  brokers,
		breakers: breakers,
		cacheTTL: cacheTTL,
		log:      logrus.WithField("component", "marketplace"),
	}
}

// Brokers returns the registered brokers in registration order.
func (s *MarketplaceService) Brokers() []broker.Broker {
	return s.brokers
}

// GetListings serves one page of aggregated listings. The returned bool
// is true when ifNoneMatch matched the cached etag, in which case the
// page is nil and the transport should answer 304.
func (s *MarketplaceService) GetListings(ctx context.Context, query models.ListingQuery, ifNoneMatch string) (*models.ListingPage, string, bool, error) {
	query.Normalize()

	key := cache.GenerateCacheKey(cacheParams(query))

	if page, etag, notModified := s.cache.Get(key, ifNoneMatch); notModified {
		return nil, etag, true, nil
	} else if page != nil {
		return page, etag, false, nil
	}

	candidates, errs := s.collect(ctx, query)

	// A broker that succeeds with zero listings still counts as a
	// success; the request only fails when every broker errored.
	if len(errs) > 0 && len(errs) == len(s.brokers) {
		return nil, "", false, fmt.Errorf("%w: %d providers errored", ErrAllBrokersFailed, len(errs))
	}

	filtered := filterListings(candidates, query)
	sortListings(filtered, query.Sort)
	page := paginate(filtered, query.Page, query.PageSize)

	etag := s.cache.Set(key, *page, s.cacheTTL)
	return page, etag, false, nil
}

// collect fans the query across every broker sequentially, absorbing
// individual failures. Each call runs under the broker's circuit breaker
// and a bounded timeout.
func (s *MarketplaceService) collect(ctx context.Context, query models.ListingQuery) ([]models.Listing, []error) {
	// Brokers are asked for their widest page; filtering, sorting and
	// pagination happen here over the unified candidate set.
	brokerQuery := query
	brokerQuery.Page = 1
	brokerQuery.PageSize = models.MaxPageSize

	var candidates []models.Listing
	var errs []error

	for _, b := range s.brokers {
		callCtx, cancel := context.WithTimeout(ctx, brokerCallTimeout)

		var page *models.ListingPage
		err := s.breakers[b.Name()].Call(func() error {
			var callErr error
			page, callErr = b.Listings(callCtx, brokerQuery)
			return callErr
		})
		cancel()

		if err != nil {
			s.log.WithFields(logrus.Fields{"broker": b.Name(), "error": err.Error()}).Warn("provider degraded for this request")
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}

		candidates = append(candidates, page.Listings...)
	}

	return candidates, errs
}

// GetListing looks a listing up broker by broker in registration order
// and returns the first hit. Single-item lookups are deliberately not
// cached; every call pays full broker latency. Flagged for follow-up.
func (s *MarketplaceService) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	for _, b := range s.brokers {
		callCtx, cancel := context.WithTimeout(ctx, brokerCallTimeout)
		listing, err := b.FetchOne(callCtx, id)
		cancel()

		if err == nil {
			return listing, nil
		}
		if !errors.Is(err, broker.ErrNotFound) {
			s.log.WithFields(logrus.Fields{"broker": b.Name(), "listing": id, "error": err.Error()}).Warn("lookup failed, trying next provider")
		}
	}

	return nil, ErrListingNotFound
}

// DownloadListing resolves the listing, then tries each broker's
// download in order until one succeeds. The returned result carries the
// accumulated errors when every attempt failed.
func (s *MarketplaceService) DownloadListing(ctx context.Context, id, destDir string) (*models.DownloadResult, error) {
	if _, err := s.GetListing(ctx, id); err != nil {
		return nil, err
	}

	failed := &models.DownloadResult{ListingID: id}

	for _, b := range s.brokers {
		callCtx, cancel := context.WithTimeout(ctx, brokerCallTimeout)
		result := b.Download(callCtx, id, destDir)
		cancel()

		if result.Success {
			return result, nil
		}
		failed.Errors = append(failed.Errors, result.Errors...)
	}

	return failed, nil
}

// PublishListing validates the bundle's licenses, publishes through the
// named broker (or the first registered one), and flushes the whole
// cache on success since a publish can shift sort order and counts for
// any cached query.
func (s *MarketplaceService) PublishListing(ctx context.Context, req models.PublishRequest) (*models.PublishResult, error) {
	target, err := s.selectBroker(req.Broker)
	if err != nil {
		return nil, err
	}

	validation := license.ValidateBundle(req.License, req.DependencyLicenses)
	if !validation.IsValid {
		return nil, &LicenseError{Result: validation}
	}

	callCtx, cancel := context.WithTimeout(ctx, brokerCallTimeout)
	defer cancel()

	result, err := target.Publish(callCtx, req)
	if err != nil {
		return nil, err
	}

	if result.Success {
		s.cache.Invalidate()
		s.log.WithFields(logrus.Fields{"broker": target.Name(), "listing": result.ListingID}).Info("published, listing cache flushed")
	}

	return result, nil
}

func (s *MarketplaceService) selectBroker(name string) (broker.Broker, error) {
	if len(s.brokers) == 0 {
		return nil, ErrNoBrokerAvailable
	}

	if name == "" {
		return s.brokers[0], nil
	}

	for _, b := range s.brokers {
		if b.Name() == name {
			return b, nil
		}
	}

	return nil, fmt.Errorf("%w: %q is not registered", ErrNoBrokerAvailable, name)
}

// cacheParams normalizes a query into the parameter set the cache key is
// derived from. Default and empty values are omitted so the common
// unfiltered query has a stable key.
func cacheParams(query models.ListingQuery) map[string]string {
	params := map[string]string{
		"page":      strconv.Itoa(query.Page),
		"page_size": strconv.Itoa(query.PageSize),
	}

	if query.Search != "" {
		params["search"] = query.Search
	}
	if query.Category != "" {
		params["category"] = query.Category
	}
	if len(query.Tags) > 0 {
		tags := append([]string(nil), query.Tags...)
		sort.Strings(tags)
		params["tags"] = strings.Join(tags, ",")
	}
	if query.Publisher != "" {
		params["publisher"] = query.Publisher
	}
	if query.FreeOnly {
		params["free_only"] = "true"
	}
	if query.VerifiedOnly {
		params["verified_only"] = "true"
	}
	if query.Sort != "" {
		params["sort"] = query.Sort
	}

	return params
}

// filterListings applies the client-side filters in their fixed order:
// search, category, tags, publisher, free-only, verified-only.
func filterListings(listings []models.Listing, query models.ListingQuery) []models.Listing {
	out := make([]models.Listing, 0, len(listings))

	search := strings.ToLower(query.Search)

	for _, l := range listings {
		if search != "" &&
			!strings.Contains(strings.ToLower(l.Name), search) &&
			!strings.Contains(strings.ToLower(l.Description), search) {
			continue
		}
		if query.Category != "" && l.Category != query.Category {
			continue
		}
		if !hasAllTags(&l, query.Tags) {
			continue
		}
		if query.Publisher != "" && !strings.EqualFold(l.Publisher.Name, query.Publisher) {
			continue
		}
		if query.FreeOnly && !l.Free() {
			continue
		}
		if query.VerifiedOnly && !l.Publisher.Verified {
			continue
		}

		out = append(out, l)
	}

	return out
}

func hasAllTags(l *models.Listing, tags []string) bool {
	for _, tag := range tags {
		if !l.HasTag(tag) {
			return false
		}
	}
	return true
}

// sortListings orders the candidate set in place. The sort is stable so
// equal keys keep their broker-registration order. Unknown sort values
// fall back to newest.
func sortListings(listings []models.Listing, order string) {
	var less func(a, b *models.Listing) bool

	switch order {
	case models.SortUpdated:
		less = func(a, b *models.Listing) bool { return a.UpdatedAt.After(b.UpdatedAt) }
	case models.SortPopular, models.SortDownloads:
		less = func(a, b *models.Listing) bool { return a.Downloads > b.Downloads }
	case models.SortName:
		less = func(a, b *models.Listing) bool {
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
	default: // newest, and any unrecognized value
		less = func(a, b *models.Listing) bool { return a.CreatedAt.After(b.CreatedAt) }
	}

	sort.SliceStable(listings, func(i, j int) bool {
		return less(&listings[i], &listings[j])
	})
}

// paginate slices one 1-indexed page out of the candidate set, clamped
// to its bounds. An out-of-range page yields an empty page, not an error.
func paginate(listings []models.Listing, page, pageSize int) *models.ListingPage {
	total := len(listings)
	totalPages := (total + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &models.ListingPage{
		Listings:   listings[start:end],
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}
