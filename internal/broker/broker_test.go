package broker

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aman-churiwal/marketplace-gateway/internal/models"
	"github.com/aman-churiwal/marketplace-gateway/internal/signing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSigned(t *testing.T, url string, rpm int, keys signing.KeyResolver) *SignedBroker {
	t.Helper()
	return NewSignedBroker(SignedConfig{
		Name:              "test-signed",
		BaseURL:           url,
		APIKey:            "secret-key",
		RequestsPerMinute: rpm,
	}, keys)
}

func newCatalog(t *testing.T, url string, rpm int) *CatalogBroker {
	t.Helper()
	return NewCatalogBroker(CatalogConfig{
		Name:              "test-catalog",
		BaseURL:           url,
		RequestsPerMinute: rpm,
	}, nil)
}

func TestSignedListingsTranslation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/listings", r.URL.Path)

		json.NewEncoder(w).Encode(signedListingsResponse{
			Items: []signedListing{{
				ID:       "skill-1",
				Name:     "Linter",
				Category: models.CategorySkill,
				Version:  "2.1.0",
				Publisher: signedPublisher{
					Name:        "acme",
					Verified:    true,
					Fingerprint: "abcd",
				},
				License:   "MIT",
				Downloads: 42,
			}},
			Total:    1,
			Page:     1,
			PageSize: 20,
		})
	}))
	defer ts.Close()

	b := newSigned(t, ts.URL, 60, nil)

	page, err := b.Listings(context.Background(), models.ListingQuery{Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, page.Listings, 1)

	listing := page.Listings[0]
	assert.Equal(t, "skill-1", listing.ID)
	assert.Equal(t, "acme", listing.Publisher.Name)
	assert.True(t, listing.Publisher.Verified)
	assert.Equal(t, "abcd", listing.Publisher.TrustKeyFingerprint)
	assert.Equal(t, int64(42), listing.Downloads)
	assert.Equal(t, 1, page.TotalPages)
}

func TestCatalogListingsTranslation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"), "the public catalog is unauthenticated")

		json.NewEncoder(w).Encode(catalogResponse{
			Results: []catalogEntry{{
				Slug:       "pretty-printer",
				Title:      "Pretty Printer",
				Summary:    "formats things",
				Kind:       models.CategoryCommand,
				Author:     "jane",
				Installs:   7,
				ArchiveURL: "https://example.org/pp.tgz",
				Created:    "2025-02-01T10:00:00Z",
				Modified:   "2025-03-01T10:00:00Z",
			}},
			Count:   1,
			Page:    1,
			PerPage: 20,
		})
	}))
	defer ts.Close()

	b := newCatalog(t, ts.URL, 60)

	page, err := b.Listings(context.Background(), models.ListingQuery{Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, page.Listings, 1)

	listing := page.Listings[0]
	assert.Equal(t, "pretty-printer", listing.ID)
	assert.Equal(t, "Pretty Printer", listing.Name)
	assert.Equal(t, models.CategoryCommand, listing.Category)
	assert.Equal(t, "jane", listing.Publisher.Name)
	assert.Equal(t, int64(7), listing.Downloads)
	assert.Equal(t, 2025, listing.CreatedAt.Year())
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"not found", http.StatusNotFound, "{}", ErrNotFound},
		{"provider throttled", http.StatusTooManyRequests, "{}", ErrRateLimited},
		{"server error", http.StatusInternalServerError, "{}", ErrUnreachable},
		{"client error", http.StatusBadRequest, "{}", ErrInvalidResponse},
		{"malformed payload", http.StatusOK, "not json", ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			b := newSigned(t, ts.URL, 60, nil)

			_, err := b.Listings(context.Background(), models.ListingQuery{Page: 1, PageSize: 20})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUnreachableProvider(t *testing.T) {
	b := newSigned(t, "http://127.0.0.1:1", 60, nil)

	_, err := b.Listings(context.Background(), models.ListingQuery{Page: 1, PageSize: 20})
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestRateLimiterGuardsCalls(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(signedListingsResponse{Page: 1, PageSize: 20})
	}))
	defer ts.Close()

	b := newSigned(t, ts.URL, 1, nil)

	_, err := b.Listings(context.Background(), models.ListingQuery{Page: 1, PageSize: 20})
	require.NoError(t, err)

	_, err = b.Listings(context.Background(), models.ListingQuery{Page: 1, PageSize: 20})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, calls, "the denied call must never reach the provider")
}

func TestSignedFetchOneUsesDirectEndpoint(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/listings/skill-9", r.URL.Path)
		json.NewEncoder(w).Encode(signedListing{ID: "skill-9", Name: "Niner"})
	}))
	defer ts.Close()

	b := newSigned(t, ts.URL, 60, nil)

	listing, err := b.FetchOne(context.Background(), "skill-9")
	require.NoError(t, err)
	assert.Equal(t, "Niner", listing.Name)
}

func TestCatalogFetchOneScansPages(t *testing.T) {
	// The catalog has no direct lookup endpoint; FetchOne pages through
	// the whole catalog client-side.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")

		resp := catalogResponse{Count: 150, PerPage: 100}
		if page == "1" {
			resp.Page = 1
			for i := 0; i < 100; i++ {
				resp.Results = append(resp.Results, catalogEntry{Slug: fmt.Sprintf("filler-%d", i)})
			}
		} else {
			resp.Page = 2
			resp.Results = []catalogEntry{{Slug: "needle", Title: "Needle"}}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	b := newCatalog(t, ts.URL, 60)

	listing, err := b.FetchOne(context.Background(), "needle")
	require.NoError(t, err)
	assert.Equal(t, "Needle", listing.Name)

	_, err = b.FetchOne(context.Background(), "not-there")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalogPublishNotSupported(t *testing.T) {
	b := newCatalog(t, "http://unused", 60)

	result, err := b.Publish(context.Background(), models.PublishRequest{Name: "x"})
	require.NoError(t, err, "not supported is an expected outcome, not an error")
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "read-only")
}

func TestVerifySignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	keyring, err := signing.NewStaticKeyring(map[string]string{
		"trusted-fp": hex.EncodeToString(pub),
	})
	require.NoError(t, err)

	b := newSigned(t, "http://unused", 60, keyring)

	signed := &models.Listing{
		ID:        "skill-1",
		Version:   "1.0.0",
		BundleURL: "https://example.com/skill-1.tgz",
		Publisher: models.Publisher{TrustKeyFingerprint: "trusted-fp"},
	}
	signed.Signature = hex.EncodeToString(ed25519.Sign(priv, signaturePayload(signed)))

	t.Run("valid signature", func(t *testing.T) {
		assert.True(t, b.VerifySignature(signed))
	})

	t.Run("no signature passes", func(t *testing.T) {
		assert.True(t, b.VerifySignature(&models.Listing{ID: "unsigned"}))
	})

	t.Run("unknown fingerprint fails", func(t *testing.T) {
		other := *signed
		other.Publisher.TrustKeyFingerprint = "unknown-fp"
		assert.False(t, b.VerifySignature(&other))
	})

	t.Run("missing fingerprint fails", func(t *testing.T) {
		other := *signed
		other.Publisher.TrustKeyFingerprint = ""
		assert.False(t, b.VerifySignature(&other))
	})

	t.Run("tampered payload fails", func(t *testing.T) {
		other := *signed
		other.Version = "9.9.9"
		assert.False(t, b.VerifySignature(&other))
	})
}

func TestDownloadBundle(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	keyring, err := signing.NewStaticKeyring(map[string]string{
		"trusted-fp": hex.EncodeToString(pub),
	})
	require.NoError(t, err)

	bundle := []byte("bundle-bytes")

	bundleServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bundle)
	}))
	defer bundleServer.Close()

	listing := signedListing{
		ID:        "skill-1",
		Name:      "Linter",
		BundleURL: bundleServer.URL + "/skill-1.tgz",
		Signature: hex.EncodeToString(ed25519.Sign(priv, bundle)),
		Publisher: signedPublisher{Fingerprint: "trusted-fp"},
	}

	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(listing)
	}))
	defer apiServer.Close()

	b := newSigned(t, apiServer.URL, 60, keyring)
	destDir := t.TempDir()

	result := b.Download(context.Background(), "skill-1", destDir)
	require.True(t, result.Success, "errors: %v", result.Errors)
	assert.True(t, result.Verified)
	assert.Equal(t, int64(len(bundle)), result.Size)
	assert.Equal(t, filepath.Join(destDir, "skill-1.bundle"), result.Path)

	data, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Equal(t, bundle, data)
}

func TestDownloadReportsFailuresInResult(t *testing.T) {
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(signedListing{ID: "skill-1"})
	}))
	defer apiServer.Close()

	b := newSigned(t, apiServer.URL, 60, nil)

	result := b.Download(context.Background(), "skill-1", t.TempDir())
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors, "a failed download reports errors instead of panicking or returning a Go error")
}
