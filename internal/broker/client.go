package broker

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/aman-churiwal/marketplace-gateway/internal/models"
	"github.com/aman-churiwal/marketplace-gateway/internal/ratelimit"
	"github.com/aman-churiwal/marketplace-gateway/internal/signing"
	"github.com/sirupsen/logrus"
)

const defaultTimeout = 15 * time.Second

// base carries the plumbing every concrete broker shares: the provider
// base URL, session headers fixed at construction, the broker's token
// bucket, and the signing boundary. Read-only after construction except
// for the internally locked limiter.
type base struct {
	name    string
	baseURL string
	headers map[string]string
	limiter *ratelimit.TokenBucket
	http    *http.Client
	keys    signing.KeyResolver
	log     *logrus.Entry
}

func newBase(name, baseURL string, headers map[string]string, requestsPerMinute int, keys signing.KeyResolver) base {
	return base{
		name:    name,
		baseURL: baseURL,
		headers: headers,
		limiter: ratelimit.NewTokenBucket(requestsPerMinute),
		http:    &http.Client{Timeout: defaultTimeout},
		keys:    keys,
		log:     logrus.WithField("broker", name),
	}
}

func (b *base) Name() string {
	return b.name
}

// getJSON issues a rate-limited GET against the provider and decodes the
// response into out. Every call, successful or not, emits one structured
// log line so the aggregation layer can judge provider health.
func (b *base) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	if !b.limiter.Acquire(1) {
		b.logCall("get", path, ErrRateLimited)
		return fmt.Errorf("%w: %s", ErrRateLimited, b.name)
	}

	endpoint := b.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	for key, value := range b.headers {
		req.Header.Set(key, value)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		b.logCall("get", path, err)
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		b.logCall("get", path, ErrNotFound)
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		b.logCall("get", path, ErrRateLimited)
		return fmt.Errorf("%w: provider throttled", ErrRateLimited)
	case resp.StatusCode >= 500:
		b.logCall("get", path, ErrUnreachable)
		return fmt.Errorf("%w: provider returned %d", ErrUnreachable, resp.StatusCode)
	case resp.StatusCode >= 400:
		b.logCall("get", path, ErrInvalidResponse)
		return fmt.Errorf("%w: provider returned %d", ErrInvalidResponse, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		b.logCall("get", path, ErrInvalidResponse)
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	b.logCall("get", path, nil)
	return nil
}

// postJSON issues a rate-limited POST with a JSON body. Writes are rare
// enough that waiting briefly for a token beats failing outright.
func (b *base) postJSON(ctx context.Context, path string, body, out interface{}) error {
	if !b.limiter.WaitAndAcquire(ctx, 1, 5*time.Second) {
		b.logCall("post", path, ErrRateLimited)
		return fmt.Errorf("%w: %s", ErrRateLimited, b.name)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range b.headers {
		req.Header.Set(key, value)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		b.logCall("post", path, err)
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b.logCall("post", path, ErrUnreachable)
		return fmt.Errorf("%w: provider returned %d", ErrUnreachable, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			b.logCall("post", path, ErrInvalidResponse)
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}

	b.logCall("post", path, nil)
	return nil
}

// downloadBundle fetches the listing's bundle into destDir and verifies
// its signature when one is present. Failures are collected into the
// result instead of being returned.
func (b *base) downloadBundle(ctx context.Context, listing *models.Listing, destDir string) *models.DownloadResult {
	result := &models.DownloadResult{ListingID: listing.ID}

	if listing.BundleURL == "" {
		result.Errors = append(result.Errors, "listing has no bundle URL")
		return result
	}

	if !b.limiter.Acquire(1) {
		b.logCall("download", listing.ID, ErrRateLimited)
		result.Errors = append(result.Errors, ErrRateLimited.Error())
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listing.BundleURL, nil)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	for key, value := range b.headers {
		req.Header.Set(key, value)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		b.logCall("download", listing.ID, err)
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("bundle download returned %d", resp.StatusCode)
		b.logCall("download", listing.ID, err)
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	path := filepath.Join(destDir, listing.ID+".bundle")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	result.Path = path
	result.Size = int64(len(data))
	result.Success = true

	if listing.Signature != "" {
		result.Verified = b.verifyPayload(data, listing.Signature, listing.Publisher.TrustKeyFingerprint)
		if !result.Verified {
			result.Errors = append(result.Errors, "bundle signature could not be verified")
		}
	}

	b.logCall("download", listing.ID, nil)
	return result
}

// VerifySignature checks the listing-level signature against the
// publisher's trust key. Signatures are optional: a listing without one
// passes. A signature whose fingerprint or key cannot be resolved fails.
func (b *base) VerifySignature(listing *models.Listing) bool {
	if listing.Signature == "" {
		return true
	}
	return b.verifyPayload(signaturePayload(listing), listing.Signature, listing.Publisher.TrustKeyFingerprint)
}

func (b *base) verifyPayload(payload []byte, signature, fingerprint string) bool {
	if b.keys == nil || fingerprint == "" {
		return false
	}

	key, ok := b.keys.LoadPublicKeyByFingerprint(fingerprint)
	if !ok {
		return false
	}

	raw, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	return b.keys.Verify(payload, raw, key)
}

// signaturePayload is the canonical byte string a listing signature
// covers.
func signaturePayload(listing *models.Listing) []byte {
	return []byte(listing.ID + "\n" + listing.Version + "\n" + listing.BundleURL)
}

func (b *base) logCall(op, target string, err error) {
	fields := logrus.Fields{"op": op, "target": target, "outcome": "ok"}
	if err != nil {
		fields["outcome"] = "error"
		fields["error"] = err.Error()
		b.log.WithFields(fields).Warn("provider call failed")
		return
	}
	b.log.WithFields(fields).Debug("provider call")
}
