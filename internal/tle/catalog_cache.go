package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/metrics"
)

var (
	// ErrNoCachedCatalog is returned by a BlobStore that holds no document.
	ErrNoCachedCatalog = errors.New("no cached catalog")

	// ErrNoCatalog means the fetch failed and nothing was cached to fall back to.
	ErrNoCatalog = errors.New("no catalog available")
)

// DefaultTTL is the freshness window used when none is configured.
const DefaultTTL = 24 * time.Hour

// BlobStore durably stores the most recent catalog document and its fetch time.
type BlobStore interface {
	Save(ctx context.Context, data []byte, ts time.Time) error
	Load(ctx context.Context) ([]byte, time.Time, error)
}

// TextFetcher retrieves raw catalog text from the remote source.
type TextFetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// CatalogText is the document returned by CatalogCache.
type CatalogText struct {
	Data      []byte
	FetchedAt time.Time
	Fetched   bool // true when the text came from the network on this call
	Stale     bool // true when a fetch failed and expired cached text was served

	// Rejected is set when fetched text failed validation and the cached copy
	// was served in its place.
	Rejected error
}

// Validator vets fetched text before it replaces the cached copy.
type Validator func(data []byte) error

// HasRecords rejects documents that parse to zero element records.
func HasRecords(data []byte) error {
	res, err := Parse(bytes.NewReader(data), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return err
	}
	if len(res.Records) == 0 {
		return fmt.Errorf("%w (%d bytes, %d groups skipped)", ErrEmptyCatalog, len(data), res.Skipped)
	}
	return nil
}

// CatalogCacheOption configures a CatalogCache.
type CatalogCacheOption func(*CatalogCache)

// WithValidator replaces the default HasRecords check. A nil validator
// accepts every fetched document.
func WithValidator(v Validator) CatalogCacheOption {
	return func(c *CatalogCache) { c.validate = v }
}

// CatalogCache serves catalog text from a durable cache while it is fresh and
// refetches it once the TTL has elapsed, falling back to the cached copy when
// the fetch fails.
type CatalogCache struct {
	fetcher TextFetcher
	store    BlobStore
	ttl      time.Duration
	validate Validator
	logger   *slog.Logger

	mu        sync.Mutex
	data      []byte
	fetchedAt time.Time
	loaded    bool
}

// NewCatalogCache creates a cache. A non-positive ttl falls back to DefaultTTL.
// Fetched text is only persisted once it passes HasRecords, unless another
// validator is given.
func NewCatalogCache(fetcher TextFetcher, store BlobStore, ttl time.Duration, logger *slog.Logger, opts ...CatalogCacheOption) *CatalogCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &CatalogCache{
		fetcher:  fetcher,
		store:    store,
		ttl:      ttl,
		validate: HasRecords,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured freshness window.
func (c *CatalogCache) TTL() time.Duration {
	return c.ttl
}

// GetCatalogText returns cached text if now - lastFetch < ttl, otherwise fetches.
// On fetch failure the cached text is returned regardless of age; with no cache
// the error wraps both ErrNoCatalog and ErrFetchFailure. Fetched text that
// fails validation is treated the same way, except the error wraps the
// validation error instead of ErrFetchFailure.
func (c *CatalogCache) GetCatalogText(ctx context.Context, now time.Time) (CatalogText, error) {
	return c.get(ctx, now, false)
}

// Revalidate fetches regardless of the TTL, with the same fallback rules.
func (c *CatalogCache) Revalidate(ctx context.Context, now time.Time) (CatalogText, error) {
	return c.get(ctx, now, true)
}

func (c *CatalogCache) get(ctx context.Context, now time.Time, force bool) (CatalogText, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loadLocked(ctx)

	if !force && c.data != nil && now.Sub(c.fetchedAt) < c.ttl {
		return CatalogText{Data: c.data, FetchedAt: c.fetchedAt}, nil
	}

	data, err := c.fetcher.Fetch(ctx)
	if err != nil {
		metrics.IncFetchFailures()
		if c.data != nil {
			c.logger.Warn("catalog fetch failed, serving cached copy",
				"error", err,
				"cached_at", c.fetchedAt.UTC().Format(time.RFC3339),
				"age_seconds", int(now.Sub(c.fetchedAt).Seconds()),
			)
			return CatalogText{Data: c.data, FetchedAt: c.fetchedAt, Stale: now.Sub(c.fetchedAt) >= c.ttl}, nil
		}
		if !errors.Is(err, ErrFetchFailure) {
			err = fmt.Errorf("%w: %w", ErrFetchFailure, err)
		}
		return CatalogText{}, fmt.Errorf("%w: %w", ErrNoCatalog, err)
	}

	if c.validate != nil {
		if verr := c.validate(data); verr != nil {
			if c.data != nil {
				c.logger.Warn("fetched catalog text rejected, serving cached copy",
					"error", verr,
					"cached_at", c.fetchedAt.UTC().Format(time.RFC3339),
				)
				return CatalogText{
					Data:      c.data,
					FetchedAt: c.fetchedAt,
					Stale:     now.Sub(c.fetchedAt) >= c.ttl,
					Rejected:  verr,
				}, nil
			}
			return CatalogText{}, fmt.Errorf("%w: %w", ErrNoCatalog, verr)
		}
	}

	if err := c.store.Save(ctx, data, now); err != nil {
		c.logger.Error("persisting catalog text failed", "error", err)
	}
	c.data = data
	c.fetchedAt = now

	return CatalogText{Data: data, FetchedAt: now, Fetched: true}, nil
}

// loadLocked reads the durable copy into memory the first time it is needed.
func (c *CatalogCache) loadLocked(ctx context.Context) {
	if c.loaded {
		return
	}
	data, ts, err := c.store.Load(ctx)
	switch {
	case err == nil:
		c.data = data
		c.fetchedAt = ts
		c.loaded = true
		c.logger.Info("loaded catalog text from cache", "bytes", len(data), "cached_at", ts.UTC().Format(time.RFC3339))
	case errors.Is(err, ErrNoCachedCatalog):
		c.loaded = true
	default:
		// Retried on the next call; the fetch path still works without it.
		c.logger.Warn("reading catalog cache failed", "error", err)
	}
}
