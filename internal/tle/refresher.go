package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/metrics"
)

// ErrEmptyCatalog is returned when a document parsed to zero records.
// The previously published catalog, if any, stays in place.
var ErrEmptyCatalog = errors.New("catalog document contained no valid records")

// RefreshEvent describes a newly published catalog.
type RefreshEvent struct {
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	Count     int       `json:"count"`
	Skipped   int       `json:"skipped"`
}

// Notifier is told about every catalog publication.
type Notifier interface {
	CatalogRefreshed(ctx context.Context, ev RefreshEvent) error
}

// RefreshResult reports what a refresh did.
type RefreshResult struct {
	Published bool // a new catalog snapshot was swapped in
	Fetched   bool // the text came from the network
	Stale     bool // a fetch failed and expired cached text was used
	Count     int
	Skipped   int
	FetchedAt time.Time
}

// Refresher turns catalog text into published Catalog snapshots.
type Refresher struct {
	cache    *CatalogCache
	store    *Store
	source   string
	clock    clockwork.Clock
	notifier Notifier
	logger   *slog.Logger

	mu sync.Mutex // serializes refreshes; readers never take it
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithClock sets the time source. Defaults to the real clock.
func WithClock(c clockwork.Clock) RefresherOption {
	return func(r *Refresher) { r.clock = c }
}

// WithNotifier registers a notifier called after each publication.
func WithNotifier(n Notifier) RefresherOption {
	return func(r *Refresher) { r.notifier = n }
}

// NewRefresher creates a Refresher publishing into store.
func NewRefresher(cache *CatalogCache, store *Store, source string, logger *slog.Logger, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		cache:  cache,
		store:  store,
		source: source,
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh obtains catalog text through the cache, parses it, and publishes a
// new snapshot if the text changed since the current one.
func (r *Refresher) Refresh(ctx context.Context) (RefreshResult, error) {
	return r.refresh(ctx, false)
}

// ForceRefresh is Refresh, but bypasses the cache TTL.
func (r *Refresher) ForceRefresh(ctx context.Context) (RefreshResult, error) {
	return r.refresh(ctx, true)
}

func (r *Refresher) refresh(ctx context.Context, force bool) (RefreshResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.clock.Now()
	var (
		text CatalogText
		err  error
	)
	if force {
		text, err = r.cache.Revalidate(ctx, start)
	} else {
		text, err = r.cache.GetCatalogText(ctx, start)
	}
	if err != nil {
		if errors.Is(err, ErrEmptyCatalog) {
			metrics.IncCatalogRefresh("empty")
		} else {
			metrics.IncCatalogRefresh("error")
		}
		return RefreshResult{}, fmt.Errorf("obtaining catalog text: %w", err)
	}

	res := RefreshResult{Fetched: text.Fetched, Stale: text.Stale, FetchedAt: text.FetchedAt}

	current := r.store.Get()
	if current != nil && current.FetchedAt.Equal(text.FetchedAt) {
		res.Count = current.Len()
		res.Skipped = current.Skipped
		if text.Rejected != nil {
			metrics.IncCatalogRefresh("empty")
			return res, fmt.Errorf("keeping previous snapshot: %w", text.Rejected)
		}
		metrics.IncCatalogRefresh("unchanged")
		return res, nil
	}

	parsed, err := Parse(bytes.NewReader(text.Data), r.logger)
	if err != nil {
		metrics.IncCatalogRefresh("error")
		return res, fmt.Errorf("parsing catalog text: %w", err)
	}
	metrics.AddParseSkipped(parsed.Skipped)
	res.Skipped = parsed.Skipped

	if len(parsed.Records) == 0 {
		metrics.IncCatalogRefresh("empty")
		r.logger.Warn("catalog text produced no records, keeping previous snapshot",
			"skipped", parsed.Skipped,
			"had_previous", current != nil,
		)
		return res, ErrEmptyCatalog
	}

	cat := BuildCatalog(parsed.Records, parsed.Skipped, text.FetchedAt, r.cache.TTL(), r.source)
	r.store.Set(cat)
	res.Published = true
	res.Count = cat.Len()

	metrics.IncCatalogRefresh("published")
	metrics.SetCatalogSize(cat.Len())
	r.logger.Info("catalog published",
		"count", cat.Len(),
		"skipped", parsed.Skipped,
		"fetched", text.Fetched,
		"stale", text.Stale,
		"fetched_at", text.FetchedAt.UTC().Format(time.RFC3339),
		"duration_ms", r.clock.Since(start).Milliseconds(),
	)

	if r.notifier != nil {
		ev := RefreshEvent{Source: r.source, FetchedAt: cat.FetchedAt, Count: cat.Len(), Skipped: cat.Skipped}
		if err := r.notifier.CatalogRefreshed(ctx, ev); err != nil {
			r.logger.Warn("catalog refresh notification failed", "error", err)
		}
	}

	return res, nil
}
