package tle

import (
	"math"
	"sort"
	"time"
)

// ElementRecord is a single object's parsed two-line element set.
// Records are immutable once a Catalog containing them has been published.
type ElementRecord struct {
	NORADID    int
	Name       string
	Line1      string
	Line2      string
	Epoch      time.Time
	MeanMotion float64 // radians per minute; 0 when the field was missing
}

// RevsPerDay returns the mean motion in revolutions per day.
func (r ElementRecord) RevsPerDay() float64 {
	return r.MeanMotion * minutesPerDay / (2 * math.Pi)
}

// Period returns the orbital period derived from the mean motion,
// or 0 if the mean motion is not positive.
func (r ElementRecord) Period() time.Duration {
	if r.MeanMotion <= 0 {
		return 0
	}
	return time.Duration(2 * math.Pi / r.MeanMotion * float64(time.Minute))
}

// EpochRange represents the minimum and maximum epoch times in a catalog.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Catalog is an immutable snapshot of element records keyed by catalog id.
// A new Catalog is built for every refresh and published as a whole.
type Catalog struct {
	Source     string
	FetchedAt  time.Time
	TTL        time.Duration
	EpochRange EpochRange
	Skipped    int

	records map[int]ElementRecord
	ids     []int
}

// BuildCatalog assembles a Catalog from parsed records. Duplicate ids keep
// the last occurrence in source order.
func BuildCatalog(records []ElementRecord, skipped int, fetchedAt time.Time, ttl time.Duration, source string) *Catalog {
	byID := make(map[int]ElementRecord, len(records))
	for _, rec := range records {
		byID[rec.NORADID] = rec
	}

	ids := make([]int, 0, len(byID))
	var er EpochRange
	for id, rec := range byID {
		ids = append(ids, id)
		if er.Min.IsZero() || rec.Epoch.Before(er.Min) {
			er.Min = rec.Epoch
		}
		if er.Max.IsZero() || rec.Epoch.After(er.Max) {
			er.Max = rec.Epoch
		}
	}
	sort.Ints(ids)

	return &Catalog{
		Source:     source,
		FetchedAt:  fetchedAt,
		TTL:        ttl,
		EpochRange: er,
		Skipped:    skipped,
		records:    byID,
		ids:        ids,
	}
}

// Lookup returns the record for id.
func (c *Catalog) Lookup(id int) (ElementRecord, bool) {
	rec, ok := c.records[id]
	return rec, ok
}

// Len returns the number of records in the catalog.
func (c *Catalog) Len() int {
	return len(c.records)
}

// IDs returns the catalog ids in ascending order. The returned slice is a copy.
func (c *Catalog) IDs() []int {
	out := make([]int, len(c.ids))
	copy(out, c.ids)
	return out
}

// Stale reports whether the catalog is older than its TTL at now.
func (c *Catalog) Stale(now time.Time) bool {
	return c.TTL > 0 && now.Sub(c.FetchedAt) >= c.TTL
}
