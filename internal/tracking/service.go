// Package tracking answers "where is object X at time T" against the current
// catalog snapshot, and samples that answer over time grids.
package tracking

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/metrics"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/propagation"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tle"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/transform"
)

var (
	// ErrNotFound means the catalog id is not in the current snapshot.
	ErrNotFound = errors.New("unknown catalog id")

	// ErrInvalidStep rejects non-positive sampling steps.
	ErrInvalidStep = errors.New("invalid step")

	// ErrWindowTooLarge rejects groundtracks with more samples than allowed.
	ErrWindowTooLarge = errors.New("window has too many samples")
)

// DefaultMaxPoints caps a materialized groundtrack.
const DefaultMaxPoints = 20000

// CatalogSource provides the current catalog snapshot. *tle.Store implements it.
type CatalogSource interface {
	Get() *tle.Catalog
}

// GroundPoint is one groundtrack sample.
type GroundPoint struct {
	Time         time.Time `json:"time"`
	LatitudeDeg  float64   `json:"lat"`
	LongitudeDeg float64   `json:"lon"`
	AltitudeKm   float64   `json:"alt_km"`
}

// Summary describes one object at an instant.
type Summary struct {
	NORADID       int       `json:"norad_id"`
	Name          string    `json:"name"`
	Epoch         time.Time `json:"epoch"`
	Time          time.Time `json:"time"`
	LatitudeDeg   float64   `json:"lat"`
	LongitudeDeg  float64   `json:"lon"`
	AltitudeKm    float64   `json:"altitude_km"`
	SpeedKmS      float64   `json:"velocity_kms"`
	PeriodMinutes float64   `json:"period_minutes"`
}

// Service composes the propagator and coordinate transforms.
type Service struct {
	catalogs  CatalogSource
	prop      *propagation.Propagator
	maxPoints int
	logger    *slog.Logger
}

// NewService creates a Service. maxPoints <= 0 uses DefaultMaxPoints.
func NewService(catalogs CatalogSource, prop *propagation.Propagator, maxPoints int, logger *slog.Logger) *Service {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	return &Service{
		catalogs:  catalogs,
		prop:      prop,
		maxPoints: maxPoints,
		logger:    logger,
	}
}

// Snapshot returns the current catalog or tle.ErrNoCatalog.
func (s *Service) Snapshot() (*tle.Catalog, error) {
	cat := s.catalogs.Get()
	if cat == nil {
		return nil, tle.ErrNoCatalog
	}
	return cat, nil
}

// Record returns the element record for id from the current snapshot.
func (s *Service) Record(id int) (tle.ElementRecord, error) {
	cat, err := s.Snapshot()
	if err != nil {
		return tle.ElementRecord{}, err
	}
	rec, ok := cat.Lookup(id)
	if !ok {
		return tle.ElementRecord{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return rec, nil
}

// IDs returns up to limit catalog ids in ascending order; limit <= 0 means all.
func (s *Service) IDs(limit int) ([]int, error) {
	cat, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	ids := cat.IDs()
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	return ids, nil
}

// StateAt returns the geodetic state of id at t.
func (s *Service) StateAt(id int, t time.Time) (transform.GeodeticState, error) {
	cat, err := s.Snapshot()
	if err != nil {
		return transform.GeodeticState{}, err
	}
	return s.stateIn(cat, id, t)
}

func (s *Service) stateIn(cat *tle.Catalog, id int, t time.Time) (transform.GeodeticState, error) {
	if _, ok := cat.Lookup(id); !ok {
		return transform.GeodeticState{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	sv, err := s.prop.StateAt(cat, id, t)
	if err != nil {
		return transform.GeodeticState{}, err
	}
	return transform.ToGeodetic(sv), nil
}

// Summary returns name, position, speed and orbital period of id at t.
func (s *Service) Summary(id int, t time.Time) (Summary, error) {
	cat, err := s.Snapshot()
	if err != nil {
		return Summary{}, err
	}
	g, err := s.stateIn(cat, id, t)
	if err != nil {
		return Summary{}, err
	}
	rec, _ := cat.Lookup(id)
	return Summary{
		NORADID:       id,
		Name:          rec.Name,
		Epoch:         rec.Epoch,
		Time:          g.Time,
		LatitudeDeg:   g.LatitudeDeg,
		LongitudeDeg:  g.LongitudeDeg,
		AltitudeKm:    g.AltitudeKm,
		SpeedKmS:      g.SpeedKmS,
		PeriodMinutes: rec.Period().Minutes(),
	}, nil
}

// SampleCount returns how many instants start + k*step (k >= 0) fall at or
// before end. It is 0 when end is before start.
func SampleCount(start, end time.Time, step time.Duration) (int, error) {
	if step <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidStep, step)
	}
	if end.Before(start) {
		return 0, nil
	}
	return int(end.Sub(start)/step) + 1, nil
}

// Groundtrack samples id at start, start+step, ... up to and including end.
// The whole track is computed against a single catalog snapshot.
func (s *Service) Groundtrack(id int, start, end time.Time, step time.Duration) ([]GroundPoint, error) {
	n, err := SampleCount(start, end, step)
	if err != nil {
		return nil, err
	}
	if n > s.maxPoints {
		return nil, fmt.Errorf("%w: %d samples, limit %d", ErrWindowTooLarge, n, s.maxPoints)
	}

	points := make([]GroundPoint, 0, n)
	for p, err := range s.GroundtrackSeq(id, start, end, step) {
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	metrics.ObserveGroundtrack(len(points))
	s.logger.Debug("groundtrack computed", "norad_id", id, "points", len(points), "step", step.String())
	return points, nil
}

// GroundtrackSeq is the lazy form of Groundtrack. Points are computed as the
// sequence is consumed; the first error ends the sequence. It is not limited
// by the maximum point count.
func (s *Service) GroundtrackSeq(id int, start, end time.Time, step time.Duration) iter.Seq2[GroundPoint, error] {
	return func(yield func(GroundPoint, error) bool) {
		if step <= 0 {
			yield(GroundPoint{}, fmt.Errorf("%w: %s", ErrInvalidStep, step))
			return
		}
		cat, err := s.Snapshot()
		if err != nil {
			yield(GroundPoint{}, err)
			return
		}
		if _, ok := cat.Lookup(id); !ok {
			yield(GroundPoint{}, fmt.Errorf("%w: %d", ErrNotFound, id))
			return
		}

		for k := 0; ; k++ {
			t := start.Add(time.Duration(k) * step)
			if t.After(end) {
				return
			}
			g, err := s.stateIn(cat, id, t)
			if err != nil {
				yield(GroundPoint{}, err)
				return
			}
			if !yield(GroundPoint{Time: g.Time, LatitudeDeg: g.LatitudeDeg, LongitudeDeg: g.LongitudeDeg, AltitudeKm: g.AltitudeKm}, nil) {
				return
			}
		}
	}
}
