// Package passes finds the intervals during which objects are above a ground
// site's horizon.
package passes

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/metrics"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/propagation"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tle"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tracking"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/transform"
)

// DefaultStep is the scan step used when none is configured.
const DefaultStep = 30 * time.Second

// samples between context checks
const cancelCheckEvery = 256

// PassEvent is one interval above the horizon.
//
// Acquisition and Loss are the horizon crossings. MaxElevationTime is always a
// sample instant. Acquisition is strictly before MaxElevationTime except for a
// pass that is already up at the start of the search window: it is reported
// with Acquisition equal to the window start, and when the satellite is
// already descending MaxElevationTime equals Acquisition.
type PassEvent struct {
	Acquisition           time.Time     `json:"aos"`
	Loss                  time.Time     `json:"los"`
	MaxElevationDeg       float64       `json:"max_elevation_deg"`
	MaxElevationTime      time.Time     `json:"max_elevation_time"`
	Duration              time.Duration `json:"-"`
	AcquisitionAzimuthDeg float64       `json:"aos_azimuth_deg"`
	LossAzimuthDeg        float64       `json:"los_azimuth_deg"`
}

// Config controls the scan.
type Config struct {
	// Step between elevation samples. Crossing instants are only as precise
	// as this unless Interpolate is set.
	Step time.Duration
	// Interpolate places acquisition and loss at the linear zero crossing of
	// elevation between the two bracketing samples.
	Interpolate bool
	// Workers bounds how many objects are scanned concurrently.
	Workers int
}

// Engine runs pass searches against the current catalog snapshot.
type Engine struct {
	catalogs tracking.CatalogSource
	prop     *propagation.Propagator
	cfg      Config
	logger   *slog.Logger
}

// NewEngine creates an Engine, filling zero Config fields with defaults.
func NewEngine(catalogs tracking.CatalogSource, prop *propagation.Propagator, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Engine{catalogs: catalogs, prop: prop, cfg: cfg, logger: logger}
}

// PassesOver returns, for every requested id, the passes over site that begin
// and end within [start, end], in chronological order. A pass still above the
// horizon at end is not reported.
//
// Unknown ids fail the whole request with tracking.ErrNotFound before any
// scanning. A propagation failure for any object fails the request with an
// error wrapping propagation.ErrPropagation.
func (e *Engine) PassesOver(ctx context.Context, ids []int, site transform.Site, start, end time.Time) (map[int][]PassEvent, error) {
	cat := e.catalogs.Get()
	if cat == nil {
		return nil, tle.ErrNoCatalog
	}

	unique := make([]int, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		if _, ok := cat.Lookup(id); !ok {
			return nil, fmt.Errorf("%w: %d", tracking.ErrNotFound, id)
		}
		seen[id] = true
		unique = append(unique, id)
	}

	began := time.Now()
	out := make(map[int][]PassEvent, len(unique))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for _, id := range unique {
		g.Go(func() error {
			model, err := e.prop.Model(cat, id)
			if err != nil {
				return err
			}
			look := func(t time.Time) (transform.TopocentricState, error) {
				sv, err := model.StateAt(t)
				if err != nil {
					metrics.IncPropagationErrors("propagate")
					return transform.TopocentricState{}, err
				}
				return transform.ToTopocentric(sv, site), nil
			}
			found, err := e.scan(gctx, look, start, end)
			if err != nil {
				return fmt.Errorf("scanning NORAD %d: %w", id, err)
			}
			mu.Lock()
			out[id] = found
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, p := range out {
		total += len(p)
	}
	metrics.ObservePassScan(time.Since(began), total)
	e.logger.Debug("pass search complete",
		"objects", len(unique),
		"passes", total,
		"window_hours", end.Sub(start).Hours(),
		"duration_ms", time.Since(began).Milliseconds(),
	)
	return out, nil
}

type sample struct {
	t   time.Time
	el  float64
	az  float64
	set bool
}

// scan walks [start, end] at the configured step tracking whether the object
// is above the horizon. Elevation > 0 is up; elevation <= 0 is down.
func (e *Engine) scan(ctx context.Context, look lookFunc, start, end time.Time) ([]PassEvent, error) {
	passes := []PassEvent{}

	var (
		inPass bool
		cur    PassEvent
		prev   sample
	)

	for k := 0; ; k++ {
		t := start.Add(time.Duration(k) * e.cfg.Step)
		if t.After(end) {
			break
		}
		if k%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		st, err := look(t)
		if err != nil {
			return nil, err
		}
		s := sample{t: t, el: st.ElevationDeg, az: st.AzimuthDeg, set: true}

		switch {
		case !inPass && s.el > 0:
			inPass = true
			cur = PassEvent{
				Acquisition:           s.t,
				AcquisitionAzimuthDeg: s.az,
				MaxElevationDeg:       s.el,
				MaxElevationTime:      s.t,
			}
			if prev.set && e.cfg.Interpolate {
				at, az, err := crossing(look, prev, s)
				if err != nil {
					return nil, err
				}
				// The crossing lies strictly before the first sample above the horizon.
				if !at.Before(s.t) {
					at = s.t.Add(-time.Nanosecond)
				}
				cur.Acquisition, cur.AcquisitionAzimuthDeg = at, az
			}

		case inPass && s.el > 0:
			if s.el > cur.MaxElevationDeg {
				cur.MaxElevationDeg = s.el
				cur.MaxElevationTime = s.t
			}

		case inPass:
			inPass = false
			cur.Loss, cur.LossAzimuthDeg = s.t, s.az
			if e.cfg.Interpolate {
				at, az, err := crossing(look, prev, s)
				if err != nil {
					return nil, err
				}
				cur.Loss, cur.LossAzimuthDeg = at, az
			}
			cur.Duration = cur.Loss.Sub(cur.Acquisition)
			passes = append(passes, cur)
		}

		prev = s
	}

	return passes, nil
}

// lookFunc returns the look angles of one object from one site at t.
type lookFunc func(t time.Time) (transform.TopocentricState, error)

// crossing estimates where elevation passes through zero between a and b,
// whose elevations straddle the horizon, and the azimuth there.
func crossing(look lookFunc, a, b sample) (time.Time, float64, error) {
	frac := a.el / (a.el - b.el)
	if frac < 0 || frac > 1 {
		frac = 1
	}
	at := a.t.Add(time.Duration(frac * float64(b.t.Sub(a.t))))
	switch {
	case !at.After(a.t):
		return a.t, a.az, nil
	case !at.Before(b.t):
		return b.t, b.az, nil
	}
	st, err := look(at)
	if err != nil {
		return time.Time{}, 0, err
	}
	return at, st.AzimuthDeg, nil
}
