package passes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/propagation"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tle"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tracking"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/transform"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const testDoc = `ISS (ZARYA)
1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005
2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09
STARLINK-1007
1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995
2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05
GEO TEST
1 99901U 24001A   24100.50000000  .00000000  00000-0  00000-0 0  9990
2 99901   0.0100  80.0000 0001000   0.0000   0.0000  1.00270000    01
`

const (
	issID      = 25544
	starlinkID = 44713
	geoID      = 99901
)

var t0 = time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store *tle.Store
	prop  *propagation.Propagator
	svc   *tracking.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	res, err := tle.Parse(strings.NewReader(testDoc), testLogger)
	require.NoError(t, err)
	require.Len(t, res.Records, 3)

	store := tle.NewStore()
	store.Set(tle.BuildCatalog(res.Records, res.Skipped, t0, 24*time.Hour, "test"))
	prop := propagation.NewPropagator(propagation.DefaultMaxEpochAge, testLogger)
	return fixture{store: store, prop: prop, svc: tracking.NewService(store, prop, 0, testLogger)}
}

func (f fixture) engine(cfg Config) *Engine {
	return NewEngine(f.store, f.prop, cfg, testLogger)
}

func mustSite(t *testing.T, lat, lon, h float64) transform.Site {
	t.Helper()
	s, err := transform.NewSite(lat, lon, h)
	require.NoError(t, err)
	return s
}

// checkPasses asserts the invariants every result must hold.
func checkPasses(t *testing.T, passes []PassEvent, start, end time.Time) {
	t.Helper()
	for i, p := range passes {
		assert.False(t, p.Acquisition.Before(start), "pass %d acquisition before window", i)
		assert.False(t, p.Loss.After(end), "pass %d loss after window", i)
		assert.False(t, p.MaxElevationTime.Before(p.Acquisition), "pass %d max before acquisition", i)
		assert.False(t, p.MaxElevationTime.After(p.Loss), "pass %d max after loss", i)
		if p.Acquisition.After(start) {
			assert.True(t, p.Acquisition.Before(p.MaxElevationTime), "pass %d acquisition not strictly before max", i)
		}
		assert.Greater(t, p.MaxElevationDeg, 0.0)
		assert.LessOrEqual(t, p.MaxElevationDeg, 90.0)
		assert.GreaterOrEqual(t, p.Duration, time.Duration(0))
		assert.Equal(t, p.Loss.Sub(p.Acquisition), p.Duration)
		assert.GreaterOrEqual(t, p.AcquisitionAzimuthDeg, 0.0)
		assert.Less(t, p.AcquisitionAzimuthDeg, 360.0)
		assert.GreaterOrEqual(t, p.LossAzimuthDeg, 0.0)
		assert.Less(t, p.LossAzimuthDeg, 360.0)
		if i > 0 {
			assert.False(t, p.Acquisition.Before(passes[i-1].Loss), "pass %d overlaps previous", i)
		}
	}
}

func TestLEOPassesOverEquatorialSite(t *testing.T) {
	f := newFixture(t)
	site := mustSite(t, 0, 0, 0)
	end := t0.Add(24 * time.Hour)

	for _, interpolate := range []bool{true, false} {
		got, err := f.engine(Config{Step: 30 * time.Second, Interpolate: interpolate}).
			PassesOver(context.Background(), []int{issID}, site, t0, end)
		require.NoError(t, err)

		passes := got[issID]
		require.NotEmpty(t, passes, "interpolate=%v", interpolate)
		assert.Less(t, len(passes), 16)
		checkPasses(t, passes, t0, end)
		for _, p := range passes {
			assert.Greater(t, p.Duration, time.Duration(0))
			assert.LessOrEqual(t, p.Duration, 20*time.Minute)
		}
	}
}

func TestGridSnappedInstants(t *testing.T) {
	f := newFixture(t)
	step := 30 * time.Second
	got, err := f.engine(Config{Step: step}).
		PassesOver(context.Background(), []int{issID}, mustSite(t, 0, 0, 0), t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, got[issID])

	for _, p := range got[issID] {
		for _, ts := range []time.Time{p.Acquisition, p.MaxElevationTime, p.Loss} {
			assert.Zero(t, ts.Sub(t0)%step, "instant %s off the sampling grid", ts)
		}
	}
}

func TestInterpolationRefinesGrid(t *testing.T) {
	f := newFixture(t)
	site := mustSite(t, 0, 0, 0)
	end := t0.Add(24 * time.Hour)

	snapped, err := f.engine(Config{Step: 30 * time.Second}).PassesOver(context.Background(), []int{issID}, site, t0, end)
	require.NoError(t, err)
	smooth, err := f.engine(Config{Step: 30 * time.Second, Interpolate: true}).PassesOver(context.Background(), []int{issID}, site, t0, end)
	require.NoError(t, err)
	require.Equal(t, len(snapped[issID]), len(smooth[issID]))

	for i := range snapped[issID] {
		a, b := snapped[issID][i], smooth[issID][i]
		assert.Equal(t, a.MaxElevationTime, b.MaxElevationTime)
		assert.False(t, b.Acquisition.After(a.Acquisition))
		assert.Less(t, a.Acquisition.Sub(b.Acquisition), 30*time.Second)
		assert.False(t, b.Loss.After(a.Loss))
		assert.Less(t, a.Loss.Sub(b.Loss), 30*time.Second)
	}
}

// A geostationary object on the far side of the Earth never rises.
func TestGEOBelowHorizonHasNoPasses(t *testing.T) {
	f := newFixture(t)

	sub, err := f.svc.StateAt(geoID, t0)
	require.NoError(t, err)
	site := mustSite(t, -sub.LatitudeDeg, sub.LongitudeDeg+180, 0)

	got, err := f.engine(Config{Step: 30 * time.Second, Interpolate: true}).
		PassesOver(context.Background(), []int{geoID}, site, t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got[geoID])
	assert.NotNil(t, got[geoID])
}

// Directly under a geostationary object the pass never ends inside the
// window, so nothing is reported.
func TestGEOOverheadOpenPassNotReported(t *testing.T) {
	f := newFixture(t)

	sub, err := f.svc.StateAt(geoID, t0)
	require.NoError(t, err)
	site := mustSite(t, sub.LatitudeDeg, sub.LongitudeDeg, 0)

	got, err := f.engine(Config{}).PassesOver(context.Background(), []int{geoID}, site, t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got[geoID])
}

func TestPassOpenAtEndNotReported(t *testing.T) {
	f := newFixture(t)
	site := mustSite(t, 0, 0, 0)
	e := f.engine(Config{Step: 30 * time.Second, Interpolate: true})

	full, err := e.PassesOver(context.Background(), []int{issID}, site, t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, full[issID])
	first := full[issID][0]
	require.True(t, first.MaxElevationTime.Before(first.Loss))

	// Cut the window while the first pass is still up.
	cut, err := e.PassesOver(context.Background(), []int{issID}, site, t0, first.MaxElevationTime)
	require.NoError(t, err)
	assert.Empty(t, cut[issID])
}

// Starting the window while the satellite is already descending reports the
// pass from the window start, with the maximum at that same instant.
func TestPassOpenAtStartWhileDescending(t *testing.T) {
	f := newFixture(t)
	site := mustSite(t, 0, 0, 0)
	step := 30 * time.Second
	e := f.engine(Config{Step: step})

	full, err := e.PassesOver(context.Background(), []int{issID}, site, t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, full[issID])
	first := full[issID][0]
	start := first.MaxElevationTime.Add(step)
	require.True(t, start.Before(first.Loss), "pass too short to start inside its descent")

	got, err := e.PassesOver(context.Background(), []int{issID}, site, start, start.Add(time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, got[issID])
	p := got[issID][0]
	assert.Equal(t, start, p.Acquisition)
	assert.Equal(t, p.Acquisition, p.MaxElevationTime)
	assert.Equal(t, first.Loss, p.Loss)
	assert.Less(t, p.MaxElevationDeg, first.MaxElevationDeg)
}

func TestMultipleObjectsAndDuplicates(t *testing.T) {
	f := newFixture(t)
	got, err := f.engine(Config{Workers: 2}).PassesOver(context.Background(),
		[]int{issID, starlinkID, issID}, mustSite(t, 40.7128, -74.006, 0.01), t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, issID)
	assert.Contains(t, got, starlinkID)
}

func TestUnknownIDFailsWholeRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine(Config{}).PassesOver(context.Background(), []int{issID, 12345}, mustSite(t, 0, 0, 0), t0, t0.Add(time.Hour))
	require.ErrorIs(t, err, tracking.ErrNotFound)
	assert.Contains(t, err.Error(), "12345")
}

func TestNoCatalog(t *testing.T) {
	e := NewEngine(tle.NewStore(), propagation.NewPropagator(0, testLogger), Config{}, testLogger)
	_, err := e.PassesOver(context.Background(), []int{issID}, mustSite(t, 0, 0, 0), t0, t0.Add(time.Hour))
	assert.ErrorIs(t, err, tle.ErrNoCatalog)
}

func TestPropagationFailureNamesObject(t *testing.T) {
	f := newFixture(t)
	late := t0.AddDate(0, 3, 0)
	_, err := f.engine(Config{}).PassesOver(context.Background(), []int{issID}, mustSite(t, 0, 0, 0), late, late.Add(time.Hour))
	require.ErrorIs(t, err, propagation.ErrPropagation)
	assert.Contains(t, err.Error(), "25544")
}

func TestCancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.engine(Config{}).PassesOver(ctx, []int{issID}, mustSite(t, 0, 0, 0), t0, t0.Add(24*time.Hour))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEmptyWindow(t *testing.T) {
	f := newFixture(t)
	got, err := f.engine(Config{}).PassesOver(context.Background(), []int{issID}, mustSite(t, 0, 0, 0), t0, t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got[issID])
}

// synthetic returns a lookFunc that reports elevations[k] at start + k*step.
func synthetic(start time.Time, step time.Duration, elevations ...float64) lookFunc {
	return func(t time.Time) (transform.TopocentricState, error) {
		d := t.Sub(start)
		k := int(d / step)
		el := elevations[k]
		if rem := d % step; rem != 0 {
			frac := float64(rem) / float64(step)
			el += (elevations[k+1] - el) * frac
		}
		return transform.TopocentricState{Time: t, ElevationDeg: el, AzimuthDeg: float64(k * 10)}, nil
	}
}

func TestScanStateMachine(t *testing.T) {
	step := time.Minute
	e := &Engine{cfg: Config{Step: step}}

	tests := []struct {
		name       string
		elevations []float64
		want       [][3]int // acquisition, max, loss sample indices
	}{
		{"never up", []float64{-5, -1, 0, -3}, nil},
		{"single pass", []float64{-2, 3, 8, 5, -1}, [][3]int{{1, 2, 4}}},
		{"zero is down", []float64{0, 1, 0, 2, 0}, [][3]int{{1, 1, 2}, {3, 3, 4}}},
		{"up at start", []float64{4, 6, -1}, [][3]int{{0, 1, 2}}},
		{"open at end", []float64{-1, 2, 5}, nil},
		{"first max kept on plateau", []float64{-1, 5, 5, -2}, [][3]int{{1, 1, 3}}},
		{"two passes", []float64{-1, 1, -1, -1, 2, 3, 0}, [][3]int{{1, 1, 2}, {4, 5, 6}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			end := t0.Add(time.Duration(len(tt.elevations)-1) * step)
			got, err := e.scan(context.Background(), synthetic(t0, step, tt.elevations...), t0, end)
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i, w := range tt.want {
				at := func(k int) time.Time { return t0.Add(time.Duration(k) * step) }
				assert.Equal(t, at(w[0]), got[i].Acquisition)
				assert.Equal(t, at(w[1]), got[i].MaxElevationTime)
				assert.Equal(t, at(w[2]), got[i].Loss)
				assert.Equal(t, tt.elevations[w[1]], got[i].MaxElevationDeg)
			}
		})
	}
}

func TestScanInterpolatedCrossings(t *testing.T) {
	step := time.Minute
	e := &Engine{cfg: Config{Step: step, Interpolate: true}}

	// Rises through zero a quarter of the way from sample 0 to 1, sets halfway
	// from sample 3 to 4.
	got, err := e.scan(context.Background(), synthetic(t0, step, -1, 3, 6, 2, -2), t0, t0.Add(4*step))
	require.NoError(t, err)
	require.Len(t, got, 1)

	p := got[0]
	assert.Equal(t, t0.Add(15*time.Second), p.Acquisition)
	assert.Equal(t, t0.Add(2*step), p.MaxElevationTime)
	assert.Equal(t, t0.Add(3*step+30*time.Second), p.Loss)
	assert.Equal(t, 3*time.Minute+15*time.Second, p.Duration)
	assert.True(t, p.Acquisition.Before(p.MaxElevationTime))

	// Starting exactly on the horizon, the crossing is the previous sample.
	got, err = e.scan(context.Background(), synthetic(t0, step, 0, 2, -2), t0, t0.Add(2*step))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, t0, got[0].Acquisition)
	assert.Equal(t, t0.Add(step+30*time.Second), got[0].Loss)
}

func TestScanPropagatesLookErrors(t *testing.T) {
	e := &Engine{cfg: Config{Step: time.Minute}}
	boom := errors.New("boom")
	_, err := e.scan(context.Background(), func(time.Time) (transform.TopocentricState, error) {
		return transform.TopocentricState{}, boom
	}, t0, t0.Add(time.Hour))
	assert.ErrorIs(t, err, boom)
}
