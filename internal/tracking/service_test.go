package tracking

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/propagation"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tle"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const testDoc = `ISS (ZARYA)
1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005
2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09
STARLINK-1007
1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995
2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05
`

var t0 = time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, maxPoints int) *Service {
	t.Helper()
	res, err := tle.Parse(strings.NewReader(testDoc), testLogger)
	require.NoError(t, err)

	store := tle.NewStore()
	store.Set(tle.BuildCatalog(res.Records, res.Skipped, t0, 24*time.Hour, "test"))
	return NewService(store, propagation.NewPropagator(propagation.DefaultMaxEpochAge, testLogger), maxPoints, testLogger)
}

func TestStateAt(t *testing.T) {
	svc := newTestService(t, 0)

	g, err := svc.StateAt(25544, t0)
	require.NoError(t, err)
	assert.Equal(t, t0, g.Time)
	assert.LessOrEqual(t, g.LatitudeDeg, 51.7)
	assert.GreaterOrEqual(t, g.LatitudeDeg, -51.7)
	assert.Greater(t, g.LongitudeDeg, -180.0)
	assert.LessOrEqual(t, g.LongitudeDeg, 180.0)
	assert.InDelta(t, 420, g.AltitudeKm, 60)
	assert.InDelta(t, 7.66, g.SpeedKmS, 0.15)
}

func TestStateAtNotFound(t *testing.T) {
	svc := newTestService(t, 0)
	_, err := svc.StateAt(1, t0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStateAtNoCatalog(t *testing.T) {
	svc := NewService(tle.NewStore(), propagation.NewPropagator(0, testLogger), 0, testLogger)
	_, err := svc.StateAt(25544, t0)
	assert.ErrorIs(t, err, tle.ErrNoCatalog)
	_, err = svc.IDs(0)
	assert.ErrorIs(t, err, tle.ErrNoCatalog)
}

func TestStateAtOutsideEpochWindow(t *testing.T) {
	svc := newTestService(t, 0)
	_, err := svc.StateAt(25544, t0.AddDate(0, 3, 0))
	assert.ErrorIs(t, err, propagation.ErrPropagation)
}

func TestGroundtrackCardinality(t *testing.T) {
	svc := newTestService(t, 0)

	points, err := svc.Groundtrack(25544, t0, t0.Add(300*time.Second), 30*time.Second)
	require.NoError(t, err)
	require.Len(t, points, 11)
	for i, p := range points {
		assert.Equal(t, t0.Add(time.Duration(i)*30*time.Second), p.Time)
		assert.Greater(t, p.LongitudeDeg, -180.0)
		assert.LessOrEqual(t, p.LongitudeDeg, 180.0)
	}
}

func TestGroundtrackMatchesStateAt(t *testing.T) {
	svc := newTestService(t, 0)

	points, err := svc.Groundtrack(44713, t0, t0.Add(95*time.Second), 30*time.Second)
	require.NoError(t, err)
	require.Len(t, points, 4) // 0, 30, 60, 90

	g, err := svc.StateAt(44713, t0.Add(60*time.Second))
	require.NoError(t, err)
	assert.Equal(t, g.LatitudeDeg, points[2].LatitudeDeg)
	assert.Equal(t, g.LongitudeDeg, points[2].LongitudeDeg)
}

func TestGroundtrackEdges(t *testing.T) {
	svc := newTestService(t, 0)

	points, err := svc.Groundtrack(25544, t0, t0.Add(-time.Minute), 30*time.Second)
	require.NoError(t, err)
	assert.Empty(t, points)

	points, err = svc.Groundtrack(25544, t0, t0, 30*time.Second)
	require.NoError(t, err)
	assert.Len(t, points, 1)

	_, err = svc.Groundtrack(25544, t0, t0.Add(time.Minute), 0)
	assert.ErrorIs(t, err, ErrInvalidStep)

	_, err = svc.Groundtrack(99999, t0, t0.Add(time.Minute), time.Second)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGroundtrackWindowLimit(t *testing.T) {
	svc := newTestService(t, 10)
	_, err := svc.Groundtrack(25544, t0, t0.Add(10*time.Second), time.Second)
	assert.ErrorIs(t, err, ErrWindowTooLarge)

	points, err := svc.Groundtrack(25544, t0, t0.Add(9*time.Second), time.Second)
	require.NoError(t, err)
	assert.Len(t, points, 10)
}

func TestGroundtrackSeqStopsEarly(t *testing.T) {
	svc := newTestService(t, 0)

	var got int
	for p, err := range svc.GroundtrackSeq(25544, t0, t0.Add(24*time.Hour), time.Minute) {
		require.NoError(t, err)
		assert.Equal(t, t0.Add(time.Duration(got)*time.Minute), p.Time)
		got++
		if got == 5 {
			break
		}
	}
	assert.Equal(t, 5, got)
}

func TestGroundtrackSeqReportsErrors(t *testing.T) {
	svc := newTestService(t, 0)

	var errs []error
	for _, err := range svc.GroundtrackSeq(1, t0, t0.Add(time.Hour), time.Minute) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrNotFound)
}

func TestSummary(t *testing.T) {
	svc := newTestService(t, 0)

	s, err := svc.Summary(25544, t0)
	require.NoError(t, err)
	assert.Equal(t, 25544, s.NORADID)
	assert.Equal(t, "ISS (ZARYA)", s.Name)
	assert.InDelta(t, 1440/15.5, s.PeriodMinutes, 1e-6)
	assert.InDelta(t, 7.66, s.SpeedKmS, 0.15)
	assert.Equal(t, time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC), s.Epoch)
}

func TestIDs(t *testing.T) {
	svc := newTestService(t, 0)

	ids, err := svc.IDs(0)
	require.NoError(t, err)
	assert.Equal(t, []int{25544, 44713}, ids)

	ids, err = svc.IDs(1)
	require.NoError(t, err)
	assert.Equal(t, []int{25544}, ids)
}

func TestSampleCount(t *testing.T) {
	n, err := SampleCount(t0, t0.Add(300*time.Second), 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	n, err = SampleCount(t0, t0.Add(299*time.Second), 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	_, err = SampleCount(t0, t0, -time.Second)
	assert.ErrorIs(t, err, ErrInvalidStep)
}
