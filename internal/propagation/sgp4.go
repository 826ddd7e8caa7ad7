package propagation

import (
	"errors"
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/tle"
)

// ErrPropagation marks degenerate element data or an instant outside the
// element set's validity window. Retrying does not help.
var ErrPropagation = errors.New("propagation error")

// DefaultMaxEpochAge bounds how far from its epoch an element set is used.
const DefaultMaxEpochAge = 30 * 24 * time.Hour

// Plausible orbital radius in km. Anything outside is a failed propagation.
const (
	minRadiusKm = 6200.0
	maxRadiusKm = 50000.0
)

// go-satellite takes SGP4 error codes by value inside Propagate, so failures
// only show up as NaN or absurd output, which StateAt checks for.

// Model is an initialized SGP4/SDP4 model for one element set.
// It is immutable and safe for concurrent use.
type Model struct {
	sat         satellite.Satellite
	noradID     int
	epoch       time.Time
	maxEpochAge time.Duration
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithMaxEpochAge sets the validity window around the epoch. Zero disables the check.
func WithMaxEpochAge(d time.Duration) ModelOption {
	return func(m *Model) { m.maxEpochAge = d }
}

// NewModel initializes the propagator for rec.
//
// The element lines are checked before they reach go-satellite, which calls
// log.Fatal on fields it cannot parse.
func NewModel(rec tle.ElementRecord, opts ...ModelOption) (*Model, error) {
	if rec.MeanMotion <= 0 || math.IsNaN(rec.MeanMotion) {
		return nil, fmt.Errorf("%w: NORAD %d: non-positive mean motion", ErrPropagation, rec.NORADID)
	}
	if err := validateLines(rec.Line1, rec.Line2); err != nil {
		return nil, fmt.Errorf("%w: NORAD %d: %w", ErrPropagation, rec.NORADID, err)
	}

	sat := satellite.TLEToSat(rec.Line1, rec.Line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: NORAD %d: sgp4 init code=%d %s", ErrPropagation, rec.NORADID, sat.Error, sat.ErrorStr)
	}

	m := &Model{
		sat:         sat,
		noradID:     rec.NORADID,
		epoch:       rec.Epoch,
		maxEpochAge: DefaultMaxEpochAge,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// NORADID returns the catalog id the model was built from.
func (m *Model) NORADID() int { return m.noradID }

// Epoch returns the element set epoch.
func (m *Model) Epoch() time.Time { return m.epoch }

// StateAt propagates to t. Sub-second instants are linearly interpolated
// between the two enclosing whole seconds.
func (m *Model) StateAt(t time.Time) (StateVector, error) {
	t = t.UTC()
	if m.maxEpochAge > 0 {
		if age := t.Sub(m.epoch); age > m.maxEpochAge || age < -m.maxEpochAge {
			return StateVector{}, fmt.Errorf("%w: NORAD %d: %s is %s from epoch %s",
				ErrPropagation, m.noradID, t.Format(time.RFC3339), age.Round(time.Hour), m.epoch.Format(time.RFC3339))
		}
	}

	whole := t.Truncate(time.Second)
	pos, vel, err := m.propagate(whole)
	if err != nil {
		return StateVector{}, err
	}

	if frac := t.Sub(whole).Seconds(); frac > 0 {
		pos2, vel2, err := m.propagate(whole.Add(time.Second))
		if err != nil {
			return StateVector{}, err
		}
		for i := range pos {
			pos[i] += (pos2[i] - pos[i]) * frac
			vel[i] += (vel2[i] - vel[i]) * frac
		}
	}

	return StateVector{Time: t, Position: pos, Velocity: vel}, nil
}

func (m *Model) propagate(t time.Time) ([3]float64, [3]float64, error) {
	p, v := satellite.Propagate(m.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	pos := [3]float64{p.X, p.Y, p.Z}
	vel := [3]float64{v.X, v.Y, v.Z}

	for i := 0; i < 3; i++ {
		if math.IsNaN(pos[i]) || math.IsInf(pos[i], 0) || math.IsNaN(vel[i]) || math.IsInf(vel[i], 0) {
			return pos, vel, fmt.Errorf("%w: NORAD %d: output is NaN/Inf at %s", ErrPropagation, m.noradID, t.Format(time.RFC3339))
		}
	}
	if r := norm(pos); r < minRadiusKm || r > maxRadiusKm {
		return pos, vel, fmt.Errorf("%w: NORAD %d: unreasonable radius %.1f km at %s", ErrPropagation, m.noradID, r, t.Format(time.RFC3339))
	}
	return pos, vel, nil
}

// StateAt is a one-shot propagation of rec to t with the default epoch window.
func StateAt(rec tle.ElementRecord, t time.Time) (StateVector, error) {
	m, err := NewModel(rec)
	if err != nil {
		return StateVector{}, err
	}
	return m.StateAt(t)
}

// validateLines requires full-length lines whose numeric fields parse the
// way go-satellite reads them.
func validateLines(line1, line2 string) error {
	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' || line2[0] != '2' {
		return errors.New("line numbers must be 1 and 2")
	}
	return tle.CheckNumericFields(line1, line2)
}
