package propagation

import (
	"math"
	"time"
)

// StateVector is an inertial (TEME) state at an instant.
// Position is in km, velocity in km/s.
type StateVector struct {
	Time     time.Time
	Position [3]float64
	Velocity [3]float64
}

// Radius returns the distance from Earth's center in km.
func (s StateVector) Radius() float64 {
	return norm(s.Position)
}

// Speed returns the magnitude of the inertial velocity in km/s.
func (s StateVector) Speed() float64 {
	return norm(s.Velocity)
}

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}
