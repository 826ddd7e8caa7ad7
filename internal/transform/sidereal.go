// Package transform converts inertial TEME state vectors into Earth-fixed,
// geodetic and observer-relative coordinates.
//
// TEME to ECEF uses a rotation by GMST only (TEME → PEF ≈ ECEF). Polar motion
// and the equation of the equinoxes are ignored; the error is tens of meters,
// far below what pass timing at second resolution can see.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3-4.
package transform

import (
	"math"
	"time"
)

const (
	jdJ2000          = 2451545.0
	daysPerCentury   = 36525.0
	secondsPerDay    = 86400.0
	degreesPerRadian = 180.0 / math.Pi
)

// OmegaEarth is Earth's rotation rate in rad/s.
const OmegaEarth = 7.292115146706979e-5

// JulianDate returns the Julian Date of t (taken as UTC).
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	year, month := t.Year(), int(t.Month())
	if month <= 2 {
		year--
		month += 12
	}

	century := math.Floor(float64(year) / 100)
	gregorian := 2 - century + math.Floor(century/4)

	dayFraction := (float64(t.Hour()) +
		float64(t.Minute())/60 +
		(float64(t.Second())+float64(t.Nanosecond())/1e9)/3600) / 24

	return math.Floor(365.25*float64(year+4716)) +
		math.Floor(30.6001*float64(month+1)) +
		float64(t.Day()) + gregorian - 1524.5 + dayFraction
}

// GMST returns Greenwich Mean Sidereal Time in radians, in [0, 2π), using the
// IAU-82 polynomial (Vallado eq. 3-47) with UTC standing in for UT1.
func GMST(t time.Time) float64 {
	tu := (JulianDate(t) - jdJ2000) / daysPerCentury

	// Seconds of time; 876600h = 3155760000 s.
	sec := 67310.54841 +
		(3155760000.0+8640184.812866)*tu +
		0.093104*tu*tu -
		6.2e-6*tu*tu*tu

	sec = math.Mod(sec, secondsPerDay)
	if sec < 0 {
		sec += secondsPerDay
	}
	return sec / secondsPerDay * 2 * math.Pi
}
