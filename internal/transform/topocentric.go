package transform

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/propagation"
)

// ErrInvalidSite is returned by NewSite for out-of-range coordinates.
var ErrInvalidSite = errors.New("invalid observer site")

// Site is a fixed ground observer. The Earth-fixed position and the
// horizon-frame rotation terms are computed once so a site can be reused
// across many samples.
type Site struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	HeightKm     float64

	ecef                           ECEF
	sinLat, cosLat, sinLon, cosLon float64
}

// TopocentricState is an object's direction and distance from a Site.
type TopocentricState struct {
	Time         time.Time
	ElevationDeg float64 // [-90, 90], 0 is the horizon
	AzimuthDeg   float64 // [0, 360), clockwise from north
	RangeKm      float64
}

// NewSite validates the coordinates and precomputes the site geometry.
// Longitude is normalized into (-180, 180].
func NewSite(latDeg, lonDeg, heightKm float64) (Site, error) {
	switch {
	case math.IsNaN(latDeg) || latDeg < -90 || latDeg > 90:
		return Site{}, fmt.Errorf("%w: latitude %v", ErrInvalidSite, latDeg)
	case math.IsNaN(lonDeg) || math.IsInf(lonDeg, 0):
		return Site{}, fmt.Errorf("%w: longitude %v", ErrInvalidSite, lonDeg)
	case math.IsNaN(heightKm) || math.IsInf(heightKm, 0) || heightKm < -wgs84A/2:
		return Site{}, fmt.Errorf("%w: height %v km", ErrInvalidSite, heightKm)
	}

	lonDeg = NormalizeLongitude(lonDeg)
	s := Site{
		LatitudeDeg:  latDeg,
		LongitudeDeg: lonDeg,
		HeightKm:     heightKm,
		ecef:         GeodeticToECEF(latDeg, lonDeg, heightKm),
	}
	s.sinLat, s.cosLat = math.Sincos(latDeg / degreesPerRadian)
	s.sinLon, s.cosLon = math.Sincos(lonDeg / degreesPerRadian)
	return s, nil
}

// ECEF returns the site's Earth-fixed position in km.
func (s Site) ECEF() ECEF { return s.ecef }

// ToTopocentric returns the look angles from site to the object described by sv.
func ToTopocentric(sv propagation.StateVector, site Site) TopocentricState {
	st := LookAngles(site, TEMEToECEF(sv.Position, sv.Time))
	st.Time = sv.Time
	return st
}

// LookAngles computes elevation, azimuth and range from site to an Earth-fixed
// target, rotating the range vector into the site's SEZ (south, east, zenith)
// frame (Vallado §4.4).
func LookAngles(site Site, target ECEF) TopocentricState {
	rx := target.X - site.ecef.X
	ry := target.Y - site.ecef.Y
	rz := target.Z - site.ecef.Z

	south := site.sinLat*site.cosLon*rx + site.sinLat*site.sinLon*ry - site.cosLat*rz
	east := -site.sinLon*rx + site.cosLon*ry
	zenith := site.cosLat*site.cosLon*rx + site.cosLat*site.sinLon*ry + site.sinLat*rz

	rng := math.Sqrt(south*south + east*east + zenith*zenith)
	if rng == 0 {
		return TopocentricState{ElevationDeg: 90}
	}

	el := math.Asin(clamp(zenith/rng, -1, 1)) * degreesPerRadian

	// North is -south in SEZ.
	az := math.Atan2(east, -south) * degreesPerRadian
	if az < 0 {
		az += 360
	}
	if az >= 360 {
		az = 0
	}

	return TopocentricState{
		ElevationDeg: el,
		AzimuthDeg:   az,
		RangeKm:      rng,
	}
}
