package transform

import (
	"math"
	"time"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/propagation"
)

// WGS-84 ellipsoid, km.
const (
	wgs84A  = 6378.137
	wgs84F  = 1.0 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

// ECEF is an Earth-fixed position in km.
type ECEF struct {
	X, Y, Z float64
}

// GeodeticState is the subpoint of an object and its altitude above the ellipsoid.
type GeodeticState struct {
	Time         time.Time
	LatitudeDeg  float64 // [-90, 90]
	LongitudeDeg float64 // (-180, 180]
	AltitudeKm   float64
	SpeedKmS     float64 // inertial speed, >= 0
}

// TEMEToECEF rotates a TEME position about the z axis by GMST(t).
func TEMEToECEF(pos [3]float64, t time.Time) ECEF {
	return TEMEToECEFWithGMST(pos, GMST(t))
}

// TEMEToECEFWithGMST is TEMEToECEF with a precomputed GMST angle in radians.
func TEMEToECEFWithGMST(pos [3]float64, gmst float64) ECEF {
	sin, cos := math.Sincos(gmst)
	return ECEF{
		X: pos[0]*cos + pos[1]*sin,
		Y: -pos[0]*sin + pos[1]*cos,
		Z: pos[2],
	}
}

// ToGeodetic converts an inertial state vector to its geodetic subpoint.
func ToGeodetic(sv propagation.StateVector) GeodeticState {
	lat, lon, alt := ECEFToGeodetic(TEMEToECEF(sv.Position, sv.Time))
	return GeodeticState{
		Time:         sv.Time,
		LatitudeDeg:  lat,
		LongitudeDeg: lon,
		AltitudeKm:   alt,
		SpeedKmS:     sv.Speed(),
	}
}

// ECEFToGeodetic returns geodetic latitude and longitude in degrees and height
// above the WGS-84 ellipsoid in km. Latitude is found by fixed-point iteration,
// which converges to well under a millimeter in a few rounds for orbital radii.
func ECEFToGeodetic(p ECEF) (latDeg, lonDeg, altKm float64) {
	rho := math.Hypot(p.X, p.Y)
	lon := math.Atan2(p.Y, p.X)

	lat := math.Atan2(p.Z, rho*(1-wgs84E2))
	var n float64
	for i := 0; i < 6; i++ {
		sinLat := math.Sin(lat)
		n = wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(p.Z+wgs84E2*n*sinLat, rho)
	}

	sinLat, cosLat := math.Sincos(lat)
	n = wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	if math.Abs(cosLat) > 1e-10 {
		altKm = rho/cosLat - n
	} else {
		altKm = math.Abs(p.Z) - n*(1-wgs84E2)
	}

	latDeg = clamp(lat*degreesPerRadian, -90, 90)
	return latDeg, NormalizeLongitude(lon * degreesPerRadian), altKm
}

// GeodeticToECEF returns the Earth-fixed position of a geodetic point.
func GeodeticToECEF(latDeg, lonDeg, heightKm float64) ECEF {
	sinLat, cosLat := math.Sincos(latDeg / degreesPerRadian)
	sinLon, cosLon := math.Sincos(lonDeg / degreesPerRadian)

	// Prime vertical radius of curvature.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return ECEF{
		X: (n + heightKm) * cosLat * cosLon,
		Y: (n + heightKm) * cosLat * sinLon,
		Z: (n*(1-wgs84E2) + heightKm) * sinLat,
	}
}

// NormalizeLongitude wraps deg into (-180, 180].
func NormalizeLongitude(deg float64) float64 {
	l := math.Mod(deg, 360)
	switch {
	case l <= -180:
		l += 360
	case l > 180:
		l -= 360
	}
	return l
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
