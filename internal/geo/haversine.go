// Package geo implements the great-circle distance calculation used
// by the candidate generator and pair ranker (spec §4.5, §4.6).
package geo

import "math"

const earthRadiusMetres = 6371008.8 // WGS84 mean radius

// HaversineMetres returns the great-circle distance between two
// WGS84 points in metres.
func HaversineMetres(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMetres * c
}

// CoordEpsilon is the tolerance for "same coordinate" comparisons,
// per the design note in spec §9 — the staging store's own primary
// key uniqueness check still uses exact equality at insert time.
// The candidate generator uses CoordEqual as a fast path: two rows at
// the same point skip the trig call entirely instead of relying on
// HaversineMetres happening to round to zero.
const CoordEpsilon = 1e-7

// CoordEqual reports whether two coordinates are equal within
// CoordEpsilon.
func CoordEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= CoordEpsilon
}
