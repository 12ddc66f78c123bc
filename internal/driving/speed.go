package driving

import (
	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius
const EarthRadiusMeters = 6371000.0

// Distance returns the great-circle distance between two fixes in meters
func Distance(a, b LocationFix) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lng)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// DeriveSpeed estimates speed in m/s from two consecutive fixes. ok is false
// when the fixes are not strictly ordered in time.
func DeriveSpeed(prev, cur LocationFix) (speed float64, ok bool) {
	dt := cur.At.Sub(prev.At).Seconds()
	if dt <= 0 {
		return 0, false
	}
	return Distance(prev, cur) / dt, true
}
