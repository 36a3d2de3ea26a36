// Package aoi provides circular geofences ("areas of interest") used to mark
// fixes at home, at a destination or at a registered store.
package aoi

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/stuartshay/trajectory-worker/internal/geodesic"
)

// MinRadius is the smallest radius in meters a geofence may have
const MinRadius = 30.0

// AreaOfInterest is a named circular geofence. Radii below MinRadius are
// raised to MinRadius at construction.
type AreaOfInterest struct {
	Name   string
	Center geodesic.Point
	Radius float64

	bound orb.Bound
}

// New creates a geofence around the given center
func New(name string, lat, lon, radius float64) AreaOfInterest {
	if radius < MinRadius {
		radius = MinRadius
	}
	center := geodesic.Point{Lat: lat, Lon: lon}
	// pad the prefilter box so rounding never excludes a boundary point
	bound := geo.NewBoundAroundPoint(orb.Point{lon, lat}, radius*1.01+1)
	return AreaOfInterest{Name: name, Center: center, Radius: radius, bound: bound}
}

// Contains reports whether a point lies strictly inside the geofence
func (a AreaOfInterest) Contains(p geodesic.Point) bool {
	if !a.bound.IsEmpty() && !a.bound.Contains(orb.Point{p.Lon, p.Lat}) {
		return false
	}
	return geodesic.Distance(a.Center, p) < a.Radius
}

// Within answers membership for a batch of points
func (a AreaOfInterest) Within(points []geodesic.Point) []bool {
	inside := make([]bool, len(points))
	for i, p := range points {
		inside[i] = a.Contains(p)
	}
	return inside
}

// DistanceTo returns the distance in meters from the geofence center to p
func (a AreaOfInterest) DistanceTo(p geodesic.Point) float64 {
	return geodesic.Distance(a.Center, p)
}
