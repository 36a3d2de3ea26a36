// Package geodesic provides great-circle distance calculations between
// geographic coordinates, along with the path and spread measures used to
// describe trips, visits and locations.
package geodesic

import (
	"math"

	"github.com/golang/geo/s2"
)

const (
	// EarthRadiusMeters is the WGS84 mean Earth radius in meters
	EarthRadiusMeters = 6371008.8
)

// Point represents a GPS coordinate in decimal degrees
type Point struct {
	Lat float64
	Lon float64
}

// Distance returns the great-circle distance in meters between two points.
// Degenerate inputs that produce NaN are reported as 0.
func Distance(p1, p2 Point) float64 {
	a := s2.LatLngFromDegrees(p1.Lat, p1.Lon)
	b := s2.LatLngFromDegrees(p2.Lat, p2.Lon)
	d := a.Distance(b).Radians() * EarthRadiusMeters
	if math.IsNaN(d) {
		return 0
	}
	return d
}

// DistanceFromHome returns the distance in meters between a point and home
func DistanceFromHome(home, p Point) float64 {
	return Distance(home, p)
}

// PathLength sums the distances between consecutive points
func PathLength(points []Point) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}

// MaxPairwiseRadius approximates the spread of a path: the largest of the
// first-to-last distance and the distances of every interior point to both
// endpoints. It is not a minimum bounding circle and under-estimates the
// spread of paths that curve back on themselves.
func MaxPairwiseRadius(points []Point) float64 {
	n := len(points)
	if n < 2 {
		return 0
	}
	first, last := points[0], points[n-1]
	radius := Distance(first, last)
	for _, p := range points[1 : n-1] {
		radius = math.Max(radius, Distance(first, p))
		radius = math.Max(radius, Distance(last, p))
	}
	return radius
}

// MaxDistanceFrom returns the largest distance from center to any point
func MaxDistanceFrom(center Point, points []Point) float64 {
	var maxDist float64
	for _, p := range points {
		maxDist = math.Max(maxDist, Distance(center, p))
	}
	return maxDist
}

// Centroid returns the arithmetic mean of the coordinates
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var c Point
	for _, p := range points {
		c.Lat += p.Lat
		c.Lon += p.Lon
	}
	n := float64(len(points))
	return Point{Lat: c.Lat / n, Lon: c.Lon / n}
}

// WeightedCentroid blends two centroids by their weights
func WeightedCentroid(a Point, wa float64, b Point, wb float64) Point {
	total := wa + wb
	if total <= 0 {
		return Centroid([]Point{a, b})
	}
	return Point{
		Lat: (a.Lat*wa + b.Lat*wb) / total,
		Lon: (a.Lon*wa + b.Lon*wb) / total,
	}
}

// DistanceMetrics holds distance-from-home statistics in kilometers
type DistanceMetrics struct {
	TotalDistanceKM float64
	MaxDistanceKM   float64
	MinDistanceKM   float64
	TotalLocations  int
	AvgDistanceKM   float64
}

// CalculateMetrics computes distance-from-home metrics for a set of points
func CalculateMetrics(home Point, points []Point) DistanceMetrics {
	if len(points) == 0 {
		return DistanceMetrics{}
	}

	metrics := DistanceMetrics{
		TotalLocations: len(points),
		MinDistanceKM:  math.MaxFloat64,
	}

	var totalDistance float64
	for _, p := range points {
		distance := DistanceFromHome(home, p) / 1000
		totalDistance += distance

		if distance > metrics.MaxDistanceKM {
			metrics.MaxDistanceKM = distance
		}
		if distance < metrics.MinDistanceKM {
			metrics.MinDistanceKM = distance
		}
	}

	metrics.TotalDistanceKM = totalDistance
	metrics.AvgDistanceKM = totalDistance / float64(len(points))

	return metrics
}
