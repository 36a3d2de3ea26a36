package trajectory

import (
	"math"

	"github.com/stuartshay/trajectory-worker/internal/geodesic"
)

// Location is a place formed by merging visits. Durations and Visits are in
// merge order.
type Location struct {
	ID           int
	Centroid     geodesic.Point
	Radius       float64
	Visits       []int
	Durations    []float64
	IsHome       Flag
	StoreID      int
	DistFromHome float64

	ArrivedFromHome int
	DepartedToHome  int

	spans      []Run
	visitRadii float64
	validCount int
}

// NVisits returns the number of merged visits
func (l *Location) NVisits() int {
	return len(l.Visits)
}

// NValidVisits returns the number of merged visits that met the minimum stay
func (l *Location) NValidVisits() int {
	return l.validCount
}

// TotalDuration returns the summed stay in seconds
func (l *Location) TotalDuration() float64 {
	var sum float64
	for _, d := range l.Durations {
		sum += d
	}
	return sum
}

func newLocation(id int, v Visit, t *Trajectory) Location {
	loc := Location{
		ID:           id,
		Centroid:     v.Centroid,
		Radius:       v.Radius,
		IsHome:       v.IsHome,
		StoreID:      v.StoreID,
		DistFromHome: v.DistFromHome,
		visitRadii:   v.Radius,
	}
	loc.add(v, t)
	return loc
}

func (l *Location) add(v Visit, t *Trajectory) {
	l.Visits = append(l.Visits, v.ID)
	l.Durations = append(l.Durations, v.Duration)
	l.spans = append(l.spans, Run{First: v.Start, Last: v.End})
	if v.Valid {
		l.validCount++
	}
	if t.ArrivedFromHome(v) == FlagYes {
		l.ArrivedFromHome++
	}
	if t.DepartedToHome(v) == FlagYes {
		l.DepartedToHome++
	}
}

// merge folds v into the location when its centroid is close enough, its
// home and store membership match and the recomputed radius still fits.
func (l *Location) merge(v Visit, t *Trajectory, radius float64) bool {
	if geodesic.Distance(l.Centroid, v.Centroid) > radius-0.5*(l.Radius-v.Radius) {
		return false
	}
	if l.IsHome != v.IsHome || l.StoreID != v.StoreID {
		return false
	}

	stay := l.TotalDuration()
	centroid := geodesic.WeightedCentroid(l.Centroid, stay, v.Centroid, v.Duration)

	newRadius := geodesic.MaxDistanceFrom(centroid, t.Points(v.Start, v.End))
	for _, span := range l.spans {
		newRadius = math.Max(newRadius, geodesic.MaxDistanceFrom(centroid, t.Points(span.First, span.Last)))
	}
	if newRadius > radius {
		return false
	}

	l.Centroid = centroid
	l.visitRadii = math.Max(l.visitRadii, v.Radius)
	l.Radius = math.Max(newRadius, l.visitRadii)
	l.DistFromHome = (stay*l.DistFromHome + v.Duration*v.DistFromHome) / (stay + v.Duration)
	l.add(v, t)
	return true
}

// MergeLocations folds visits into locations in temporal order. Each visit
// joins the first location that accepts it or seeds a new one.
func (t *Trajectory) MergeLocations(p LocationParams) {
	for k := range t.Visits {
		v := &t.Visits[k]
		merged := false
		for j := range t.Locations {
			if t.Locations[j].merge(*v, t, p.Radius) {
				v.LocationID = t.Locations[j].ID
				merged = true
				break
			}
		}
		if !merged {
			loc := newLocation(len(t.Locations)+1, *v, t)
			v.LocationID = loc.ID
			t.Locations = append(t.Locations, loc)
		}
	}

	for _, loc := range t.Locations {
		for k, span := range loc.spans {
			for i := span.First; i <= span.Last; i++ {
				t.LocationMarker[i] = loc.ID
				t.VisitMarker[i] = loc.Visits[k]
			}
		}
	}
}
