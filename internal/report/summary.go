package report

import (
	"math"
	"sort"

	"github.com/stuartshay/trajectory-worker/internal/aoi"
	"github.com/stuartshay/trajectory-worker/internal/geodesic"
	"github.com/stuartshay/trajectory-worker/internal/trajectory"
)

// Stats describes a sample. Std is the population standard deviation and
// the percentiles interpolate linearly between closest ranks.
type Stats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P25   float64 `json:"p25"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
}

// Describe computes the statistics of values. An empty sample yields zeros.
func Describe(values []float64) Stats {
	n := len(values)
	if n == 0 {
		return Stats{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range sorted {
		sq += (v - mean) * (v - mean)
	}

	return Stats{
		Count: n,
		Mean:  mean,
		Std:   math.Sqrt(sq / float64(n)),
		Min:   sorted[0],
		Max:   sorted[n-1],
		P25:   percentile(sorted, 25),
		P50:   percentile(sorted, 50),
		P75:   percentile(sorted, 75),
	}
}

func percentile(sorted []float64, q float64) float64 {
	pos := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// TripStats summarizes a group of trips: duration in minutes, distance and
// crow distance in kilometers
type TripStats struct {
	Count       int   `json:"count"`
	DurationMin Stats `json:"duration_min"`
	DistanceKM  Stats `json:"distance_km"`
	CrowKM      Stats `json:"crow_km"`
}

func describeTrips(trips []trajectory.Trip) TripStats {
	dur := make([]float64, 0, len(trips))
	dist := make([]float64, 0, len(trips))
	crow := make([]float64, 0, len(trips))
	for _, trip := range trips {
		dur = append(dur, trip.Duration/60)
		dist = append(dist, trip.Distance/1000)
		crow = append(crow, trip.CrowDistance/1000)
	}
	return TripStats{
		Count:       len(trips),
		DurationMin: Describe(dur),
		DistanceKM:  Describe(dist),
		CrowKM:      Describe(crow),
	}
}

// SummaryModes are the modes broken out in a summary
var SummaryModes = []trajectory.Mode{trajectory.ModeWalk, trajectory.ModeBike, trajectory.ModeVehicle}

// Summary is the per-individual overview of a segmented trajectory
type Summary struct {
	IndividualID    string                        `json:"individual_id"`
	Days            int                           `json:"number_of_days"`
	TotalHours      float64                       `json:"total_hours"`
	ValidHours      float64                       `json:"valid_hours"`
	LostHours       float64                       `json:"signal_loss_hours"`
	SourceFixes     int                           `json:"source_fixes"`
	CleanFixes      int                           `json:"clean_fixes"`
	UnorderedSource bool                          `json:"unordered_source"`
	Trips           TripStats                     `json:"trips"`
	ByMode          map[trajectory.Mode]TripStats `json:"by_mode"`
	TripsFromHome   int                           `json:"trips_from_home"`
	TripsToHome     int                           `json:"trips_to_home"`
	Visits          int                           `json:"visits"`
	ValidVisits     int                           `json:"valid_visits"`
	StoreVisits     int                           `json:"store_visits"`
	HomeVisits      int                           `json:"home_visits"`
	Locations       int                           `json:"locations"`
	FromHome        *geodesic.DistanceMetrics     `json:"from_home,omitempty"`
}

// Summarize computes the summary of a segmented trajectory
func Summarize(t *trajectory.Trajectory) Summary {
	total, valid, lost := t.MeasurementTime()
	s := Summary{
		IndividualID:    t.ID,
		Days:            int(math.Ceil(total / 24)),
		TotalHours:      total,
		ValidHours:      valid,
		LostHours:       lost,
		SourceFixes:     t.SourceFixes,
		CleanFixes:      t.Len(),
		UnorderedSource: t.UnorderedSource,
		Trips:           describeTrips(t.Trips),
		ByMode:          make(map[trajectory.Mode]TripStats, len(SummaryModes)),
		Visits:          len(t.Visits),
		Locations:       len(t.Locations),
	}

	byMode := make(map[trajectory.Mode][]trajectory.Trip)
	for _, trip := range t.Trips {
		byMode[trip.Mode] = append(byMode[trip.Mode], trip)
		if trip.DepartedHome == trajectory.FlagYes {
			s.TripsFromHome++
		}
		if trip.ArrivedHome == trajectory.FlagYes {
			s.TripsToHome++
		}
	}
	for _, mode := range SummaryModes {
		s.ByMode[mode] = describeTrips(byMode[mode])
	}

	for _, v := range t.Visits {
		if v.Valid {
			s.ValidVisits++
		}
		if v.StoreID != aoi.NoStore {
			s.StoreVisits++
		}
		if v.IsHome == trajectory.FlagYes {
			s.HomeVisits++
		}
	}

	if t.Home != nil {
		var pts []geodesic.Point
		for i, f := range t.Fixes {
			if t.Valid[i] {
				pts = append(pts, f.Point())
			}
		}
		m := geodesic.CalculateMetrics(t.Home.Center, pts)
		s.FromHome = &m
	}
	return s
}
