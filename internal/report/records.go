// Package report flattens segmented trajectories into field-named records,
// computes per-individual summary statistics and writes both as CSV.
package report

import (
	"time"

	"github.com/stuartshay/trajectory-worker/internal/aoi"
	"github.com/stuartshay/trajectory-worker/internal/commute"
	"github.com/stuartshay/trajectory-worker/internal/trajectory"
)

// TripRecord is one row of the trip table
type TripRecord struct {
	IndividualID string
	TripID       int
	StartTime    time.Time
	EndTime      time.Time
	DurationMin  float64
	DistanceKM   float64
	CrowKM       float64
	RadiusM      float64
	AvgSpeedKMH  float64
	MaxSpeedKMH  float64
	Mode         trajectory.Mode
	Direction    trajectory.Direction
	DepartedHome trajectory.Flag
	ArrivedHome  trajectory.Flag
	StartStore   int
	EndStore     int
	StartLat     float64
	StartLon     float64
	EndLat       float64
	EndLon       float64
}

// VisitRecord is one row of the visit table
type VisitRecord struct {
	IndividualID  string
	VisitID       int
	LocationID    int
	StartTime     time.Time
	EndTime       time.Time
	DurationMin   float64
	Lat           float64
	Lon           float64
	RadiusM       float64
	Valid         bool
	IsHome        trajectory.Flag
	DistHomeKM    float64
	StoreID       int
	ArrivalTrip   int
	ArrivalMode   trajectory.Mode
	DepartureTrip int
	DepartureMode trajectory.Mode
}

// LocationRecord is one row of the location table
type LocationRecord struct {
	IndividualID    string
	LocationID      int
	Lat             float64
	Lon             float64
	RadiusM         float64
	NVisits         int
	NValidVisits    int
	TotalMin        float64
	AvgStayMin      float64
	AvgValidStayMin float64
	IsHome          trajectory.Flag
	StoreID         int
	DistHomeKM      float64
	ArrivedFromHome int
	DepartedToHome  int
}

// FixRecord is one row of the per-fix GIS log
type FixRecord struct {
	IndividualID string
	Index        int
	Time         time.Time
	Local        time.Time
	Lat          float64
	Lon          float64
	Elevation    float64
	SpeedKMH     float64
	State        trajectory.State
	FixType      string
	TripID       int
	TripMode     trajectory.Mode
	VisitID      int
	LocationID   int
	IsHome       bool
	StoreID      int
}

// CommuteRecord is one row of the commute day table
type CommuteRecord struct {
	IndividualID string
	Date         string
	Rule         string
	Direction    trajectory.Direction
	Accepted     bool
	Reason       commute.Reason
	Detail       string
	StartTime    time.Time
	EndTime      time.Time
	DurationMin  float64
	DistanceKM   float64
	CrowKM       float64
	AvgSpeedKMH  float64
	MaxSpeedKMH  float64
	Mode         trajectory.Mode
}

// Trips returns the trip table of a segmented trajectory
func Trips(t *trajectory.Trajectory) []TripRecord {
	out := make([]TripRecord, 0, len(t.Trips))
	for _, trip := range t.Trips {
		first, last := t.Fixes[trip.Start], t.Fixes[trip.End]
		out = append(out, TripRecord{
			IndividualID: t.ID,
			TripID:       trip.ID,
			StartTime:    first.Local,
			EndTime:      last.Local,
			DurationMin:  trip.Duration / 60,
			DistanceKM:   trip.Distance / 1000,
			CrowKM:       trip.CrowDistance / 1000,
			RadiusM:      trip.Radius,
			AvgSpeedKMH:  trip.AvgSpeed,
			MaxSpeedKMH:  trip.MaxSpeed,
			Mode:         trip.Mode,
			Direction:    trip.Direction,
			DepartedHome: trip.DepartedHome,
			ArrivedHome:  trip.ArrivedHome,
			StartStore:   trip.StartStore,
			EndStore:     trip.EndStore,
			StartLat:     first.Lat,
			StartLon:     first.Lon,
			EndLat:       last.Lat,
			EndLon:       last.Lon,
		})
	}
	return out
}

// Visits returns the visit table of a segmented trajectory
func Visits(t *trajectory.Trajectory) []VisitRecord {
	modes := make(map[int]trajectory.Mode, len(t.Trips))
	for _, trip := range t.Trips {
		modes[trip.ID] = trip.Mode
	}

	out := make([]VisitRecord, 0, len(t.Visits))
	for _, v := range t.Visits {
		out = append(out, VisitRecord{
			IndividualID:  t.ID,
			VisitID:       v.ID,
			LocationID:    v.LocationID,
			StartTime:     t.Fixes[v.Start].Local,
			EndTime:       t.Fixes[v.End].Local,
			DurationMin:   v.Duration / 60,
			Lat:           v.Centroid.Lat,
			Lon:           v.Centroid.Lon,
			RadiusM:       v.Radius,
			Valid:         v.Valid,
			IsHome:        v.IsHome,
			DistHomeKM:    v.DistFromHome / 1000,
			StoreID:       v.StoreID,
			ArrivalTrip:   v.ArrivalTrip,
			ArrivalMode:   modes[v.ArrivalTrip],
			DepartureTrip: v.DepartureTrip,
			DepartureMode: modes[v.DepartureTrip],
		})
	}
	return out
}

// Locations returns the location table of a segmented trajectory
func Locations(t *trajectory.Trajectory) []LocationRecord {
	valid := make(map[int]bool, len(t.Visits))
	for _, v := range t.Visits {
		valid[v.ID] = v.Valid
	}

	out := make([]LocationRecord, 0, len(t.Locations))
	for i := range t.Locations {
		loc := &t.Locations[i]
		rec := LocationRecord{
			IndividualID:    t.ID,
			LocationID:      loc.ID,
			Lat:             loc.Centroid.Lat,
			Lon:             loc.Centroid.Lon,
			RadiusM:         loc.Radius,
			NVisits:         loc.NVisits(),
			NValidVisits:    loc.NValidVisits(),
			TotalMin:        loc.TotalDuration() / 60,
			IsHome:          loc.IsHome,
			StoreID:         loc.StoreID,
			DistHomeKM:      loc.DistFromHome / 1000,
			ArrivedFromHome: loc.ArrivedFromHome,
			DepartedToHome:  loc.DepartedToHome,
		}
		if n := loc.NVisits(); n > 0 {
			rec.AvgStayMin = rec.TotalMin / float64(n)
		}

		var validSum float64
		for k, id := range loc.Visits {
			if valid[id] {
				validSum += loc.Durations[k]
			}
		}
		if n := loc.NValidVisits(); n > 0 {
			rec.AvgValidStayMin = validSum / 60 / float64(n)
		}
		out = append(out, rec)
	}
	return out
}

// Fixes returns the per-fix log of a segmented trajectory
func Fixes(t *trajectory.Trajectory) []FixRecord {
	out := make([]FixRecord, 0, t.Len())
	for i, f := range t.Fixes {
		rec := FixRecord{
			IndividualID: t.ID,
			Index:        f.Index,
			Time:         f.Time,
			Local:        f.Local,
			Lat:          f.Lat,
			Lon:          f.Lon,
			Elevation:    f.Elevation,
			SpeedKMH:     t.Speed[i],
			State:        t.State[i],
			FixType:      fixType(t, i),
			TripID:       t.TripMarker[i],
			TripMode:     t.TripMode[i],
			VisitID:      t.VisitMarker[i],
			LocationID:   t.LocationMarker[i],
			StoreID:      aoi.NoStore,
		}
		if t.IsHome != nil {
			rec.IsHome = t.IsHome[i]
		}
		if t.StoreID != nil {
			rec.StoreID = t.StoreID[i]
		}
		out = append(out, rec)
	}
	return out
}

func fixType(t *trajectory.Trajectory, i int) string {
	switch {
	case !t.Valid[i]:
		return "invalid"
	case t.First[i] && t.Last[i]:
		return "lone"
	case t.First[i]:
		return "first"
	case t.Last[i]:
		return "last"
	default:
		return ""
	}
}

// CommuteDays returns the commute table for one individual
func CommuteDays(id string, days []commute.Day) []CommuteRecord {
	out := make([]CommuteRecord, 0, len(days))
	for _, d := range days {
		rec := CommuteRecord{
			IndividualID: id,
			Date:         d.Date,
			Rule:         d.Rule,
			Direction:    d.Direction,
			Accepted:     d.Accepted,
			Reason:       d.Reason,
			Detail:       d.Detail,
		}
		if d.Trip != nil {
			rec.StartTime = d.Trip.StartTime
			rec.EndTime = d.Trip.EndTime
			rec.DurationMin = d.Trip.Duration / 60
			rec.DistanceKM = d.Trip.Distance / 1000
			rec.CrowKM = d.Trip.CrowDistance / 1000
			rec.AvgSpeedKMH = d.Trip.AvgSpeed
			rec.MaxSpeedKMH = d.Trip.MaxSpeed
			rec.Mode = d.Trip.Mode
		}
		out = append(out, rec)
	}
	return out
}
