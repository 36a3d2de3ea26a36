package trajectory

import (
	"github.com/stuartshay/trajectory-worker/internal/aoi"
	"github.com/stuartshay/trajectory-worker/internal/geodesic"
)

// Visit is a stay episode. Start and End are inclusive clean fix indices;
// Duration is seconds and Radius meters.
type Visit struct {
	ID         int
	LocationID int
	Start      int
	End        int
	Centroid   geodesic.Point
	Radius     float64
	Duration   float64
	Valid      bool

	IsHome       Flag
	DistFromHome float64
	StoreID      int

	ArrivalTrip   int
	DepartureTrip int
}

// DetectVisits groups contiguous stay fixes of every run into visits. Stay
// fixes are stationary, plus pauses when the parameters include them.
func (t *Trajectory) DetectVisits(p LocationParams) error {
	runs, err := t.Runs()
	if err != nil {
		return err
	}

	stay := func(s State) bool {
		return s == Stationary || (p.IncludePause && s == Pause)
	}

	for _, run := range runs {
		st := t.State
		start := -1
		switch st[run.First] {
		case Stationary:
			start = run.First
		case Motion:
		default:
			return invariant(VisitBounds, run.First)
		}

		for i := run.First + 1; i <= run.Last; i++ {
			switch {
			case stay(st[i]) && st[i-1] == Motion:
				if start >= 0 {
					return invariant(VisitBounds, i)
				}
				start = i
			case st[i] == Motion && stay(st[i-1]):
				if start < 0 {
					return invariant(VisitBounds, i)
				}
				t.closeVisit(start, i-1, p)
				start = -1
			}
		}

		if start >= 0 {
			t.closeVisit(start, run.Last, p)
		}
	}
	return nil
}

func (t *Trajectory) closeVisit(start, end int, p LocationParams) {
	if v, ok := t.validateVisit(start, end, p); ok {
		t.Visits = append(t.Visits, v)
	}
}

// validateVisit drops short pause-only stays. Other short stays are kept as
// invalid visits, unless they touch a run boundary, in which case their
// fixes are invalidated instead.
func (t *Trajectory) validateVisit(start, end int, p LocationParams) (Visit, bool) {
	incomplete := t.First[start] || t.Last[end]
	duration := t.Elapsed(start, end)

	pauseOnly := true
	for i := start; i <= end; i++ {
		if t.State[i] != Pause {
			pauseOnly = false
			break
		}
	}

	valid := true
	if duration < p.MinTime {
		if pauseOnly {
			return Visit{}, false
		}
		if incomplete {
			t.log.Debug().
				Int("start", start).
				Int("end", end).
				Float64("duration", duration).
				Msg("Incomplete short visit invalidated")
			t.Invalidate(start, end+1)
			return Visit{}, false
		}
		valid = false
	}
	if duration < 1 {
		duration = 1
	}

	pts := t.Points(start, end)
	centroid := geodesic.Centroid(pts)

	v := Visit{
		ID:            len(t.Visits) + 1,
		Start:         start,
		End:           end,
		Centroid:      centroid,
		Radius:        geodesic.MaxDistanceFrom(centroid, pts),
		Duration:      duration,
		Valid:         valid,
		StoreID:       aoi.NoStore,
		ArrivalTrip:   t.TripMarker[start],
		DepartureTrip: t.TripMarker[end],
	}
	t.markVisitHome(&v)
	v.StoreID = majorityStore(t.StoreID[start : end+1])
	return v, true
}

// markVisitHome decides home membership for the whole visit and writes it
// back onto the visit's fixes. A visit is at home when most of its fixes
// are, or when either endpoint is.
func (t *Trajectory) markVisitHome(v *Visit) {
	if t.Home == nil {
		return
	}
	home := 0
	for i := v.Start; i <= v.End; i++ {
		if t.IsHome[i] {
			home++
		}
	}
	atHome := float64(home) > 0.5*float64(v.End-v.Start+1) || t.IsHome[v.Start] || t.IsHome[v.End]
	for i := v.Start; i <= v.End; i++ {
		t.IsHome[i] = atHome
	}

	v.IsHome = flagOf(atHome)
	if !atHome {
		v.DistFromHome = t.Home.DistanceTo(v.Centroid)
	}
}

// majorityStore returns the most frequent store id, preferring the lowest
// id on ties. No store is a candidate like any other.
func majorityStore(ids []int) int {
	counts := make(map[int]int)
	best, bestCount := aoi.NoStore, 0
	for _, id := range ids {
		counts[id]++
	}
	for id, c := range counts {
		if c > bestCount || (c == bestCount && id < best) {
			best, bestCount = id, c
		}
	}
	return best
}

// ArrivedFromHome reports whether the trip that ended at this visit left
// from home
func (t *Trajectory) ArrivedFromHome(v Visit) Flag {
	trip, ok := t.tripByID(v.ArrivalTrip)
	if !ok {
		return FlagUnknown
	}
	return trip.DepartedHome
}

// DepartedToHome reports whether the trip that left this visit arrived home
func (t *Trajectory) DepartedToHome(v Visit) Flag {
	trip, ok := t.tripByID(v.DepartureTrip)
	if !ok {
		return FlagUnknown
	}
	return trip.ArrivedHome
}
