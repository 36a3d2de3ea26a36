package trajectory

import (
	"github.com/rs/zerolog"

	"github.com/stuartshay/trajectory-worker/internal/aoi"
	"github.com/stuartshay/trajectory-worker/internal/geodesic"
)

// NoMarker is the marker value of a fix outside any trip, visit or location
const NoMarker = -1

// Trajectory is the per-individual column store. Every companion slice has
// one entry per clean fix.
type Trajectory struct {
	ID              string
	Fixes           []Fix
	SourceFixes     int
	UnorderedSource bool

	Valid []bool
	First []bool
	Last  []bool

	// Speed is km/h, CumDist meters since the start of the run
	Speed   []float64
	CumDist []float64

	State          []State
	TripMarker     []int
	TripMode       []Mode
	VisitMarker    []int
	LocationMarker []int

	IsHome  []bool
	IsDest  []bool
	StoreID []int

	Home *aoi.AreaOfInterest
	Dest *aoi.AreaOfInterest

	Trips     []Trip
	Visits    []Visit
	Locations []Location

	log zerolog.Logger
}

// New builds a trajectory from the fixes that survived the filter
func New(id string, fixes []Fix, fr FilterResult) (*Trajectory, error) {
	n := fr.ValidCount()
	if n == 0 {
		return nil, inputFault(NoValidFixes, "%d fixes, all rejected by the filter", len(fixes))
	}

	t := &Trajectory{
		ID:          id,
		Fixes:       make([]Fix, 0, n),
		SourceFixes: len(fixes),
		Valid:       make([]bool, 0, n),
		First:       make([]bool, 0, n),
		Last:        make([]bool, 0, n),
		log:         zerolog.Nop(),
	}
	for i, f := range fixes {
		if !fr.Valid[i] {
			continue
		}
		t.Fixes = append(t.Fixes, f)
		t.Valid = append(t.Valid, true)
		t.First = append(t.First, fr.First[i])
		t.Last = append(t.Last, fr.Last[i])
	}

	t.State = make([]State, n)
	t.TripMarker = filled(n, NoMarker)
	t.TripMode = make([]Mode, n)
	for i := range t.TripMode {
		t.TripMode[i] = ModeNone
	}
	t.VisitMarker = filled(n, NoMarker)
	t.LocationMarker = filled(n, NoMarker)
	t.StoreID = filled(n, aoi.NoStore)

	t.computeKinematics()
	return t, nil
}

// SetLogger routes candidate rejection events to logger
func (t *Trajectory) SetLogger(logger zerolog.Logger) {
	t.log = logger
}

// Len returns the number of clean fixes
func (t *Trajectory) Len() int {
	return len(t.Fixes)
}

// Runs pairs the first and last fix flags into continuous runs
func (t *Trajectory) Runs() ([]Run, error) {
	var runs []Run
	start := -1
	for i := range t.Fixes {
		if t.First[i] {
			if start >= 0 {
				return nil, invariant(UnmatchedRunBoundaries, i)
			}
			start = i
		}
		if t.Last[i] {
			if start < 0 {
				return nil, invariant(UnmatchedRunBoundaries, i)
			}
			runs = append(runs, Run{First: start, Last: i})
			start = -1
		}
	}
	if start >= 0 || len(runs) == 0 {
		return nil, invariant(UnmatchedRunBoundaries, len(t.Fixes)-1)
	}
	if runs[0].First != 0 || runs[len(runs)-1].Last != len(t.Fixes)-1 {
		return nil, invariant(UnmatchedRunBoundaries, 0)
	}
	for k := 1; k < len(runs); k++ {
		if runs[k].First != runs[k-1].Last+1 {
			return nil, invariant(UnmatchedRunBoundaries, runs[k].First)
		}
	}
	return runs, nil
}

// Points returns the coordinates of fixes [from, to]
func (t *Trajectory) Points(from, to int) []geodesic.Point {
	pts := make([]geodesic.Point, 0, to-from+1)
	for i := from; i <= to; i++ {
		pts = append(pts, t.Fixes[i].Point())
	}
	return pts
}

// Distance returns the distance in meters between fixes i and j
func (t *Trajectory) Distance(i, j int) float64 {
	return geodesic.Distance(t.Fixes[i].Point(), t.Fixes[j].Point())
}

// Elapsed returns the seconds between fixes i and j
func (t *Trajectory) Elapsed(i, j int) float64 {
	return seconds(t.Fixes[i].Time, t.Fixes[j].Time)
}

// computeKinematics fills point speeds and in-run cumulative distance. The
// first fix of a run takes the speed towards the following fix.
func (t *Trajectory) computeKinematics() {
	n := len(t.Fixes)
	t.Speed = make([]float64, n)
	t.CumDist = make([]float64, n)

	var runDist float64
	for i := 0; i < n; i++ {
		if t.First[i] {
			runDist = 0
			if i+1 < n && !t.Last[i] {
				t.Speed[i] = msToKMH(t.Distance(i, i+1) / t.Elapsed(i, i+1))
			}
			continue
		}
		d := t.Distance(i-1, i)
		runDist += d
		t.CumDist[i] = runDist
		t.Speed[i] = msToKMH(d / t.Elapsed(i-1, i))
	}
}

// Invalidate clears the validity of fixes [from, to)
func (t *Trajectory) Invalidate(from, to int) {
	for i := from; i < to; i++ {
		t.Valid[i] = false
	}
}

func filled(n, v int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}
