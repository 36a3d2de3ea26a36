package trajectory

import (
	"github.com/stuartshay/trajectory-worker/internal/aoi"
)

// Anchors are the geofences a trajectory is marked against. Any of them may
// be absent.
type Anchors struct {
	Home   *aoi.AreaOfInterest
	Dest   *aoi.AreaOfInterest
	Stores aoi.StoreSet
}

// MarkAnchors flags every fix at home or at the destination and assigns the
// nearest containing store
func (t *Trajectory) MarkAnchors(a Anchors) {
	n := t.Len()
	t.Home, t.Dest = a.Home, a.Dest
	t.IsHome = make([]bool, n)
	t.IsDest = make([]bool, n)

	pts := t.Points(0, n-1)
	if a.Home != nil {
		t.IsHome = a.Home.Within(pts)
	}
	if a.Dest != nil {
		t.IsDest = a.Dest.Within(pts)
	}
	if len(a.Stores) > 0 {
		t.StoreID = a.Stores.Assign(pts)
	}
}

// MeasurementTime reports the hours spanned by the trajectory, the hours
// covered by runs and the hours lost to signal gaps. Run spans are measured
// between their first and last valid fixes.
func (t *Trajectory) MeasurementTime() (total, valid, lost float64) {
	n := t.Len()
	if n == 0 {
		return 0, 0, 0
	}
	total = t.Elapsed(0, n-1) / 3600

	runs, err := t.Runs()
	if err != nil {
		return total, 0, total
	}
	for _, run := range runs {
		first, last := -1, -1
		for i := run.First; i <= run.Last; i++ {
			if t.Valid[i] {
				if first < 0 {
					first = i
				}
				last = i
			}
		}
		if first >= 0 {
			valid += t.Elapsed(first, last) / 3600
		}
	}
	return total, valid, total - valid
}
