package trajectory

import (
	"math"

	"github.com/stuartshay/trajectory-worker/internal/geodesic"
)

// FilterResult holds the per-fix output of the fix filter. First and Last
// are only ever set on valid fixes and pair up into continuous runs.
type FilterResult struct {
	Valid []bool
	First []bool
	Last  []bool
}

// Run is a continuous run of fixes, both bounds inclusive
type Run struct {
	First int
	Last  int
}

// Len returns the number of fixes in the run
func (r Run) Len() int {
	return r.Last - r.First + 1
}

// ValidCount returns the number of fixes that survived the filter
func (r FilterResult) ValidCount() int {
	n := 0
	for _, v := range r.Valid {
		if v {
			n++
		}
	}
	return n
}

// Runs returns the continuous runs in index order
func (r FilterResult) Runs() []Run {
	var runs []Run
	start := -1
	for i := range r.Valid {
		if !r.Valid[i] {
			continue
		}
		if r.First[i] {
			start = i
		}
		if r.Last[i] && start >= 0 {
			runs = append(runs, Run{First: start, Last: i})
			start = -1
		}
	}
	return runs
}

// Filter flags invalid fixes and signal-loss boundaries in a time ordered,
// duplicate free fix sequence. The first fix of every run is checked against
// the next two fixes and only rejected when both disagree with it.
func Filter(fixes []Fix, p FilterParams) FilterResult {
	n := len(fixes)
	r := FilterResult{
		Valid: make([]bool, n),
		First: make([]bool, n),
		Last:  make([]bool, n),
	}
	if n == 0 {
		return r
	}
	for i := range r.Valid {
		r.Valid[i] = true
	}
	r.First[0] = true
	r.Last[n-1] = true

	maxSpeed := kmhToMS(p.MaxSpeed)
	prev := 0

	for i := 0; i < n; i++ {
		cur := fixes[i]

		if seconds(fixes[prev].Time, cur.Time) > p.MaxSignalLoss {
			r.First[i] = true
			r.Last[prev] = true
		}

		if r.First[i] {
			if i == n-1 {
				r.Valid[i] = false
				r.First[i] = false
				continue
			}
			if !acceptRunStart(fixes, i, p, maxSpeed) {
				r.Valid[i] = false
				r.First[i] = false
				r.First[i+1] = true
				continue
			}
			if seconds(cur.Time, fixes[i+1].Time) > p.MaxSignalLoss {
				r.Last[i] = true
				r.First[i+1] = true
			}
			prev = i
			continue
		}

		last := fixes[prev]
		distance := geodesic.Distance(last.Point(), cur.Point())
		if distance > p.MaxDistance {
			r.Valid[i] = false
			continue
		}
		if distance/seconds(last.Time, cur.Time) > maxSpeed {
			r.Valid[i] = false
			continue
		}
		if math.Abs(cur.Elevation-last.Elevation) > p.MaxElevChange {
			r.Valid[i] = false
			continue
		}

		if i < n-1 {
			if seconds(cur.Time, fixes[i+1].Time) > p.MaxSignalLoss {
				r.Last[i] = true
				r.First[i+1] = true
			} else if j := nextPlausible(fixes, i, p, maxSpeed); j >= 0 && distance > p.MinDistance &&
				geodesic.Distance(fixes[j].Point(), last.Point()) < p.MinDistance {
				// spike: out and straight back to where the previous fix was
				r.Valid[i] = false
				continue
			}
		}

		prev = i
	}

	settleRuns(fixes, &r, p)
	return r
}

// nextPlausible returns the first fix after i, within the signal loss
// interval, that passes the distance, speed and elevation checks against fix
// i, or -1. Fixes that would be rejected anyway never decide a spike.
func nextPlausible(fixes []Fix, i int, p FilterParams, maxSpeed float64) int {
	cur := fixes[i]
	for j := i + 1; j < len(fixes); j++ {
		next := fixes[j]
		dt := seconds(cur.Time, next.Time)
		if dt > p.MaxSignalLoss {
			break
		}
		d := geodesic.Distance(cur.Point(), next.Point())
		if d > p.MaxDistance || d/dt > maxSpeed || math.Abs(next.Elevation-cur.Elevation) > p.MaxElevChange {
			continue
		}
		return j
	}
	return -1
}

// acceptRunStart checks a run's first fix against the next two fixes
func acceptRunStart(fixes []Fix, i int, p FilterParams, maxSpeed float64) bool {
	cur, next := fixes[i], fixes[i+1]

	d1 := geodesic.Distance(cur.Point(), next.Point())
	dt1 := seconds(cur.Time, next.Time)
	de1 := math.Abs(cur.Elevation - next.Elevation)

	d2, dt2, de2 := math.Inf(1), 1.0, math.Inf(1)
	if i+2 < len(fixes) {
		nn := fixes[i+2]
		d2 = geodesic.Distance(cur.Point(), nn.Point())
		dt2 = seconds(cur.Time, nn.Time)
		de2 = math.Abs(cur.Elevation - nn.Elevation)
	}

	switch {
	case d1 > p.MaxDistance && d2 > p.MaxDistance:
		return false
	case d1/dt1 > maxSpeed && d2/dt2 > maxSpeed:
		return false
	case de1 > p.MaxElevChange && de2 > p.MaxElevChange:
		return false
	}
	return true
}

// settleRuns rebuilds the run boundaries over the surviving fixes, then drops
// lone and sparse runs.
func settleRuns(fixes []Fix, r *FilterResult, p FilterParams) {
	var runs [][]int
	prev := -1
	for i := range fixes {
		if !r.Valid[i] {
			continue
		}
		boundary := prev < 0 || r.First[i] || r.Last[prev] ||
			seconds(fixes[prev].Time, fixes[i].Time) > p.MaxSignalLoss
		if boundary {
			runs = append(runs, nil)
		}
		runs[len(runs)-1] = append(runs[len(runs)-1], i)
		prev = i
	}

	for i := range r.First {
		r.First[i] = false
		r.Last[i] = false
	}

	for _, run := range runs {
		first, last := run[0], run[len(run)-1]
		lone := len(run) == 1
		sparse := seconds(fixes[first].Time, fixes[last].Time) < p.MinRunSpan
		if (lone && p.RemoveLone) || (sparse && p.RemoveSparse) {
			for _, i := range run {
				r.Valid[i] = false
			}
			continue
		}
		r.First[first] = true
		r.Last[last] = true
	}
}

func kmhToMS(v float64) float64 {
	return v / 3.6
}

func msToKMH(v float64) float64 {
	return v * 3.6
}
