// Package trajectory segments one individual's GPS fixes into runs, motion
// states, trips, visits and locations.
package trajectory

import (
	"math"
	"sort"
	"time"

	"github.com/stuartshay/trajectory-worker/internal/geodesic"
)

// Fix is one timestamped position observation
type Fix struct {
	Index     int
	Time      time.Time
	Local     time.Time
	Lat       float64
	Lon       float64
	Elevation float64
}

// Point returns the fix coordinates
func (f Fix) Point() geodesic.Point {
	return geodesic.Point{Lat: f.Lat, Lon: f.Lon}
}

// seconds returns the elapsed time from a to b in seconds
func seconds(a, b time.Time) float64 {
	return b.Sub(a).Seconds()
}

// Normalize orders fixes by UTC time and removes duplicate timestamps.
// Unordered input is sorted when sortUnordered is set and rejected otherwise;
// the returned flag reports whether the source was out of order. Duplicates
// must agree in position and elevation or the input is rejected.
func Normalize(fixes []Fix, sortUnordered bool) ([]Fix, bool, error) {
	unordered := false
	for i := 1; i < len(fixes); i++ {
		if fixes[i].Time.Before(fixes[i-1].Time) {
			unordered = true
			break
		}
	}

	if unordered {
		if !sortUnordered {
			return nil, true, inputFault(UnsortedTimestamps, "fixes are not in time order")
		}
		sorted := make([]Fix, len(fixes))
		copy(sorted, fixes)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
		fixes = sorted
	}

	out := make([]Fix, 0, len(fixes))
	for _, f := range fixes {
		if n := len(out); n > 0 && out[n-1].Time.Equal(f.Time) {
			prev := out[n-1]
			if !isClose(prev.Lat, f.Lat, 1e-5, 1e-8) ||
				!isClose(prev.Lon, f.Lon, 1e-5, 1e-8) ||
				!isClose(prev.Elevation, f.Elevation, 0.1, 1) {
				return nil, unordered, inputFault(ConflictingDuplicate, "fixes %d and %d share timestamp %s",
					prev.Index, f.Index, f.Time.Format(time.RFC3339))
			}
			unordered = true
			continue
		}
		out = append(out, f)
	}

	return out, unordered, nil
}

func isClose(a, b, rtol, atol float64) bool {
	return math.Abs(a-b) <= atol+rtol*math.Abs(b)
}

// TimeWindow is a time-of-day interval on selected weekdays, bounds inclusive.
// Start and End are offsets from local midnight.
type TimeWindow struct {
	Start    time.Duration
	End      time.Duration
	Weekdays [7]bool
}

// Daily returns a window active on every day of the week
func Daily(start, end time.Duration) TimeWindow {
	return TimeWindow{Start: start, End: end, Weekdays: [7]bool{true, true, true, true, true, true, true}}
}

// Weekdays returns a window active Monday through Friday
func Weekdays(start, end time.Duration) TimeWindow {
	w := TimeWindow{Start: start, End: end}
	for d := time.Monday; d <= time.Friday; d++ {
		w.Weekdays[d] = true
	}
	return w
}

// Contains reports whether a local timestamp falls in the window
func (w TimeWindow) Contains(local time.Time) bool {
	if !w.Weekdays[local.Weekday()] {
		return false
	}
	tod := TimeOfDay(local)
	return tod >= w.Start && tod <= w.End
}

// TimeOfDay returns the offset of t from its midnight
func TimeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

// TimeFrame is a union of windows
type TimeFrame []TimeWindow

// Contains reports whether any window contains the local timestamp
func (tf TimeFrame) Contains(local time.Time) bool {
	for _, w := range tf {
		if w.Contains(local) {
			return true
		}
	}
	return false
}

// SelectRange keeps fixes whose local time lies in [start, end]. Bounds are
// wall clock readings: their zone is ignored, so 2024-03-04 00:00 selects
// from local midnight wherever the fixes were taken. A zero bound leaves
// that side open.
func SelectRange(fixes []Fix, start, end time.Time) ([]Fix, error) {
	from, to := wallClock(start), wallClock(end)
	return selectFixes(fixes, func(f Fix) bool {
		local := wallClock(f.Local)
		return (start.IsZero() || !local.Before(from)) &&
			(end.IsZero() || !local.After(to))
	})
}

// wallClock re-reads the date and clock of t as UTC
func wallClock(t time.Time) time.Time {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, mo, d, h, mi, s, t.Nanosecond(), time.UTC)
}

// SelectTimeFrame keeps fixes whose local time falls in the time frame
func SelectTimeFrame(fixes []Fix, tf TimeFrame) ([]Fix, error) {
	return selectFixes(fixes, func(f Fix) bool { return tf.Contains(f.Local) })
}

func selectFixes(fixes []Fix, keep func(Fix) bool) ([]Fix, error) {
	var out []Fix
	for _, f := range fixes {
		if keep(f) {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, inputFault(NoDataInWindow, "%d fixes, none selected", len(fixes))
	}
	return out, nil
}
