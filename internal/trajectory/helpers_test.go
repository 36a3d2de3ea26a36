package trajectory

import (
	"math"
	"time"

	"github.com/stuartshay/trajectory-worker/internal/geodesic"
)

const (
	baseLat = 40.0
	baseLon = -74.0
)

var (
	mPerDegLat = geodesic.EarthRadiusMeters * math.Pi / 180
	mPerDegLon = mPerDegLat * math.Cos(baseLat*math.Pi/180)
	trackStart = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC) // a Monday
)

// track builds synthetic fixes on a local north/east grid in meters. Every
// emitted fix advances the clock by the step interval.
type track struct {
	at    time.Time
	north float64
	east  float64
	fixes []Fix
}

func newTrack() *track {
	return &track{at: trackStart}
}

func (tr *track) emit() {
	tr.fixes = append(tr.fixes, Fix{
		Index: len(tr.fixes),
		Time:  tr.at,
		Local: tr.at,
		Lat:   baseLat + tr.north/mPerDegLat,
		Lon:   baseLon + tr.east/mPerDegLon,
	})
}

// stay emits n fixes at the current position
func (tr *track) stay(n int, every time.Duration) *track {
	for i := 0; i < n; i++ {
		tr.emit()
		tr.at = tr.at.Add(every)
	}
	return tr
}

// move emits n fixes, each displaced by (dn, de) meters from the previous
func (tr *track) move(n int, every time.Duration, dn, de float64) *track {
	for i := 0; i < n; i++ {
		tr.north += dn
		tr.east += de
		tr.emit()
		tr.at = tr.at.Add(every)
	}
	return tr
}

// gap advances the clock without emitting
func (tr *track) gap(d time.Duration) *track {
	tr.at = tr.at.Add(d)
	return tr
}

// jump emits one fix displaced by (dn, de) and returns to the prior position
func (tr *track) jump(every time.Duration, dn, de float64) *track {
	tr.north += dn
	tr.east += de
	tr.emit()
	tr.north -= dn
	tr.east -= de
	tr.at = tr.at.Add(every)
	return tr
}

func pointAt(north, east float64) geodesic.Point {
	return geodesic.Point{Lat: baseLat + north/mPerDegLat, Lon: baseLon + east/mPerDegLon}
}

// walkTrip is a stay, a 360 m walk north at 1.2 m/s and a second stay
func walkTrip() []Fix {
	return newTrack().
		stay(14, 30*time.Second).
		move(30, 10*time.Second, 12, 0).
		stay(15, 30*time.Second).
		fixes
}

// build filters fixes and wraps the survivors in a trajectory
func build(fixes []Fix, p Params) (*Trajectory, error) {
	return New("test", fixes, Filter(fixes, p.Filter))
}
