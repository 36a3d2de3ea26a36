package trajectory

import (
	"github.com/stuartshay/trajectory-worker/internal/aoi"
	"github.com/stuartshay/trajectory-worker/internal/geodesic"
)

// Mode is the travel mode of a trip
type Mode string

// Travel modes. ModeNone marks fixes outside any classified trip.
const (
	ModeNone    Mode = ""
	ModeWalk    Mode = "walk"
	ModeBike    Mode = "bike"
	ModeVehicle Mode = "vehicle"
	ModeUnknown Mode = "unknown"
)

// Direction describes a trip relative to home (H) and destination (D)
type Direction string

// Trip directions
const (
	X2X Direction = "X2X"
	H2D Direction = "H2D"
	H2X Direction = "H2X"
	D2H Direction = "D2H"
	D2X Direction = "D2X"
	X2H Direction = "X2H"
	X2D Direction = "X2D"
)

// Flag is a yes/no answer that may be unknown because the relevant fix sits
// on a run boundary or no anchor was configured.
type Flag int8

// Flag values
const (
	FlagUnknown Flag = iota
	FlagNo
	FlagYes
)

func flagOf(b bool) Flag {
	if b {
		return FlagYes
	}
	return FlagNo
}

func (f Flag) String() string {
	switch f {
	case FlagYes:
		return "1"
	case FlagNo:
		return "0"
	default:
		return ""
	}
}

// Trip is a validated motion episode. Start and End are inclusive clean fix
// indices; Duration is seconds, distances meters and speeds km/h.
type Trip struct {
	ID           int
	Start        int
	End          int
	Duration     float64
	Distance     float64
	CrowDistance float64
	Radius       float64
	AvgSpeed     float64
	MaxSpeed     float64
	Valid        bool
	Mode         Mode

	Direction    Direction
	DepartedHome Flag
	ArrivedHome  Flag
	StartStore   int
	EndStore     int
}

// Classify picks the first mode whose mean and max cutoffs both exceed the
// trip speeds.
func Classify(avg, peak float64, cutoffs []SpeedCutoff) Mode {
	for _, c := range cutoffs {
		if avg < c.MeanKMH && peak < c.MaxKMH {
			return c.Mode
		}
	}
	return ModeUnknown
}

// DetectTrips scans every run for motion spans, validates them and marks
// the fixes of accepted trips. Pauses stay inside a trip; a stationary fix
// closes it and is the trip's last fix.
func (t *Trajectory) DetectTrips(p TripParams) error {
	runs, err := t.Runs()
	if err != nil {
		return err
	}

	for _, run := range runs {
		st := t.State
		tripStart := -1
		if st[run.First] == Motion {
			tripStart = run.First
		}

		for i := run.First + 1; i <= run.Last; i++ {
			prev, cur := st[i-1], st[i]
			switch {
			case cur == Motion && prev == Stationary:
				if tripStart >= 0 {
					return invariant(TripBounds, i)
				}
				tripStart = i - 1
			case cur == Stationary && prev == Motion:
				if tripStart < 0 {
					return invariant(TripBounds, i)
				}
				if err := t.closeTrip(tripStart, i, p); err != nil {
					return err
				}
				tripStart = -1
			case (cur == Stationary && prev == Pause) || (cur == Pause && prev == Stationary):
				return invariant(PauseTouchesStationary, i)
			}
		}

		if tripStart >= 0 {
			if err := t.closeTrip(tripStart, run.Last, p); err != nil {
				return err
			}
		}
	}

	for _, trip := range t.Trips {
		for i := trip.Start; i <= trip.End; i++ {
			t.TripMarker[i] = trip.ID
		}
	}
	return nil
}

func (t *Trajectory) closeTrip(start, end int, p TripParams) error {
	if end <= start {
		return invariant(TripBounds, start)
	}
	if trip, ok := t.validateTrip(start, end, p); ok {
		t.Trips = append(t.Trips, trip)
	}
	return nil
}

// validateTrip applies the diameter, duration, length and speed tests in
// that order. A failing candidate that touches a run boundary also has its
// fixes [start, end) invalidated.
func (t *Trajectory) validateTrip(start, end int, p TripParams) (Trip, bool) {
	incomplete := t.First[start] || t.Last[end]

	reject := func(reason string, value float64) (Trip, bool) {
		t.log.Debug().
			Int("start", start).
			Int("end", end).
			Bool("incomplete", incomplete).
			Float64("value", value).
			Str("reason", reason).
			Msg("Trip candidate rejected")
		if incomplete {
			t.Invalidate(start, end)
		}
		return Trip{}, false
	}

	var diameter float64
	wide := false
	for i := start + 1; i <= end; i++ {
		diameter = t.Distance(i, start)
		if diameter > p.Radius {
			wide = true
			break
		}
	}
	if !wide {
		return reject("diameter", diameter)
	}

	duration := t.Elapsed(start, end)
	if duration < p.MinDuration {
		return reject("duration", duration)
	}

	distance := t.CumDist[end] - t.CumDist[start]
	if distance < p.MinLength {
		return reject("length", distance)
	}

	avg, peak := RobustSpeeds(t.Speed[start : end+1])
	if avg < p.MinAvgSpeed {
		return reject("avg_speed", avg)
	}

	return Trip{
		ID:           len(t.Trips) + 1,
		Start:        start,
		End:          end,
		Duration:     duration,
		Distance:     distance,
		CrowDistance: t.Distance(start, end),
		Radius:       geodesic.MaxPairwiseRadius(t.Points(start, end)),
		AvgSpeed:     avg,
		MaxSpeed:     peak,
		Valid:        true,
		Mode:         ModeUnknown,
		Direction:    X2X,
		StartStore:   aoi.NoStore,
		EndStore:     aoi.NoStore,
	}, true
}

// RobustSpeeds returns the mean speed and the mean of the two speeds either
// side of the fastest sample. At the ends of the span the single inner
// neighbour is used. speeds must hold at least two samples.
func RobustSpeeds(speeds []float64) (avg, peak float64) {
	argmax := 0
	var sum float64
	for k, s := range speeds {
		sum += s
		if s > speeds[argmax] {
			argmax = k
		}
	}
	avg = sum / float64(len(speeds))

	last := len(speeds) - 1
	switch argmax {
	case 0:
		peak = speeds[1]
	case last:
		peak = speeds[last-1]
	default:
		peak = 0.5 * (speeds[argmax-1] + speeds[argmax+1])
	}
	return avg, peak
}

// ClassifyTrips assigns a travel mode to every trip and to its fixes
func (t *Trajectory) ClassifyTrips(cutoffs []SpeedCutoff) map[Mode]int {
	counts := make(map[Mode]int)
	for k := range t.Trips {
		trip := &t.Trips[k]
		trip.Mode = Classify(trip.AvgSpeed, trip.MaxSpeed, cutoffs)
		counts[trip.Mode]++
		for i := trip.Start; i <= trip.End; i++ {
			t.TripMode[i] = trip.Mode
		}
	}
	return counts
}

// TrapPoints relabels every valid fix outside a trip as stationary, so that
// rejected motion spans join the surrounding stays.
func (t *Trajectory) TrapPoints() {
	for i := range t.State {
		if t.TripMarker[i] == NoMarker && t.Valid[i] {
			t.State[i] = Stationary
		}
	}
}

// AnnotateTrips records home departure and arrival, stores and direction.
// Departure is unknown when the trip starts a run and arrival is unknown
// when it ends one.
func (t *Trajectory) AnnotateTrips() {
	for k := range t.Trips {
		trip := &t.Trips[k]
		trip.DepartedHome, trip.ArrivedHome = FlagUnknown, FlagUnknown
		if t.Home != nil {
			if !t.First[trip.Start] {
				trip.DepartedHome = flagOf(t.IsHome[trip.Start])
			}
			if !t.Last[trip.End] {
				trip.ArrivedHome = flagOf(t.IsHome[trip.End])
			}
		}
		trip.StartStore = t.StoreID[trip.Start]
		trip.EndStore = t.StoreID[trip.End]
		trip.Direction = t.direction(trip.Start, trip.End)
	}
}

func (t *Trajectory) direction(start, end int) Direction {
	fromHome := t.Home != nil && t.IsHome[start]
	toHome := t.Home != nil && t.IsHome[end]
	fromDest := t.Dest != nil && t.IsDest[start]
	toDest := t.Dest != nil && t.IsDest[end]

	switch {
	case fromHome && toDest:
		return H2D
	case fromHome:
		return H2X
	case fromDest && toHome:
		return D2H
	case fromDest:
		return D2X
	case toHome:
		return X2H
	case toDest:
		return X2D
	default:
		return X2X
	}
}

// tripByID returns the trip with the given id
func (t *Trajectory) tripByID(id int) (Trip, bool) {
	if id < 1 || id > len(t.Trips) {
		return Trip{}, false
	}
	return t.Trips[id-1], true
}
