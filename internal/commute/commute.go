// Package commute finds at most one home to destination or destination to
// elsewhere trip per day, using anchor occupancy inside named time windows
// to decide which days qualify.
package commute

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stuartshay/trajectory-worker/internal/trajectory"
)

// Anchor names the geofence an occupancy rule is tested against
type Anchor string

// Anchors
const (
	AnchorHome Anchor = "home"
	AnchorDest Anchor = "dest"
)

// Default rule constants
const (
	DefaultMinFraction = 0.10
	DefaultExtension   = 120 * time.Second
)

// ErrNoAnchors is returned when the trajectory was not marked against both
// a home and a destination
var ErrNoAnchors = errors.New("commute extraction needs home and destination anchors")

// Window is a named time-of-day interval
type Window struct {
	Name string
	trajectory.TimeWindow
}

// OccupancyRule requires the share of a day's fixes inside Window that sit
// at Anchor to exceed MinFraction
type OccupancyRule struct {
	Window      Window
	Anchor      Anchor
	MinFraction float64
}

// Rule describes one commute leg. Direction is trajectory.H2D for the trip
// from home to the destination or trajectory.D2X for the trip leaving it.
type Rule struct {
	Name      string
	Direction trajectory.Direction
	Occupancy []OccupancyRule
	Search    trajectory.TimeWindow
}

// Reason explains why a day was rejected
type Reason string

// Rejection reasons
const (
	ReasonNone       Reason = ""
	ReasonNoFixes    Reason = "no_fixes_in_window"
	ReasonOccupancy  Reason = "occupancy_below_threshold"
	ReasonNoSeed     Reason = "no_seed"
	ReasonNoEnd      Reason = "no_end"
	ReasonSignalLoss Reason = "signal_loss"
)

// Trip is the extracted commute trip. Start and End are inclusive clean fix
// indices; Duration is seconds, distances meters and speeds km/h.
type Trip struct {
	Start        int
	End          int
	StartTime    time.Time
	EndTime      time.Time
	Duration     float64
	Distance     float64
	CrowDistance float64
	AvgSpeed     float64
	MaxSpeed     float64
	Mode         trajectory.Mode
}

// Day is the outcome of one rule on one local calendar day
type Day struct {
	Date      string
	Rule      string
	Direction trajectory.Direction
	Accepted  bool
	Reason    Reason
	Detail    string
	Occupancy map[string]float64
	Trip      *Trip
}

// Extractor applies commute rules day by day
type Extractor struct {
	rules     []Rule
	cutoffs   []trajectory.SpeedCutoff
	extension time.Duration
	logger    zerolog.Logger
}

// Option configures an Extractor
type Option func(*Extractor)

// WithLogger sets the logger used for day decisions
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// WithExtension overrides how far a seed may grow in each direction
func WithExtension(d time.Duration) Option {
	return func(e *Extractor) {
		e.extension = d
	}
}

// NewExtractor creates an extractor for the given rules
func NewExtractor(rules []Rule, cutoffs []trajectory.SpeedCutoff, opts ...Option) *Extractor {
	e := &Extractor{
		rules:     rules,
		cutoffs:   cutoffs,
		extension: DefaultExtension,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract evaluates every rule on every local day of a segmented trajectory
func (e *Extractor) Extract(t *trajectory.Trajectory) ([]Day, error) {
	if t.Home == nil || t.Dest == nil {
		return nil, ErrNoAnchors
	}
	runs, err := t.Runs()
	if err != nil {
		return nil, err
	}
	runOf := make([]int, t.Len())
	for k, run := range runs {
		for i := run.First; i <= run.Last; i++ {
			runOf[i] = k
		}
	}

	var days []Day
	for _, day := range splitDays(t) {
		for _, rule := range e.rules {
			d := e.evaluate(t, runOf, day, rule)
			e.logger.Debug().
				Str("date", d.Date).
				Str("rule", d.Rule).
				Bool("accepted", d.Accepted).
				Str("reason", string(d.Reason)).
				Msg("Commute day evaluated")
			days = append(days, d)
		}
	}
	return days, nil
}

type localDay struct {
	date  string
	fixes []int
}

// splitDays groups valid fix indices by local calendar date
func splitDays(t *trajectory.Trajectory) []localDay {
	var days []localDay
	for i, f := range t.Fixes {
		if !t.Valid[i] {
			continue
		}
		date := f.Local.Format("2006-01-02")
		if n := len(days); n == 0 || days[n-1].date != date {
			days = append(days, localDay{date: date})
		}
		days[len(days)-1].fixes = append(days[len(days)-1].fixes, i)
	}
	return days
}

func (e *Extractor) evaluate(t *trajectory.Trajectory, runOf []int, day localDay, rule Rule) Day {
	d := Day{
		Date:      day.date,
		Rule:      rule.Name,
		Direction: rule.Direction,
		Occupancy: make(map[string]float64, len(rule.Occupancy)),
	}
	reject := func(reason Reason, format string, args ...any) Day {
		d.Reason = reason
		d.Detail = fmt.Sprintf(format, args...)
		return d
	}

	for _, occ := range rule.Occupancy {
		inside, anchored := 0, 0
		for _, i := range day.fixes {
			if !occ.Window.Contains(t.Fixes[i].Local) {
				continue
			}
			inside++
			if at(t, occ.Anchor, i) {
				anchored++
			}
		}
		if inside == 0 {
			return reject(ReasonNoFixes, "window %s", occ.Window.Name)
		}
		fraction := float64(anchored) / float64(inside)
		d.Occupancy[occ.Window.Name] = fraction
		if fraction <= occ.MinFraction {
			return reject(ReasonOccupancy, "window %s at %s %.3f", occ.Window.Name, occ.Anchor, fraction)
		}
	}

	var search []int
	for _, i := range day.fixes {
		if rule.Search.Contains(t.Fixes[i].Local) {
			search = append(search, i)
		}
	}
	if len(search) == 0 {
		return reject(ReasonNoFixes, "search window")
	}

	var start, end int
	var reason Reason
	switch rule.Direction {
	case trajectory.D2X:
		start, end, reason = leaveSeed(t, runOf, search)
	default:
		start, end, reason = arriveSeed(t, search)
	}
	if reason != ReasonNone {
		return reject(reason, "search window")
	}
	if runOf[start] != runOf[end] {
		return reject(ReasonSignalLoss, "fixes %d and %d in different runs", start, end)
	}

	start, end = e.extend(t, runOf, start, end)
	d.Trip = e.measure(t, start, end)
	d.Accepted = true
	return d
}

func at(t *trajectory.Trajectory, a Anchor, i int) bool {
	if a == AnchorDest {
		return t.IsDest[i]
	}
	return t.IsHome[i]
}

// arriveSeed pairs the first destination fix in the search window with the
// last home fix before it
func arriveSeed(t *trajectory.Trajectory, search []int) (int, int, Reason) {
	end := -1
	for _, i := range search {
		if t.IsDest[i] {
			end = i
			break
		}
	}
	if end < 0 {
		return 0, 0, ReasonNoEnd
	}
	start := -1
	for _, i := range search {
		if i >= end {
			break
		}
		if t.IsHome[i] {
			start = i
		}
	}
	if start < 0 {
		return 0, 0, ReasonNoSeed
	}
	return start, end, ReasonNone
}

// leaveSeed starts at the last destination fix in the search window and
// ends at the stationary fix that closes the following motion
func leaveSeed(t *trajectory.Trajectory, runOf []int, search []int) (int, int, Reason) {
	start := -1
	for _, i := range search {
		if t.IsDest[i] {
			start = i
		}
	}
	if start < 0 {
		return 0, 0, ReasonNoSeed
	}

	moving := false
	last := start
	for i := start + 1; i < t.Len() && runOf[i] == runOf[start]; i++ {
		if !t.Valid[i] {
			continue
		}
		last = i
		switch t.State[i] {
		case trajectory.Motion, trajectory.Pause:
			moving = true
		case trajectory.Stationary:
			if moving {
				return start, i, ReasonNone
			}
		}
	}
	if !moving {
		return 0, 0, ReasonNoEnd
	}
	return start, last, ReasonNone
}

// extend grows [start, end] over neighbouring non-stationary fixes of the
// same run, at most the extension interval in each direction
func (e *Extractor) extend(t *trajectory.Trajectory, runOf []int, start, end int) (int, int) {
	limit := e.extension.Seconds()
	moving := func(i int) bool {
		return t.Valid[i] && t.State[i] != trajectory.Stationary
	}

	seed := start
	for s := start - 1; s >= 0 && runOf[s] == runOf[seed]; s-- {
		if !moving(s) || t.Elapsed(s, seed) > limit {
			break
		}
		start = s
	}
	seed = end
	for s := end + 1; s < t.Len() && runOf[s] == runOf[seed]; s++ {
		if !moving(s) || t.Elapsed(seed, s) > limit {
			break
		}
		end = s
	}
	return start, end
}

func (e *Extractor) measure(t *trajectory.Trajectory, start, end int) *Trip {
	trip := &Trip{
		Start:        start,
		End:          end,
		StartTime:    t.Fixes[start].Local,
		EndTime:      t.Fixes[end].Local,
		Duration:     t.Elapsed(start, end),
		Distance:     t.CumDist[end] - t.CumDist[start],
		CrowDistance: t.Distance(start, end),
		Mode:         trajectory.ModeUnknown,
	}
	if end > start {
		trip.AvgSpeed, trip.MaxSpeed = trajectory.RobustSpeeds(t.Speed[start : end+1])
		trip.Mode = trajectory.Classify(trip.AvgSpeed, trip.MaxSpeed, e.cutoffs)
	}
	return trip
}

// Outbound returns the morning home to destination rule
func Outbound(search trajectory.TimeWindow, occupancy ...OccupancyRule) Rule {
	return Rule{Name: "outbound", Direction: trajectory.H2D, Search: search, Occupancy: occupancy}
}

// Inbound returns the afternoon rule for leaving the destination
func Inbound(search trajectory.TimeWindow, occupancy ...OccupancyRule) Rule {
	return Rule{Name: "inbound", Direction: trajectory.D2X, Search: search, Occupancy: occupancy}
}

// DefaultRules returns the weekday school-run rules. The outbound leg is
// searched between 06:00 and 10:00 on days with some night spent at home;
// the inbound leg between 13:00 and 19:00 on days with some late morning
// spent at the destination.
func DefaultRules() []Rule {
	night := Window{Name: "night", TimeWindow: trajectory.Daily(0, 5*time.Hour)}
	morning := Window{Name: "late_morning", TimeWindow: trajectory.Weekdays(10*time.Hour, 12*time.Hour)}
	return []Rule{
		Outbound(trajectory.Weekdays(6*time.Hour, 10*time.Hour),
			OccupancyRule{Window: night, Anchor: AnchorHome, MinFraction: DefaultMinFraction}),
		Inbound(trajectory.Weekdays(13*time.Hour, 19*time.Hour),
			OccupancyRule{Window: morning, Anchor: AnchorDest, MinFraction: DefaultMinFraction}),
	}
}
