package trajectory

// State is the motion label of a clean fix
type State int8

// Motion states. Unassigned only survives classification through a defect.
const (
	Unassigned State = iota
	Stationary
	Motion
	Pause
)

func (s State) String() string {
	switch s {
	case Stationary:
		return "stationary"
	case Motion:
		return "motion"
	case Pause:
		return "pause"
	default:
		return "unassigned"
	}
}

// pauseTracker carries the pending stationary stretch that follows motion.
// The stretch is relabeled once motion resumes and its length is known.
type pauseTracker struct {
	pending bool
	start   int
}

// open starts tracking a stretch at fix i
func (pt pauseTracker) open(i int) pauseTracker {
	return pauseTracker{pending: true, start: i}
}

// resolve relabels [start, i) by the stretch length and closes the tracker
func (pt pauseTracker) resolve(states []State, i int, length float64, p TripParams) pauseTracker {
	label := Stationary
	switch {
	case length < p.MinPause:
		label = Motion
	case length < p.MaxPause:
		label = Pause
	}
	for k := pt.start; k < i; k++ {
		states[k] = label
	}
	return pauseTracker{}
}

// ClassifyStates labels every clean fix, one run at a time
func (t *Trajectory) ClassifyStates(p TripParams) error {
	runs, err := t.Runs()
	if err != nil {
		return err
	}
	for _, run := range runs {
		t.classifyRun(run, p)
	}
	for i, s := range t.State {
		if s == Unassigned {
			return invariant(UnassignedState, i)
		}
	}
	return nil
}

func (t *Trajectory) classifyRun(run Run, p TripParams) {
	st := t.State
	st[run.First] = Stationary

	var pt pauseTracker
	for i := run.First + 1; i <= run.Last; i++ {
		j := t.lookback(i, run.First, p.Lookback)
		if t.Distance(j, i) > p.MinDistance {
			st[i] = Motion
			if st[i-1] == Stationary && pt.pending {
				pt = pt.resolve(st, i, t.Elapsed(pt.start, i), p)
			}
			continue
		}
		st[i] = Stationary
		if st[i-1] == Motion {
			pt = pt.open(i)
		}
	}

	if run.Len() > 1 && st[run.First+1] == Motion {
		st[run.First] = Motion
	}
}

// lookback returns the latest fix after first that is at least window
// seconds before fix i, falling back to the run's first fix.
func (t *Trajectory) lookback(i, first int, window float64) int {
	for j := i - 1; j > first; j-- {
		if t.Elapsed(j, i) >= window {
			return j
		}
	}
	return first
}

// CheckStates verifies that no pause touches a stationary fix inside a run
func (t *Trajectory) CheckStates() error {
	runs, err := t.Runs()
	if err != nil {
		return err
	}
	for _, run := range runs {
		for i := run.First + 1; i <= run.Last; i++ {
			prev, cur := t.State[i-1], t.State[i]
			if (prev == Pause && cur == Stationary) || (prev == Stationary && cur == Pause) {
				return invariant(PauseTouchesStationary, i)
			}
		}
	}
	return nil
}
