package trajectory

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classified(t *testing.T, fixes []Fix) *Trajectory {
	t.Helper()
	p := DefaultParams()
	tr, err := build(fixes, p)
	require.NoError(t, err)
	require.NoError(t, tr.ClassifyStates(p.Trip))
	require.NoError(t, tr.CheckStates())
	return tr
}

func countStates(states []State) map[State]int {
	counts := make(map[State]int)
	for _, s := range states {
		counts[s]++
	}
	return counts
}

func TestClassifyStates_SlowDrift(t *testing.T) {
	// ten fixes a meter apart, 70 s between them
	fixes := newTrack().stay(1, 70*time.Second).move(9, 70*time.Second, 1, 0).fixes
	tr := classified(t, fixes)

	for i, s := range tr.State {
		assert.Equal(t, Stationary, s, "fix %d", i)
	}
}

func TestClassifyStates_Walk(t *testing.T) {
	tr := classified(t, walkTrip())

	// the walk starts at fix 14 and the first 60 s of the second stay still
	// show displacement against the lookback fix
	for i := 0; i < 14; i++ {
		assert.Equal(t, Stationary, tr.State[i], "fix %d", i)
	}
	for i := 14; i <= 45; i++ {
		assert.Equal(t, Motion, tr.State[i], "fix %d", i)
	}
	for i := 46; i < tr.Len(); i++ {
		assert.Equal(t, Stationary, tr.State[i], "fix %d", i)
	}
}

func TestClassifyStates_Stops(t *testing.T) {
	tests := []struct {
		name     string
		stopped  int
		expected State
	}{
		{name: "short stop folded into motion", stopped: 15, expected: Motion},
		{name: "pause", stopped: 25, expected: Pause},
		{name: "long stop", stopped: 40, expected: Stationary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixes := newTrack().
				stay(14, 30*time.Second).
				move(30, 10*time.Second, 12, 0).
				stay(tt.stopped, 10*time.Second).
				move(30, 10*time.Second, 12, 0).
				stay(15, 30*time.Second).
				fixes
			tr := classified(t, fixes)

			// the stop begins at fix 44; its last fix settles 60 s in
			last := 44 + tt.stopped - 1
			assert.Equal(t, tt.expected, tr.State[last])
			assert.Equal(t, Motion, tr.State[last+1])
			assert.Equal(t, Motion, tr.State[44])
		})
	}
}

func TestClassifyStates_MovingRunStart(t *testing.T) {
	fixes := newTrack().
		stay(1, 10*time.Second).
		move(1, 10*time.Second, 15, 0).
		stay(38, 10*time.Second).
		fixes
	tr := classified(t, fixes)

	assert.Equal(t, Motion, tr.State[0])
	assert.Equal(t, Motion, tr.State[1])
	assert.Equal(t, Stationary, tr.State[7])
}

func TestClassifyStates_RunsIndependent(t *testing.T) {
	fixes := newTrack().
		stay(10, 30*time.Second).
		gap(700*time.Second).
		move(1, 30*time.Second, 500, 0).
		stay(9, 30*time.Second).
		fixes
	tr := classified(t, fixes)

	// the first fix of the second run is not compared with the first run
	assert.Equal(t, Stationary, tr.State[10])
	assert.Equal(t, 20, countStates(tr.State)[Stationary])
}

func TestCheckStates(t *testing.T) {
	fixes := newTrack().stay(10, 30*time.Second).fixes
	tr, err := build(fixes, DefaultParams())
	require.NoError(t, err)

	for i := range tr.State {
		tr.State[i] = Motion
	}
	require.NoError(t, tr.CheckStates())

	tr.State[4] = Pause
	tr.State[5] = Stationary
	err = tr.CheckStates()
	require.Error(t, err)

	var invErr *InvariantError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, PauseTouchesStationary, invErr.Kind)
	assert.Equal(t, 5, invErr.Index)
	assert.True(t, IsInvariantViolation(err))
	assert.False(t, IsInputFault(err))
}

func TestRuns_Unmatched(t *testing.T) {
	fixes := newTrack().stay(4, 30*time.Second).fixes
	fr := FilterResult{
		Valid: []bool{true, true, true, true},
		First: []bool{true, false, true, false},
		Last:  []bool{false, false, false, true},
	}
	tr, err := New("broken", fixes, fr)
	require.NoError(t, err)

	_, err = tr.Runs()
	assert.True(t, IsInvariantViolation(err))
	assert.True(t, IsInvariantViolation(tr.ClassifyStates(DefaultParams().Trip)))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "stationary", Stationary.String())
	assert.Equal(t, "motion", Motion.String())
	assert.Equal(t, "pause", Pause.String())
	assert.Equal(t, "unassigned", Unassigned.String())
}
