package trajectory

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Sorted(t *testing.T) {
	fixes := newTrack().stay(5, 30*time.Second).fixes

	out, unordered, err := Normalize(fixes, false)
	require.NoError(t, err)
	assert.False(t, unordered)
	assert.Equal(t, fixes, out)
}

func TestNormalize_Unordered(t *testing.T) {
	fixes := newTrack().stay(5, 30*time.Second).fixes
	fixes[1], fixes[3] = fixes[3], fixes[1]

	t.Run("sorted when allowed", func(t *testing.T) {
		out, unordered, err := Normalize(fixes, true)
		require.NoError(t, err)
		assert.True(t, unordered)
		for i := 1; i < len(out); i++ {
			assert.True(t, out[i-1].Time.Before(out[i].Time), "fix %d out of order", i)
		}
		// the caller's slice is left alone
		assert.Equal(t, 3, fixes[1].Index)
	})

	t.Run("rejected otherwise", func(t *testing.T) {
		_, _, err := Normalize(fixes, false)
		require.Error(t, err)
		var inErr *InputError
		require.True(t, errors.As(err, &inErr))
		assert.Equal(t, UnsortedTimestamps, inErr.Kind)
		assert.True(t, IsInputFault(err))
	})
}

func TestNormalize_Duplicates(t *testing.T) {
	fixes := newTrack().stay(4, 30*time.Second).fixes

	t.Run("agreeing duplicate removed", func(t *testing.T) {
		dup := fixes[2]
		dup.Index = 99
		dup.Elevation += 0.5
		in := append(append([]Fix{}, fixes[:3]...), dup, fixes[3])

		out, unordered, err := Normalize(in, false)
		require.NoError(t, err)
		assert.True(t, unordered)
		assert.Len(t, out, 4)
		assert.Equal(t, 2, out[2].Index)
	})

	t.Run("conflicting duplicate rejected", func(t *testing.T) {
		dup := fixes[2]
		dup.Lat += 0.01
		in := append(append([]Fix{}, fixes[:3]...), dup, fixes[3])

		_, _, err := Normalize(in, true)
		var inErr *InputError
		require.True(t, errors.As(err, &inErr))
		assert.Equal(t, ConflictingDuplicate, inErr.Kind)
	})
}

func TestTimeWindow_Contains(t *testing.T) {
	monday := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	saturday := monday.AddDate(0, 0, 5)
	w := Weekdays(7*time.Hour, 9*time.Hour)

	tests := []struct {
		name     string
		at       time.Time
		expected bool
	}{
		{name: "inside", at: monday.Add(8 * time.Hour), expected: true},
		{name: "start inclusive", at: monday.Add(7 * time.Hour), expected: true},
		{name: "end inclusive", at: monday.Add(9 * time.Hour), expected: true},
		{name: "after end", at: monday.Add(9*time.Hour + time.Second), expected: false},
		{name: "before start", at: monday.Add(6*time.Hour + 59*time.Minute), expected: false},
		{name: "weekend", at: saturday.Add(8 * time.Hour), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, w.Contains(tt.at))
		})
	}

	assert.True(t, Daily(7*time.Hour, 9*time.Hour).Contains(saturday.Add(8*time.Hour)))
}

func TestTimeFrame_Contains(t *testing.T) {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	tf := TimeFrame{
		Daily(7*time.Hour, 9*time.Hour),
		Daily(15*time.Hour, 17*time.Hour),
	}

	assert.True(t, tf.Contains(day.Add(8*time.Hour)))
	assert.True(t, tf.Contains(day.Add(16*time.Hour)))
	assert.False(t, tf.Contains(day.Add(12*time.Hour)))
	assert.False(t, TimeFrame{}.Contains(day))
}

func TestSelectRange(t *testing.T) {
	fixes := newTrack().stay(10, time.Minute).fixes

	out, err := SelectRange(fixes, trackStart.Add(2*time.Minute), trackStart.Add(5*time.Minute))
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, 2, out[0].Index)
	assert.Equal(t, 5, out[3].Index)

	out, err = SelectRange(fixes, time.Time{}, trackStart.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, out, 2)

	out, err = SelectRange(fixes, trackStart.Add(8*time.Minute), time.Time{})
	require.NoError(t, err)
	assert.Len(t, out, 2)

	_, err = SelectRange(fixes, trackStart.Add(time.Hour), time.Time{})
	var inErr *InputError
	require.True(t, errors.As(err, &inErr))
	assert.Equal(t, NoDataInWindow, inErr.Kind)
}

func TestSelectRange_LocalWallClock(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	at := time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC) // 2024-03-03 21:00 EST
	fixes := []Fix{
		{Index: 0, Time: at, Local: at.In(est)},
		{Index: 1, Time: at.Add(4 * time.Hour), Local: at.Add(4 * time.Hour).In(est)},
	}
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	out, err := SelectRange(fixes, day, time.Time{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].Index)

	out, err = SelectRange(fixes, time.Time{}, day.Add(-time.Nanosecond))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 0, out[0].Index)
}

func TestSelectTimeFrame(t *testing.T) {
	// trackStart is 08:00 on a Monday
	fixes := newTrack().stay(120, time.Minute).fixes

	out, err := SelectTimeFrame(fixes, TimeFrame{Weekdays(9*time.Hour, 9*time.Hour+30*time.Minute)})
	require.NoError(t, err)
	assert.Len(t, out, 31)
	assert.Equal(t, 60, out[0].Index)

	_, err = SelectTimeFrame(fixes, TimeFrame{Daily(20*time.Hour, 21*time.Hour)})
	assert.True(t, IsInputFault(err))
}
