package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuartshay/trajectory-worker/internal/trajectory"
)

func waitFor(t *testing.T, q *Queue, id string, status JobStatus) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		var err error
		job, err = q.GetJob(id)
		return err == nil && job.Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestQueue_Completes(t *testing.T) {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	q := NewQueue(2, 10, func(_ context.Context, job *Job) (*JobResult, error) {
		assert.Equal(t, "iphone", job.DeviceID)
		assert.Equal(t, StatusProcessing, job.Status)
		return &JobResult{Trips: 3, Visits: 4}, nil
	})
	defer func() { _ = q.Shutdown(time.Second) }()

	id, err := q.Enqueue("iphone", start, end)
	require.NoError(t, err)

	job := waitFor(t, q, id, StatusCompleted)
	require.NotNil(t, job.Result)
	assert.Equal(t, 3, job.Result.Trips)
	assert.Equal(t, 4, job.Result.Visits)
	assert.True(t, job.Start.Equal(start))
	assert.True(t, job.End.Equal(end))
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
	assert.Equal(t, FailureNone, job.FailureKind)
}

func TestQueue_Failures(t *testing.T) {
	tests := []struct {
		name string
		fail func() error
		want FailureKind
	}{
		{
			name: "input",
			fail: func() error {
				return fmt.Errorf("analyze p1: %w", &trajectory.InputError{Kind: trajectory.NoValidFixes})
			},
			want: FailureInput,
		},
		{
			name: "invariant",
			fail: func() error {
				return fmt.Errorf("analyze p1: %w", &trajectory.InvariantError{Kind: trajectory.TripBounds, Index: 4})
			},
			want: FailureInvariant,
		},
		{name: "internal", fail: func() error { return errors.New("database down") }, want: FailureInternal},
		{name: "panic", fail: func() error { panic("boom") }, want: FailureInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue(1, 1, func(context.Context, *Job) (*JobResult, error) {
				return nil, tt.fail()
			})
			defer func() { _ = q.Shutdown(time.Second) }()

			id, err := q.Enqueue("iphone", time.Time{}, time.Time{})
			require.NoError(t, err)

			job := waitFor(t, q, id, StatusFailed)
			assert.Equal(t, tt.want, job.FailureKind)
			assert.NotEmpty(t, job.ErrorMessage)
			assert.Nil(t, job.Result)
		})
	}
}

func TestQueue_FailureIsolated(t *testing.T) {
	q := NewQueue(2, 10, func(_ context.Context, job *Job) (*JobResult, error) {
		if job.DeviceID == "bad" {
			return nil, &trajectory.InputError{Kind: trajectory.UnsortedTimestamps}
		}
		return &JobResult{Trips: 1}, nil
	})
	defer func() { _ = q.Shutdown(time.Second) }()

	bad, err := q.Enqueue("bad", time.Time{}, time.Time{})
	require.NoError(t, err)
	good, err := q.Enqueue("good", time.Time{}, time.Time{})
	require.NoError(t, err)

	waitFor(t, q, bad, StatusFailed)
	job := waitFor(t, q, good, StatusCompleted)
	assert.Equal(t, 1, job.Result.Trips)
}

func TestQueue_Full(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue(1, 1, func(ctx context.Context, _ *Job) (*JobResult, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return &JobResult{}, nil
	})
	defer func() { _ = q.Shutdown(time.Second) }()

	first, err := q.Enqueue("a", time.Time{}, time.Time{})
	require.NoError(t, err)
	waitFor(t, q, first, StatusProcessing)

	_, err = q.Enqueue("b", time.Time{}, time.Time{})
	require.NoError(t, err)
	_, err = q.Enqueue("c", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ErrQueueFull)

	stats := q.GetStats()
	assert.Equal(t, 2, stats["total"])
	assert.Equal(t, 1, stats["processing"])
	assert.Equal(t, 1, stats["queued"])
	assert.Equal(t, 1, stats["workers"])

	close(release)
	waitFor(t, q, first, StatusCompleted)
}

func TestQueue_GetJobNotFound(t *testing.T) {
	q := NewQueue(1, 1, func(context.Context, *Job) (*JobResult, error) { return nil, nil })
	defer func() { _ = q.Shutdown(time.Second) }()

	_, err := q.GetJob("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestQueue_ListJobs(t *testing.T) {
	q := NewQueue(1, 10, func(_ context.Context, job *Job) (*JobResult, error) {
		if job.DeviceID == "bad" {
			return nil, errors.New("failed")
		}
		return &JobResult{}, nil
	})
	defer func() { _ = q.Shutdown(time.Second) }()

	var ids []string
	for _, device := range []string{"a", "bad", "c"} {
		id, err := q.Enqueue(device, time.Time{}, time.Time{})
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}
	waitFor(t, q, ids[0], StatusCompleted)
	waitFor(t, q, ids[1], StatusFailed)
	waitFor(t, q, ids[2], StatusCompleted)

	all := q.ListJobs("", 10, 0)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)

	failed := q.ListJobs(StatusFailed, 10, 0)
	require.Len(t, failed, 1)
	assert.Equal(t, "bad", failed[0].DeviceID)

	page := q.ListJobs("", 1, 1)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)

	assert.Empty(t, q.ListJobs("", 10, 5))
}

func TestQueue_Shutdown(t *testing.T) {
	q := NewQueue(1, 1, func(context.Context, *Job) (*JobResult, error) { return nil, nil })
	require.NoError(t, q.Shutdown(time.Second))

	_, err := q.Enqueue("a", time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, FailureNone, KindOf(nil))
	assert.Equal(t, FailureInput, KindOf(&trajectory.InputError{Kind: trajectory.NoDataInWindow}))
	assert.Equal(t, FailureInvariant, KindOf(fmt.Errorf("x: %w", &trajectory.InvariantError{})))
	assert.Equal(t, FailureInternal, KindOf(context.Canceled))
}
