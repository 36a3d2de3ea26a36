// Package queue provides an in-memory job queue with a worker pool. One job
// segments one individual's fixes over a time range.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stuartshay/trajectory-worker/internal/report"
	"github.com/stuartshay/trajectory-worker/internal/trajectory"
)

// JobStatus represents the state of a segmentation job
type JobStatus string

// Job status constants define the lifecycle states
const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// FailureKind classifies why a job failed
type FailureKind string

// Failure kinds
const (
	FailureNone      FailureKind = ""
	FailureInput     FailureKind = "input"
	FailureInvariant FailureKind = "invariant"
	FailureInternal  FailureKind = "internal"
)

// ErrQueueFull is returned when the pending queue has no room
var ErrQueueFull = errors.New("queue is full")

// ErrJobNotFound is returned for an unknown job id
var ErrJobNotFound = errors.New("job not found")

// KindOf classifies a processing error
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case trajectory.IsInputFault(err):
		return FailureInput
	case trajectory.IsInvariantViolation(err):
		return FailureInvariant
	default:
		return FailureInternal
	}
}

// Job represents a segmentation job for one device. Zero Start or End leave
// that side of the range open.
type Job struct {
	ID           string
	DeviceID     string
	Start        time.Time
	End          time.Time
	Status       JobStatus
	QueuedAt     time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	FailureKind  FailureKind
	Result       *JobResult
}

// JobResult contains the output of a completed segmentation
type JobResult struct {
	Files            report.Files
	SourceFixes      int
	CleanFixes       int
	Trips            int
	Visits           int
	Locations        int
	CommuteDays      int
	ProcessingTimeMS int64
}

// ProcessFunc is a function that processes a job
type ProcessFunc func(ctx context.Context, job *Job) (*JobResult, error)

// Queue manages segmentation jobs with a worker pool
type Queue struct {
	mu           sync.RWMutex
	jobs         map[string]*Job
	pendingQueue chan *Job
	workers      int
	processor    ProcessFunc
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewQueue creates a new job queue with the given number of workers and
// pending capacity
func NewQueue(workers, size int, processor ProcessFunc) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		jobs:         make(map[string]*Job),
		pendingQueue: make(chan *Job, size),
		workers:      workers,
		processor:    processor,
		ctx:          ctx,
		cancel:       cancel,
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}

	return q
}

// Enqueue adds a new job for deviceID over [start, end] to the queue
func (q *Queue) Enqueue(deviceID string, start, end time.Time) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx.Err() != nil {
		return "", fmt.Errorf("queue is shut down")
	}

	job := &Job{
		ID:       uuid.New().String(),
		DeviceID: deviceID,
		Start:    start,
		End:      end,
		Status:   StatusQueued,
		QueuedAt: time.Now().UTC(),
	}

	// Add to pending queue (non-blocking)
	select {
	case q.pendingQueue <- job:
		q.jobs[job.ID] = job
		return job.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(jobID string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, exists := q.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return copyJob(job), nil
}

// copyJob returns a copy that shares nothing mutable with the queue
func copyJob(job *Job) *Job {
	jobCopy := *job
	if job.StartedAt != nil {
		startedCopy := *job.StartedAt
		jobCopy.StartedAt = &startedCopy
	}
	if job.CompletedAt != nil {
		completedCopy := *job.CompletedAt
		jobCopy.CompletedAt = &completedCopy
	}
	if job.Result != nil {
		resultCopy := *job.Result
		jobCopy.Result = &resultCopy
	}
	return &jobCopy
}

// ListJobs returns jobs filtered by status, newest first
func (q *Queue) ListJobs(status JobStatus, limit, offset int) []*Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var filtered []*Job
	for _, job := range q.jobs {
		if status == "" || job.Status == status {
			filtered = append(filtered, copyJob(job))
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].QueuedAt.Equal(filtered[j].QueuedAt) {
			return filtered[i].ID < filtered[j].ID
		}
		return filtered[i].QueuedAt.After(filtered[j].QueuedAt)
	})

	// Apply pagination
	start := offset
	if start > len(filtered) {
		return []*Job{}
	}

	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	return filtered[start:end]
}

// GetStats returns queue statistics
func (q *Queue) GetStats() map[string]int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := map[string]int{
		"total":      len(q.jobs),
		"queued":     0,
		"processing": 0,
		"completed":  0,
		"failed":     0,
		"workers":    q.workers,
	}

	for _, job := range q.jobs {
		switch job.Status {
		case StatusQueued:
			stats["queued"]++
		case StatusProcessing:
			stats["processing"]++
		case StatusCompleted:
			stats["completed"]++
		case StatusFailed:
			stats["failed"]++
		}
	}

	return stats
}

// worker processes jobs from the queue
func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.pendingQueue:
			q.processJob(job)
		}
	}
}

// processJob executes a single job. A panicking processor fails only its
// own job.
func (q *Queue) processJob(job *Job) {
	startTime := time.Now()

	q.mu.Lock()
	job.Status = StatusProcessing
	now := time.Now().UTC()
	job.StartedAt = &now
	snapshot := copyJob(job)
	q.mu.Unlock()

	result, err := q.run(snapshot)

	q.mu.Lock()
	defer q.mu.Unlock()

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt

	if err != nil {
		job.Status = StatusFailed
		job.ErrorMessage = err.Error()
		job.FailureKind = KindOf(err)
		return
	}
	job.Status = StatusCompleted
	job.Result = result
	if result != nil {
		result.ProcessingTimeMS = time.Since(startTime).Milliseconds()
	}
}

func (q *Queue) run(job *Job) (result *JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return q.processor(q.ctx, job)
}

// Shutdown gracefully shuts down the queue
func (q *Queue) Shutdown(timeout time.Duration) error {
	// Stop accepting new jobs
	q.mu.Lock()
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout exceeded")
	}
}
