// Package api exposes the job server over HTTP
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/stuartshay/trajectory-worker/internal/queue"
	"github.com/stuartshay/trajectory-worker/internal/report"
)

// Jobs is the job server behind the API
type Jobs interface {
	Submit(deviceID string, start, end time.Time) (string, error)
	GetJob(jobID string) (*queue.Job, error)
	ListJobs(status queue.JobStatus, limit, offset int) []*queue.Job
	Stats() map[string]int
	Ready(ctx context.Context) error
}

// SubmitRequest is the body of a job submission. Start and End are
// RFC 3339 timestamps; either may be omitted.
type SubmitRequest struct {
	DeviceID string    `json:"device_id" binding:"required"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// JobResponse is the API view of a job
type JobResponse struct {
	JobID        string        `json:"job_id"`
	Status       string        `json:"status"`
	DeviceID     string        `json:"device_id"`
	Start        *time.Time    `json:"start,omitempty"`
	End          *time.Time    `json:"end,omitempty"`
	QueuedAt     time.Time     `json:"queued_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	FailureKind  string        `json:"failure_kind,omitempty"`
	Result       *ResultDetail `json:"result,omitempty"`
}

// ResultDetail is the API view of a completed job
type ResultDetail struct {
	Files            report.Files `json:"files"`
	SourceFixes      int          `json:"source_fixes"`
	CleanFixes       int          `json:"clean_fixes"`
	Trips            int          `json:"trips"`
	Visits           int          `json:"visits"`
	Locations        int          `json:"locations"`
	CommuteDays      int          `json:"commute_days"`
	ProcessingTimeMS int64        `json:"processing_time_ms"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toResponse(job *queue.Job) JobResponse {
	resp := JobResponse{
		JobID:        job.ID,
		Status:       string(job.Status),
		DeviceID:     job.DeviceID,
		Start:        optionalTime(job.Start),
		End:          optionalTime(job.End),
		QueuedAt:     job.QueuedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
		ErrorMessage: job.ErrorMessage,
		FailureKind:  string(job.FailureKind),
	}
	if r := job.Result; r != nil {
		resp.Result = &ResultDetail{
			Files:            r.Files,
			SourceFixes:      r.SourceFixes,
			CleanFixes:       r.CleanFixes,
			Trips:            r.Trips,
			Visits:           r.Visits,
			Locations:        r.Locations,
			CommuteDays:      r.CommuteDays,
			ProcessingTimeMS: r.ProcessingTimeMS,
		}
	}
	return resp
}

// Handler serves the job endpoints
type Handler struct {
	jobs    Jobs
	service string
}

// NewRouter builds the HTTP router
func NewRouter(jobs Jobs, service string) *gin.Engine {
	h := &Handler{jobs: jobs, service: service}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	v1 := r.Group("/api/v1")
	{
		jobsGroup := v1.Group("/jobs")
		{
			jobsGroup.POST("", h.SubmitJob)
			jobsGroup.GET("", h.ListJobs)
			jobsGroup.GET("/stats", h.Stats)
			jobsGroup.GET("/:id", h.GetJob)
		}
	}
	return r
}

// requestLogger logs each request through zerolog
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// Healthz is the liveness probe
// GET /healthz
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": h.service})
}

// Readyz is the readiness probe; it fails while the fix store is down
// GET /readyz
func (h *Handler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.jobs.Ready(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// SubmitJob queues a segmentation job
// POST /api/v1/jobs
func (h *Handler) SubmitJob(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	id, err := h.jobs.Submit(req.DeviceID, req.Start, req.End)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, queue.ErrQueueFull) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": id, "status": string(queue.StatusQueued)})
}

// GetJob returns one job
// GET /api/v1/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toResponse(job))
}

// ListJobs lists jobs, optionally filtered by status
// GET /api/v1/jobs?status=&limit=&offset=
func (h *Handler) ListJobs(c *gin.Context) {
	status := queue.JobStatus(c.Query("status"))
	switch status {
	case "", queue.StatusQueued, queue.StatusProcessing, queue.StatusCompleted, queue.StatusFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + string(status)})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		offset = 0
	}

	jobs := h.jobs.ListJobs(status, limit, offset)
	out := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, toResponse(job))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out, "count": len(out), "limit": limit, "offset": offset})
}

// Stats returns queue statistics
// GET /api/v1/jobs/stats
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobs.Stats())
}
