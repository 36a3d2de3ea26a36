// Package server runs segmentation jobs: it fetches one device's fixes,
// segments them and writes the report files.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stuartshay/trajectory-worker/internal/commute"
	"github.com/stuartshay/trajectory-worker/internal/config"
	"github.com/stuartshay/trajectory-worker/internal/database"
	"github.com/stuartshay/trajectory-worker/internal/queue"
	"github.com/stuartshay/trajectory-worker/internal/report"
	"github.com/stuartshay/trajectory-worker/internal/timezone"
	"github.com/stuartshay/trajectory-worker/internal/trajectory"
)

// FixStore reads fixes
type FixStore interface {
	GetFixes(ctx context.Context, q database.FixQuery) ([]trajectory.Fix, error)
	HealthCheck(ctx context.Context) error
}

// Server owns the job queue and the segmentation pipeline
type Server struct {
	cfg       *config.Config
	store     FixStore
	queue     *queue.Queue
	analyzer  *trajectory.Analyzer
	extractor *commute.Extractor
	anchors   trajectory.Anchors
	zones     *timezone.Resolver
	writer    *report.Writer
	tracer    trace.Tracer
}

// NewServer creates a server and starts its workers
func NewServer(cfg *config.Config, store FixStore) (*Server, error) {
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}
	anchors, err := cfg.Anchors()
	if err != nil {
		return nil, err
	}
	zones, err := timezone.NewResolver(cfg.LocalTimezone)
	if err != nil {
		return nil, err
	}

	logger := log.Logger
	s := &Server{
		cfg:      cfg,
		store:    store,
		analyzer: trajectory.NewAnalyzer(params, trajectory.WithLogger(logger)),
		anchors:  anchors,
		zones:    zones,
		writer:   report.NewWriter(cfg.OutputPath, logger),
		tracer:   otel.Tracer("github.com/stuartshay/trajectory-worker/internal/server"),
	}
	if anchors.Dest != nil {
		s.extractor = commute.NewExtractor(commute.DefaultRules(), params.Speed, commute.WithLogger(logger))
	}

	// Initialize job queue with processor
	s.queue = queue.NewQueue(cfg.WorkerCount, cfg.QueueSize, s.processJob)

	return s, nil
}

// Submit queues a segmentation job for deviceID over [start, end]
func (s *Server) Submit(deviceID string, start, end time.Time) (string, error) {
	log.Info().
		Str("device_id", deviceID).
		Time("start", start).
		Time("end", end).
		Msg("Received segmentation request")

	if deviceID == "" {
		return "", fmt.Errorf("device_id is required")
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return "", fmt.Errorf("end %s is before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	jobID, err := s.queue.Enqueue(deviceID, start, end)
	if err != nil {
		log.Error().Err(err).Msg("Failed to enqueue job")
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return jobID, nil
}

// GetJob returns the current state of a job
func (s *Server) GetJob(jobID string) (*queue.Job, error) {
	return s.queue.GetJob(jobID)
}

// ListJobs returns jobs newest first. Limit defaults to 50 and is capped at
// 500.
func (s *Server) ListJobs(status queue.JobStatus, limit, offset int) []*queue.Job {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return s.queue.ListJobs(status, limit, offset)
}

// Stats returns queue statistics
func (s *Server) Stats() map[string]int {
	return s.queue.GetStats()
}

// Ready reports whether the fix store is reachable
func (s *Server) Ready(ctx context.Context) error {
	return s.store.HealthCheck(ctx)
}

// processJob is the worker function that segments one device's fixes
func (s *Server) processJob(ctx context.Context, job *queue.Job) (*queue.JobResult, error) {
	ctx, span := s.tracer.Start(ctx, "server.processJob", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("device.id", job.DeviceID),
	))
	defer span.End()

	logger := log.With().Str("job_id", job.ID).Str("device_id", job.DeviceID).Logger()
	logger.Info().Msg("Processing segmentation job")

	result, err := s.segment(ctx, job, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Str("failure_kind", string(queue.KindOf(err))).Msg("Segmentation job failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("trips", result.Trips),
		attribute.Int("visits", result.Visits),
		attribute.Int("locations", result.Locations),
	)
	return result, nil
}

func (s *Server) segment(ctx context.Context, job *queue.Job, logger zerolog.Logger) (*queue.JobResult, error) {
	fixes, err := s.store.GetFixes(ctx, database.FixQuery{
		DeviceID:    job.DeviceID,
		Start:       job.Start,
		End:         job.End,
		MaxAccuracy: s.cfg.MaxAccuracyM,
	})
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	if len(fixes) == 0 {
		return nil, &trajectory.InputError{Kind: trajectory.NoDataInWindow, Detail: "no fixes stored for device"}
	}

	loc, err := s.zones.Localize(fixes)
	if err != nil {
		return nil, fmt.Errorf("time zone lookup failed: %w", err)
	}
	logger.Debug().Int("fixes", len(fixes)).Str("zone", loc.String()).Msg("Fixes loaded")

	t, err := s.analyzer.Analyze(ctx, trajectory.Request{
		ID:            job.DeviceID,
		Fixes:         fixes,
		Anchors:       s.anchors,
		SortUnordered: s.cfg.SortUnordered,
	})
	if err != nil {
		return nil, err
	}

	var days []commute.Day
	if s.extractor != nil {
		days, err = s.extractor.Extract(t)
		if err != nil && !errors.Is(err, commute.ErrNoAnchors) {
			return nil, fmt.Errorf("commute extraction failed: %w", err)
		}
	}

	tag := ""
	if !job.Start.IsZero() {
		tag = job.Start.In(loc).Format("20060102")
	}
	files, err := s.writer.WriteAll(t, days, tag)
	if err != nil {
		return nil, fmt.Errorf("report generation failed: %w", err)
	}

	return &queue.JobResult{
		Files:       files,
		SourceFixes: t.SourceFixes,
		CleanFixes:  t.Len(),
		Trips:       len(t.Trips),
		Visits:      len(t.Visits),
		Locations:   len(t.Locations),
		CommuteDays: len(days),
	}, nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.queue.Shutdown(timeout)
}
