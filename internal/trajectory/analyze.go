package trajectory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Request is one individual's input to the analyzer. Zero Start or End
// leave that side of the range open; an empty TimeFrame selects all times.
type Request struct {
	ID            string
	Fixes         []Fix
	Anchors       Anchors
	Start         time.Time
	End           time.Time
	TimeFrame     TimeFrame
	SortUnordered bool
}

// Analyzer runs the full segmentation pipeline. It holds only read-only
// configuration and may be shared between goroutines; every call owns its
// trajectory.
type Analyzer struct {
	params Params
	logger zerolog.Logger
	tracer trace.Tracer
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithLogger sets the logger used for pipeline events
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// NewAnalyzer creates an analyzer with the given thresholds
func NewAnalyzer(params Params, opts ...Option) *Analyzer {
	a := &Analyzer{
		params: params,
		logger: zerolog.Nop(),
		tracer: otel.Tracer("github.com/stuartshay/trajectory-worker/internal/trajectory"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Params returns the analyzer thresholds
func (a *Analyzer) Params() Params {
	return a.params
}

// Analyze segments one individual's fixes into trips, visits and locations
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Trajectory, error) {
	_, span := a.tracer.Start(ctx, "trajectory.Analyze", trace.WithAttributes(
		attribute.String("individual.id", req.ID),
		attribute.Int("fixes.source", len(req.Fixes)),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := a.run(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("analyze %s: %w", req.ID, err)
	}

	span.SetAttributes(
		attribute.Int("fixes.clean", t.Len()),
		attribute.Int("trips", len(t.Trips)),
		attribute.Int("visits", len(t.Visits)),
		attribute.Int("locations", len(t.Locations)),
	)
	return t, nil
}

func (a *Analyzer) run(req Request) (*Trajectory, error) {
	logger := a.logger.With().Str("individual_id", req.ID).Logger()
	p := a.params

	fixes, unordered, err := Normalize(req.Fixes, req.SortUnordered)
	if err != nil {
		return nil, err
	}
	if unordered {
		logger.Warn().Msg("Source fixes were unordered or duplicated")
	}

	if !req.Start.IsZero() || !req.End.IsZero() {
		if fixes, err = SelectRange(fixes, req.Start, req.End); err != nil {
			return nil, err
		}
	}
	if len(req.TimeFrame) > 0 {
		if fixes, err = SelectTimeFrame(fixes, req.TimeFrame); err != nil {
			return nil, err
		}
	}
	if len(fixes) == 0 {
		return nil, inputFault(NoDataInWindow, "no fixes")
	}

	fr := Filter(fixes, p.Filter)
	t, err := New(req.ID, fixes, fr)
	if err != nil {
		return nil, err
	}
	t.UnorderedSource = unordered
	t.SetLogger(logger)

	logger.Debug().
		Int("source_fixes", len(fixes)).
		Int("clean_fixes", t.Len()).
		Msg("Fixes filtered")

	t.MarkAnchors(req.Anchors)

	if err := t.ClassifyStates(p.Trip); err != nil {
		return nil, err
	}
	if err := t.CheckStates(); err != nil {
		return nil, err
	}
	if err := t.DetectTrips(p.Trip); err != nil {
		return nil, err
	}
	modes := t.ClassifyTrips(p.Speed)

	t.TrapPoints()
	if err := t.DetectVisits(p.Location); err != nil {
		return nil, err
	}
	t.AnnotateTrips()
	t.MergeLocations(p.Location)

	logger.Info().
		Int("trips", len(t.Trips)).
		Int("walk", modes[ModeWalk]).
		Int("bike", modes[ModeBike]).
		Int("vehicle", modes[ModeVehicle]).
		Int("visits", len(t.Visits)).
		Int("locations", len(t.Locations)).
		Msg("Trajectory segmented")

	return t, nil
}
