package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stuartshay/trajectory-worker/internal/commute"
	"github.com/stuartshay/trajectory-worker/internal/config"
	"github.com/stuartshay/trajectory-worker/internal/fixsource"
	"github.com/stuartshay/trajectory-worker/internal/report"
	"github.com/stuartshay/trajectory-worker/internal/timezone"
	"github.com/stuartshay/trajectory-worker/internal/trajectory"
)

type analyzeOptions struct {
	out         string
	workers     int
	thresholds  string
	stores      string
	storeRadius float64
	zone        string
	start       string
	end         string
	noSort      bool
	firstYear   int
	lastYear    int

	homeLat, homeLon, homeRadius float64
	destLat, destLon, destRadius float64
}

// fileResult is the outcome for one input file
type fileResult struct {
	path  string
	id    string
	files report.Files
	trips int
	err   error
}

func newAnalyzeCmd() *cobra.Command {
	opts := analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Segment logger files into trips, visits and locations",
		Long: `Segment one or more logger files (NMEA .nmea/.nme/.log or Qstarz CSV).
Files are processed concurrently; a file that fails is reported and does not
affect the others.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := runAnalyze(cmd.Context(), opts, args, log.Logger)
			if err != nil {
				return err
			}
			return printResults(cmd.OutOrStdout(), results)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.out, "out", "o", "out", "output directory")
	f.IntVarP(&opts.workers, "workers", "w", runtime.NumCPU(), "files processed concurrently")
	f.StringVar(&opts.thresholds, "thresholds", "", "YAML threshold profile")
	f.Float64Var(&opts.homeLat, "home-lat", 0, "home latitude")
	f.Float64Var(&opts.homeLon, "home-lon", 0, "home longitude")
	f.Float64Var(&opts.homeRadius, "home-radius", 50, "home radius in meters")
	f.Float64Var(&opts.destLat, "dest-lat", 0, "destination latitude")
	f.Float64Var(&opts.destLon, "dest-lon", 0, "destination longitude")
	f.Float64Var(&opts.destRadius, "dest-radius", 50, "destination radius in meters")
	f.StringVar(&opts.stores, "stores", "", "store registry CSV")
	f.Float64Var(&opts.storeRadius, "store-radius", 50, "default store radius in meters")
	f.StringVar(&opts.zone, "timezone", "", "fixed local time zone (default: from file or coordinates)")
	f.StringVar(&opts.start, "start", "", "first local date or RFC 3339 time to keep")
	f.StringVar(&opts.end, "end", "", "last local date or RFC 3339 time to keep")
	f.BoolVar(&opts.noSort, "no-sort", false, "reject files with unordered timestamps instead of sorting them")
	f.IntVar(&opts.firstYear, "first-year", 0, "first collection year, repairs GPS week rollover")
	f.IntVar(&opts.lastYear, "last-year", 0, "last collection year")

	_ = cmd.MarkFlagRequired("home-lat")
	_ = cmd.MarkFlagRequired("home-lon")
	cmd.MarkFlagsRequiredTogether("dest-lat", "dest-lon")
	return cmd
}

// parseBound accepts a date or an RFC 3339 time, read as local wall clock
// time of the fixes. An end date covers the whole day.
func parseBound(value string, end bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC 3339", value)
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func (o analyzeOptions) anchors() (trajectory.Anchors, error) {
	cfg := config.Config{
		HomeLatitude:  o.homeLat,
		HomeLongitude: o.homeLon,
		HomeRadiusM:   o.homeRadius,
		StoresFile:    o.stores,
		StoreRadiusM:  o.storeRadius,
	}
	if o.destLat != 0 || o.destLon != 0 {
		cfg.HasDest = true
		cfg.DestLatitude, cfg.DestLongitude, cfg.DestRadiusM = o.destLat, o.destLon, o.destRadius
	}
	return cfg.Anchors()
}

// needsZone reports whether the reader left local time at UTC
func needsZone(fixes []trajectory.Fix) bool {
	return len(fixes) > 0 && fixes[0].Local.Location() == time.UTC
}

func runAnalyze(ctx context.Context, o analyzeOptions, paths []string, logger zerolog.Logger) ([]fileResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	params, err := config.LoadParamsFile(o.thresholds)
	if err != nil {
		return nil, err
	}
	anchors, err := o.anchors()
	if err != nil {
		return nil, err
	}
	start, err := parseBound(o.start, false)
	if err != nil {
		return nil, err
	}
	end, err := parseBound(o.end, true)
	if err != nil {
		return nil, err
	}
	zones, err := timezone.NewResolver(o.zone)
	if err != nil {
		return nil, err
	}

	src := fixsource.Options{FirstYear: o.firstYear, LastYear: o.lastYear, Logger: logger}
	if o.zone != "" {
		if src.Location, err = zones.Locate(0, 0); err != nil {
			return nil, err
		}
	}

	analyzer := trajectory.NewAnalyzer(params, trajectory.WithLogger(logger))
	var extractor *commute.Extractor
	if anchors.Dest != nil {
		extractor = commute.NewExtractor(commute.DefaultRules(), params.Speed, commute.WithLogger(logger))
	}
	writer := report.NewWriter(o.out, logger)

	var (
		mu      sync.Mutex
		results = make([]fileResult, 0, len(paths))
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.workers, 1))

	for _, path := range paths {
		path := path
		g.Go(func() error {
			res := analyzeFile(ctx, path, analyzeDeps{
				src:       src,
				zones:     zones,
				analyzer:  analyzer,
				extractor: extractor,
				writer:    writer,
				anchors:   anchors,
				start:     start,
				end:       end,
				sort:      !o.noSort,
			})
			if res.err != nil {
				logger.Error().Err(res.err).Str("file", path).Msg("File failed")
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			// one failing individual never stops the others
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].path < results[j].path })
	return results, nil
}

type analyzeDeps struct {
	src       fixsource.Options
	zones     *timezone.Resolver
	analyzer  *trajectory.Analyzer
	extractor *commute.Extractor
	writer    *report.Writer
	anchors   trajectory.Anchors
	start     time.Time
	end       time.Time
	sort      bool
}

func analyzeFile(ctx context.Context, path string, d analyzeDeps) fileResult {
	res := fileResult{path: path, id: fixsource.IndividualID(path)}

	fixes, err := fixsource.ReadFile(ctx, path, d.src)
	if err != nil {
		res.err = err
		return res
	}
	if needsZone(fixes) {
		if _, err := d.zones.Localize(fixes); err != nil {
			res.err = err
			return res
		}
	}

	t, err := d.analyzer.Analyze(ctx, trajectory.Request{
		ID:            res.id,
		Fixes:         fixes,
		Anchors:       d.anchors,
		Start:         d.start,
		End:           d.end,
		SortUnordered: d.sort,
	})
	if err != nil {
		res.err = err
		return res
	}

	var days []commute.Day
	if d.extractor != nil {
		if days, err = d.extractor.Extract(t); err != nil {
			res.err = err
			return res
		}
	}

	res.files, res.err = d.writer.WriteAll(t, days, "")
	res.trips = len(t.Trips)
	return res
}

func printResults(w io.Writer, results []fileResult) error {
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(w, "FAIL %s: %v\n", r.id, r.err)
			continue
		}
		fmt.Fprintf(w, "ok   %s: %d trips -> %s\n", r.id, r.trips, r.files.Summary)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}
