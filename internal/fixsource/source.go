// Package fixsource reads raw GPS logger files into fixes.
package fixsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stuartshay/trajectory-worker/internal/trajectory"
)

// gpsEpoch is the length of one GPS week number cycle
const gpsEpoch = 1024 * 7 * 24 * time.Hour

// Options controls how logger files are interpreted
type Options struct {
	// FirstYear and LastYear bound the data collection. Timestamps before
	// FirstYear are moved forward by whole GPS week cycles; anything still
	// outside the range is rejected. Zero disables the check.
	FirstYear int
	LastYear  int

	// Location is the local time zone for formats that only carry UTC. It
	// also overrides the offset implied by a file's local time columns.
	Location *time.Location

	Logger zerolog.Logger
}

// ReadFile reads a logger file, choosing the format from its extension
func ReadFile(ctx context.Context, path string, opts Options) ([]trajectory.Fix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var fixes []trajectory.Fix
	switch strings.ToLower(filepath.Ext(path)) {
	case ".nmea", ".nme", ".log":
		fixes, err = ReadNMEA(ctx, f, opts)
	default:
		fixes, err = ReadQstarz(f, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return fixes, nil
}

// IndividualID derives an individual id from a logger file name
func IndividualID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// fixRollover undoes GPS week number rollover for loggers that report dates
// one or more 1024-week cycles in the past
func (o Options) fixRollover(t time.Time) (time.Time, error) {
	if o.FirstYear == 0 {
		return t, nil
	}
	for t.Year() < o.FirstYear {
		t = t.Add(gpsEpoch)
	}
	if o.LastYear != 0 && t.Year() > o.LastYear {
		return t, &trajectory.InputError{
			Kind:   trajectory.UnparseableTimestamp,
			Detail: fmt.Sprintf("%s outside collection years %d-%d", t.Format(time.RFC3339), o.FirstYear, o.LastYear),
		}
	}
	return t, nil
}
