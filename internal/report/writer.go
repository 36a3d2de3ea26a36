package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/stuartshay/trajectory-worker/internal/commute"
	"github.com/stuartshay/trajectory-worker/internal/trajectory"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	tripHeader = []string{
		"individual_id", "trip_id", "start_time", "end_time", "duration_min",
		"distance_km", "crow_km", "radius_m", "avg_speed_kmh", "max_speed_kmh",
		"mode", "direction", "departed_home", "arrived_home", "start_store",
		"end_store", "start_lat", "start_lon", "end_lat", "end_lon",
	}
	visitHeader = []string{
		"individual_id", "visit_id", "location_id", "start_time", "end_time",
		"duration_min", "lat", "lon", "radius_m", "valid", "is_home",
		"dist_home_km", "store_id", "arrival_trip", "arrival_mode",
		"departure_trip", "departure_mode",
	}
	locationHeader = []string{
		"individual_id", "location_id", "lat", "lon", "radius_m", "n_visits",
		"n_valid_visits", "total_min", "avg_stay_min", "avg_valid_stay_min",
		"is_home", "store_id", "dist_home_km", "arrived_from_home",
		"departed_to_home",
	}
	fixHeader = []string{
		"individual_id", "index", "utc_time", "local_time", "lat", "lon",
		"elevation", "speed_kmh", "state", "fix_type", "trip_id", "trip_mode",
		"visit_id", "location_id", "is_home", "store_id",
	}
	commuteHeader = []string{
		"individual_id", "date", "rule", "direction", "accepted", "reason",
		"detail", "start_time", "end_time", "duration_min", "distance_km",
		"crow_km", "avg_speed_kmh", "max_speed_kmh", "mode",
	}
)

func ftoa(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func btoa(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func tfmt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func marker(id int) string {
	if id < 0 {
		return ""
	}
	return strconv.Itoa(id)
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTrips writes the trip table as CSV
func WriteTrips(w io.Writer, recs []TripRecord) error {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.IndividualID, strconv.Itoa(r.TripID), tfmt(r.StartTime), tfmt(r.EndTime),
			ftoa(r.DurationMin, 2), ftoa(r.DistanceKM, 3), ftoa(r.CrowKM, 3),
			ftoa(r.RadiusM, 1), ftoa(r.AvgSpeedKMH, 2), ftoa(r.MaxSpeedKMH, 2),
			string(r.Mode), string(r.Direction), r.DepartedHome.String(), r.ArrivedHome.String(),
			marker(r.StartStore), marker(r.EndStore),
			ftoa(r.StartLat, 6), ftoa(r.StartLon, 6), ftoa(r.EndLat, 6), ftoa(r.EndLon, 6),
		})
	}
	return writeCSV(w, tripHeader, rows)
}

// WriteVisits writes the visit table as CSV
func WriteVisits(w io.Writer, recs []VisitRecord) error {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.IndividualID, strconv.Itoa(r.VisitID), marker(r.LocationID),
			tfmt(r.StartTime), tfmt(r.EndTime), ftoa(r.DurationMin, 2),
			ftoa(r.Lat, 6), ftoa(r.Lon, 6), ftoa(r.RadiusM, 1), btoa(r.Valid),
			r.IsHome.String(), ftoa(r.DistHomeKM, 3), marker(r.StoreID),
			marker(r.ArrivalTrip), string(r.ArrivalMode),
			marker(r.DepartureTrip), string(r.DepartureMode),
		})
	}
	return writeCSV(w, visitHeader, rows)
}

// WriteLocations writes the location table as CSV
func WriteLocations(w io.Writer, recs []LocationRecord) error {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.IndividualID, strconv.Itoa(r.LocationID), ftoa(r.Lat, 6), ftoa(r.Lon, 6),
			ftoa(r.RadiusM, 1), strconv.Itoa(r.NVisits), strconv.Itoa(r.NValidVisits),
			ftoa(r.TotalMin, 2), ftoa(r.AvgStayMin, 2), ftoa(r.AvgValidStayMin, 2),
			r.IsHome.String(), marker(r.StoreID), ftoa(r.DistHomeKM, 3),
			strconv.Itoa(r.ArrivedFromHome), strconv.Itoa(r.DepartedToHome),
		})
	}
	return writeCSV(w, locationHeader, rows)
}

// WriteFixes writes the per-fix log as CSV
func WriteFixes(w io.Writer, recs []FixRecord) error {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.IndividualID, strconv.Itoa(r.Index), tfmt(r.Time), tfmt(r.Local),
			ftoa(r.Lat, 6), ftoa(r.Lon, 6), ftoa(r.Elevation, 1), ftoa(r.SpeedKMH, 2),
			r.State.String(), r.FixType, marker(r.TripID), string(r.TripMode),
			marker(r.VisitID), marker(r.LocationID), btoa(r.IsHome), marker(r.StoreID),
		})
	}
	return writeCSV(w, fixHeader, rows)
}

// WriteCommute writes the commute day table as CSV
func WriteCommute(w io.Writer, recs []CommuteRecord) error {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.IndividualID, r.Date, r.Rule, string(r.Direction), btoa(r.Accepted),
			string(r.Reason), r.Detail, tfmt(r.StartTime), tfmt(r.EndTime),
			ftoa(r.DurationMin, 2), ftoa(r.DistanceKM, 3), ftoa(r.CrowKM, 3),
			ftoa(r.AvgSpeedKMH, 2), ftoa(r.MaxSpeedKMH, 2), string(r.Mode),
		})
	}
	return writeCSV(w, commuteHeader, rows)
}

// WriteSummary writes a summary as metric,value rows
func WriteSummary(w io.Writer, s Summary) error {
	rows := [][]string{
		{"individual_id", s.IndividualID},
		{"number_of_days", strconv.Itoa(s.Days)},
		{"total_hours", ftoa(s.TotalHours, 2)},
		{"valid_hours", ftoa(s.ValidHours, 2)},
		{"signal_loss_hours", ftoa(s.LostHours, 2)},
		{"source_fixes", strconv.Itoa(s.SourceFixes)},
		{"clean_fixes", strconv.Itoa(s.CleanFixes)},
		{"unordered_source", btoa(s.UnorderedSource)},
		{"trips_from_home", strconv.Itoa(s.TripsFromHome)},
		{"trips_to_home", strconv.Itoa(s.TripsToHome)},
		{"visits", strconv.Itoa(s.Visits)},
		{"valid_visits", strconv.Itoa(s.ValidVisits)},
		{"store_visits", strconv.Itoa(s.StoreVisits)},
		{"home_visits", strconv.Itoa(s.HomeVisits)},
		{"locations", strconv.Itoa(s.Locations)},
	}
	rows = appendTripStats(rows, "trips", s.Trips)
	for _, mode := range SummaryModes {
		rows = appendTripStats(rows, string(mode), s.ByMode[mode])
	}
	if s.FromHome != nil {
		rows = append(rows,
			[]string{"from_home_avg_km", ftoa(s.FromHome.AvgDistanceKM, 3)},
			[]string{"from_home_max_km", ftoa(s.FromHome.MaxDistanceKM, 3)},
			[]string{"from_home_min_km", ftoa(s.FromHome.MinDistanceKM, 3)},
		)
	}
	return writeCSV(w, []string{"metric", "value"}, rows)
}

func appendTripStats(rows [][]string, prefix string, ts TripStats) [][]string {
	rows = append(rows, []string{prefix + "_count", strconv.Itoa(ts.Count)})
	for _, part := range []struct {
		name  string
		stats Stats
	}{
		{"duration_min", ts.DurationMin},
		{"distance_km", ts.DistanceKM},
		{"crow_km", ts.CrowKM},
	} {
		base := prefix + "_" + part.name + "_"
		rows = append(rows,
			[]string{base + "mean", ftoa(part.stats.Mean, 3)},
			[]string{base + "std", ftoa(part.stats.Std, 3)},
			[]string{base + "min", ftoa(part.stats.Min, 3)},
			[]string{base + "max", ftoa(part.stats.Max, 3)},
			[]string{base + "p25", ftoa(part.stats.P25, 3)},
			[]string{base + "p50", ftoa(part.stats.P50, 3)},
			[]string{base + "p75", ftoa(part.stats.P75, 3)},
		)
	}
	return rows
}

// Files lists the report files written for one individual. Commute is
// empty when no commute days were produced.
type Files struct {
	Trips     string `json:"trips"`
	Visits    string `json:"visits"`
	Locations string `json:"locations"`
	Fixes     string `json:"fixes"`
	Summary   string `json:"summary"`
	Commute   string `json:"commute,omitempty"`
}

type table struct {
	name  string
	dst   *string
	write func(io.Writer) error
}

// Writer writes report files into one output directory
type Writer struct {
	dir    string
	logger zerolog.Logger
}

// NewWriter creates a writer rooted at dir
func NewWriter(dir string, logger zerolog.Logger) *Writer {
	return &Writer{dir: dir, logger: logger}
}

// WriteAll writes every table for one segmented trajectory. Files are named
// after the trajectory id and the given tag, which may be empty.
func (w *Writer) WriteAll(t *trajectory.Trajectory, days []commute.Day, tag string) (Files, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return Files{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	prefix := t.ID
	if tag != "" {
		prefix += "_" + tag
	}

	var files Files
	steps := []table{
		{"trips", &files.Trips, func(f io.Writer) error { return WriteTrips(f, Trips(t)) }},
		{"visits", &files.Visits, func(f io.Writer) error { return WriteVisits(f, Visits(t)) }},
		{"locations", &files.Locations, func(f io.Writer) error { return WriteLocations(f, Locations(t)) }},
		{"gis", &files.Fixes, func(f io.Writer) error { return WriteFixes(f, Fixes(t)) }},
		{"summary", &files.Summary, func(f io.Writer) error { return WriteSummary(f, Summarize(t)) }},
	}
	if len(days) > 0 {
		steps = append(steps, table{"commute", &files.Commute, func(f io.Writer) error { return WriteCommute(f, CommuteDays(t.ID, days)) }})
	}

	for _, step := range steps {
		path := filepath.Join(w.dir, fmt.Sprintf("%s_%s.csv", prefix, step.name))
		if err := w.writeFile(path, step.write); err != nil {
			return Files{}, err
		}
		*step.dst = path
	}

	w.logger.Info().
		Str("individual_id", t.ID).
		Str("dir", w.dir).
		Int("trips", len(t.Trips)).
		Int("visits", len(t.Visits)).
		Msg("Report files written")
	return files, nil
}

func (w *Writer) writeFile(path string, write func(io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close CSV file: %w", closeErr)
		}
	}()

	if err := write(file); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
