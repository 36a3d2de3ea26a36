package fixsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/stuartshay/trajectory-worker/internal/trajectory"
)

var qstarzLayouts = []string{
	"2006/1/2 15:04:05",
	"1/2/2006 15:04:05",
	"1/2/06 15:04:05",
}

// qstarzColumns maps normalized header names to the fields a fix needs.
// Older exports name the elevation column ALTITUDE and use underscores.
var qstarzColumns = map[string]string{
	"utc_date":   "utc_date",
	"utc_time":   "utc_time",
	"local_date": "local_date",
	"local_time": "local_time",
	"latitude":   "latitude",
	"n_s":        "n_s",
	"longitude":  "longitude",
	"e_w":        "e_w",
	"height":     "height",
	"altitude":   "height",
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "_", "/", "_", "-", "_").Replace(h)
}

// ReadQstarz reads a Qstarz travel recorder CSV export
func ReadQstarz(r io.Reader, opts Options) ([]trajectory.Fix, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int)
	for i, h := range header {
		if field, ok := qstarzColumns[normalizeHeader(h)]; ok {
			col[field] = i
		}
	}
	for _, required := range []string{"utc_date", "utc_time", "latitude", "n_s", "longitude", "e_w"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var fixes []trajectory.Fix
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) == 0 || strings.TrimSpace(strings.Join(record, "")) == "" {
			continue
		}

		f, err := parseQstarz(record, col, opts)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		f.Index = len(fixes)
		fixes = append(fixes, f)
	}
	return fixes, nil
}

func parseQstarz(record []string, col map[string]int, opts Options) (trajectory.Fix, error) {
	get := func(field string) string {
		i, ok := col[field]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	utc, err := parseQstarzTime(get("utc_date"), get("utc_time"), time.UTC)
	if err != nil {
		return trajectory.Fix{}, err
	}
	if utc, err = opts.fixRollover(utc); err != nil {
		return trajectory.Fix{}, err
	}

	local := utc
	switch {
	case opts.Location != nil:
		local = utc.In(opts.Location)
	case get("local_date") != "":
		wall, err := parseQstarzTime(get("local_date"), get("local_time"), time.UTC)
		if err != nil {
			return trajectory.Fix{}, err
		}
		if wall, err = opts.fixRollover(wall); err != nil {
			return trajectory.Fix{}, err
		}
		offset := wall.Sub(utc).Round(time.Minute)
		local = utc.In(time.FixedZone("", int(offset.Seconds())))
	}

	lat, err := parseHemisphere(get("latitude"), get("n_s"), "N", "S")
	if err != nil {
		return trajectory.Fix{}, err
	}
	lon, err := parseHemisphere(get("longitude"), get("e_w"), "E", "W")
	if err != nil {
		return trajectory.Fix{}, err
	}

	var elev float64
	if h := get("height"); h != "" {
		if elev, err = strconv.ParseFloat(strings.TrimSpace(strings.TrimRight(h, "Mm ")), 64); err != nil {
			return trajectory.Fix{}, fmt.Errorf("height %q: %w", h, err)
		}
	}

	return trajectory.Fix{Time: utc, Local: local, Lat: lat, Lon: lon, Elevation: elev}, nil
}

func parseQstarzTime(date, clock string, loc *time.Location) (time.Time, error) {
	value := date + " " + clock
	for _, layout := range qstarzLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &trajectory.InputError{
		Kind:   trajectory.UnparseableTimestamp,
		Detail: fmt.Sprintf("%q", value),
	}
}

// parseHemisphere applies the hemisphere letter to an unsigned coordinate
func parseHemisphere(value, hemi, positive, negative string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("coordinate %q: %w", value, err)
	}
	switch strings.ToUpper(hemi) {
	case positive:
		return v, nil
	case negative:
		return -v, nil
	default:
		return 0, fmt.Errorf("hemisphere %q is not %s or %s", hemi, positive, negative)
	}
}
