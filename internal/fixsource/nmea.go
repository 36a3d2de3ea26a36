package fixsource

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/adrianmo/go-nmea"

	"github.com/stuartshay/trajectory-worker/internal/trajectory"
)

// nmeaDecoder turns RMC and GGA sentences into fixes. RMC carries the date
// and GGA the altitude, so sentences sharing a timestamp are merged.
type nmeaDecoder struct {
	opts     Options
	refYear  int
	lastDate nmea.Date
	fixes    []trajectory.Fix
	byTime   map[time.Time]int
}

// ReadNMEA reads an NMEA 0183 log. Lines that do not parse are skipped and
// logged; sentences other than RMC and GGA are ignored.
func ReadNMEA(ctx context.Context, r io.Reader, opts Options) ([]trajectory.Fix, error) {
	refYear := opts.FirstYear
	if refYear == 0 {
		refYear = time.Now().UTC().Year()
	}
	d := &nmeaDecoder{opts: opts, refYear: refYear, byTime: make(map[time.Time]int)}

	scanner := bufio.NewScanner(r)
	scanner.Split(scanLines)

	skipped := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		sentence, err := nmea.Parse(string(line))
		if err != nil {
			skipped++
			opts.Logger.Debug().Err(err).Str("raw", string(line)).Msg("Skipping unparseable NMEA line")
			continue
		}
		if err := d.add(sentence); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}
	if skipped > 0 {
		opts.Logger.Warn().Int("skipped", skipped).Msg("NMEA lines skipped")
	}
	return d.fixes, nil
}

func (d *nmeaDecoder) add(sentence nmea.Sentence) error {
	switch s := sentence.(type) {
	case nmea.RMC:
		if s.Validity != nmea.ValidRMC || !s.Date.Valid || !s.Time.Valid {
			return nil
		}
		d.lastDate = s.Date
		f, err := d.fix(nmea.DateTime(d.refYear, s.Date, s.Time), s.Latitude, s.Longitude)
		if err != nil {
			return err
		}
		d.upsert(f, false)

	case nmea.GGA:
		if s.FixQuality == nmea.Invalid || !s.Time.Valid {
			return nil
		}
		if !d.lastDate.Valid {
			// GGA has no date; without a preceding RMC the day is unknown
			d.opts.Logger.Debug().Str("raw", s.Raw).Msg("Dropping GGA sentence before any dated sentence")
			return nil
		}
		f, err := d.fix(nmea.DateTime(d.refYear, d.lastDate, s.Time), s.Latitude, s.Longitude)
		if err != nil {
			return err
		}
		f.Elevation = s.Altitude
		d.upsert(f, true)
	}
	return nil
}

func (d *nmeaDecoder) fix(ts time.Time, lat, lon float64) (trajectory.Fix, error) {
	ts, err := d.opts.fixRollover(ts.UTC())
	if err != nil {
		return trajectory.Fix{}, err
	}
	local := ts
	if d.opts.Location != nil {
		local = ts.In(d.opts.Location)
	}
	return trajectory.Fix{Time: ts, Local: local, Lat: lat, Lon: lon}, nil
}

// upsert appends f or merges it into the fix already recorded at that time
func (d *nmeaDecoder) upsert(f trajectory.Fix, hasElevation bool) {
	if i, ok := d.byTime[f.Time]; ok {
		if hasElevation {
			d.fixes[i].Elevation = f.Elevation
		}
		return
	}
	f.Index = len(d.fixes)
	d.byTime[f.Time] = f.Index
	d.fixes = append(d.fixes, f)
}

// scanLines is a bufio.SplitFunc that accepts \n, \r\n and bare \r line
// endings
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[0:i], nil
		}
		if !atEOF && len(data) == i+1 {
			return 0, nil, nil
		}
		advance = i + 1
		if len(data) > i+1 && data[i+1] == '\n' {
			advance++
		}
		return advance, data[0:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
