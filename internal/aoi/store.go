package aoi

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/stuartshay/trajectory-worker/internal/geodesic"
)

// NoStore marks a fix or visit that is not at any registered store
const NoStore = -1

// Store is a registered point of interest. Marker carries a study-specific
// category code (for example whether the store sells fresh food).
type Store struct {
	ID     int
	Marker int
	AreaOfInterest
}

// StoreSet is the registry of stores for one study area
type StoreSet []Store

// Nearest returns the id of the closest store whose geofence contains p,
// or NoStore.
func (s StoreSet) Nearest(p geodesic.Point) int {
	best := NoStore
	bestDist := 0.0
	for _, st := range s {
		if !st.Contains(p) {
			continue
		}
		d := st.DistanceTo(p)
		if best == NoStore || d < bestDist {
			best, bestDist = st.ID, d
		}
	}
	return best
}

// Marker returns the category code of store id, or NoStore
func (s StoreSet) Marker(id int) int {
	for _, st := range s {
		if st.ID == id {
			return st.Marker
		}
	}
	return NoStore
}

// Assign returns the nearest store id for every point
func (s StoreSet) Assign(points []geodesic.Point) []int {
	ids := make([]int, len(points))
	for i, p := range points {
		ids[i] = s.Nearest(p)
	}
	return ids
}

// LoadStores reads a store registry from CSV with a header row containing
// id, latitude and longitude columns. Optional name, marker and radius
// columns are honoured; radius overrides defaultRadius per store.
func LoadStores(r io.Reader, defaultRadius float64) (StoreSet, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read store header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"id", "latitude", "longitude"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("store file missing column %q", required)
		}
	}

	var stores StoreSet
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read store line %d: %w", line, err)
		}

		id, err := strconv.Atoi(record[cols["id"]])
		if err != nil {
			return nil, fmt.Errorf("invalid store id on line %d: %w", line, err)
		}
		lat, err := strconv.ParseFloat(record[cols["latitude"]], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude on line %d: %w", line, err)
		}
		lon, err := strconv.ParseFloat(record[cols["longitude"]], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude on line %d: %w", line, err)
		}

		radius := defaultRadius
		if i, ok := cols["radius"]; ok && record[i] != "" {
			if radius, err = strconv.ParseFloat(record[i], 64); err != nil {
				return nil, fmt.Errorf("invalid radius on line %d: %w", line, err)
			}
		}

		name := ""
		if i, ok := cols["name"]; ok {
			name = record[i]
		}

		marker := 0
		if i, ok := cols["marker"]; ok && record[i] != "" {
			if marker, err = strconv.Atoi(record[i]); err != nil {
				return nil, fmt.Errorf("invalid marker on line %d: %w", line, err)
			}
		}

		stores = append(stores, Store{ID: id, Marker: marker, AreaOfInterest: New(name, lat, lon, radius)})
	}

	return stores, nil
}
