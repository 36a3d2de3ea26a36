// Package timezone assigns local time to fixes from their coordinates.
package timezone

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/ringsaturn/tzf"

	"github.com/stuartshay/trajectory-worker/internal/trajectory"
)

type nameFinder interface {
	GetTimezoneName(lng, lat float64) string
}

// Resolver maps coordinates to time zones. A fixed zone, when configured,
// bypasses the lookup. Safe for concurrent use.
type Resolver struct {
	finder nameFinder
	fixed  *time.Location

	mu    sync.Mutex
	cache map[string]*time.Location
}

// NewResolver creates a resolver. A non-empty zone name pins every lookup
// to that zone; otherwise the embedded time zone polygons are loaded.
func NewResolver(zone string) (*Resolver, error) {
	if zone != "" {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			return nil, fmt.Errorf("load time zone %q: %w", zone, err)
		}
		return &Resolver{fixed: loc, cache: make(map[string]*time.Location)}, nil
	}

	finder, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, fmt.Errorf("load time zone finder: %w", err)
	}
	return newResolver(finder), nil
}

func newResolver(f nameFinder) *Resolver {
	return &Resolver{finder: f, cache: make(map[string]*time.Location)}
}

// Locate returns the time zone at a position
func (r *Resolver) Locate(lat, lon float64) (*time.Location, error) {
	if r.fixed != nil {
		return r.fixed, nil
	}

	name := r.finder.GetTimezoneName(lon, lat)
	if name == "" {
		return nil, fmt.Errorf("no time zone at %.6f,%.6f", lat, lon)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if loc, ok := r.cache[name]; ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	r.cache[name] = loc
	return loc, nil
}

// Localize sets the local time of every fix from the zone at the first fix.
// One individual's data is assumed to stay within a single zone.
func (r *Resolver) Localize(fixes []trajectory.Fix) (*time.Location, error) {
	if len(fixes) == 0 {
		return time.UTC, nil
	}
	loc, err := r.Locate(fixes[0].Lat, fixes[0].Lon)
	if err != nil {
		return nil, err
	}
	for i := range fixes {
		fixes[i].Local = fixes[i].Time.In(loc)
	}
	return loc, nil
}
