package fleet

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/WessleyAI/transit-mvp/engine/geo"
)

// MemoryRegistry serves fleet data from memory. Safe for concurrent use.
type MemoryRegistry struct {
	mu     sync.RWMutex
	buses  map[string]Bus
	routes map[string]Route
}

// NewMemoryRegistry builds a registry from a snapshot. The snapshot maps are
// copied.
func NewMemoryRegistry(s Snapshot) *MemoryRegistry {
	r := &MemoryRegistry{buses: make(map[string]Bus), routes: make(map[string]Route)}
	for id, b := range s.Buses {
		b.ID = id
		r.buses[id] = b
	}
	for id, rt := range s.Routes {
		rt.ID = id
		rt.Stops = append([]Stop(nil), rt.Stops...)
		r.routes[id] = rt
	}
	return r
}

// LoadSnapshot reads buses.{json,yaml,yml} and routes.{json,yaml,yml} from
// dir. A missing file yields an empty section.
func LoadSnapshot(dir string) (Snapshot, error) {
	s := Snapshot{Buses: map[string]Bus{}, Routes: map[string]Route{}}
	if err := loadFile(dir, "buses", &s.Buses); err != nil {
		return Snapshot{}, err
	}
	if err := loadFile(dir, "routes", &s.Routes); err != nil {
		return Snapshot{}, err
	}
	for id, b := range s.Buses {
		b.ID = id
		s.Buses[id] = b
	}
	for id, rt := range s.Routes {
		rt.ID = id
		s.Routes[id] = rt
	}
	return s, nil
}

// loadFile decodes the first existing {base}.json|yaml|yml. JSON is read
// through the YAML decoder, which accepts it as a subset.
func loadFile(dir, base string, out any) error {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(dir, base+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("fleet: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("fleet: parse %s: %w", path, err)
		}
		return nil
	}
	return nil
}

func (r *MemoryRegistry) BusExists(_ context.Context, busID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.buses[busID]
	return ok, nil
}

func (r *MemoryRegistry) RouteExists(_ context.Context, routeID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.routes[routeID]
	return ok, nil
}

func (r *MemoryRegistry) BusRoute(_ context.Context, busID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buses[busID]
	if !ok || b.RouteID == "" {
		return "", fmt.Errorf("route of bus %s: %w", busID, ErrNotFound)
	}
	return b.RouteID, nil
}

func (r *MemoryRegistry) RouteStops(_ context.Context, routeID string) ([]Stop, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routes[routeID]
	if !ok {
		return nil, fmt.Errorf("route %s: %w", routeID, ErrNotFound)
	}
	return append([]Stop(nil), rt.Stops...), nil
}

func (r *MemoryRegistry) BusesOnRoute(_ context.Context, routeID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, b := range r.buses {
		if b.RouteID == routeID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MemoryRegistry) Bus(_ context.Context, busID string) (Bus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buses[busID]
	if !ok {
		return Bus{}, fmt.Errorf("bus %s: %w", busID, ErrNotFound)
	}
	return b, nil
}

// StopCoords scans routes in id order and returns the first matching stop.
func (r *MemoryRegistry) StopCoords(_ context.Context, stopID string) (geo.Point, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range sortedKeys(r.routes) {
		for _, s := range r.routes[id].Stops {
			if s.StopID == stopID {
				return s.Point(), nil
			}
		}
	}
	return geo.Point{}, fmt.Errorf("stop %s: %w", stopID, ErrNotFound)
}

func (r *MemoryRegistry) Snapshot(_ context.Context) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Snapshot{Buses: make(map[string]Bus, len(r.buses)), Routes: make(map[string]Route, len(r.routes))}
	for id, b := range r.buses {
		s.Buses[id] = b
	}
	for id, rt := range r.routes {
		rt.Stops = append([]Stop(nil), rt.Stops...)
		s.Routes[id] = rt
	}
	return s, nil
}

// UpdateLocation records a driver-reported position.
func (r *MemoryRegistry) UpdateLocation(busID string, lat, lon float64) (Bus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buses[busID]
	if !ok {
		return Bus{}, fmt.Errorf("bus %s: %w", busID, ErrNotFound)
	}
	b.Lat, b.Lon = lat, lon
	r.buses[busID] = b
	return b, nil
}
