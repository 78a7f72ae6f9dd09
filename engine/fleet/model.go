// Package fleet holds the bus and route registry: the in-memory registry
// loaded from snapshot files, the Neo4j-backed registry and seeding.
package fleet

import (
	"encoding/json"
	"sort"

	"github.com/WessleyAI/transit-mvp/engine/geo"
)

// DefaultReportedSpeedKmph is assumed for buses whose snapshot omits a speed.
const DefaultReportedSpeedKmph = 20.0

// Bus is the last reported state of one vehicle.
type Bus struct {
	ID            string  `json:"-" yaml:"-"`
	RouteID       string  `json:"route_id,omitempty" yaml:"route_id"`
	Lat           float64 `json:"lat" yaml:"lat"`
	Lon           float64 `json:"lon" yaml:"lon"`
	SpeedKmph     float64 `json:"speed_kmph,omitempty" yaml:"speed_kmph"`
	Status        string  `json:"status,omitempty" yaml:"status"`
	StatusMessage string  `json:"status_message,omitempty" yaml:"status_message"`
}

// Point returns the bus location.
func (b Bus) Point() geo.Point { return geo.Point{Lat: b.Lat, Lon: b.Lon} }

// Speed returns the reported speed, DefaultReportedSpeedKmph when absent.
func (b Bus) Speed() float64 {
	if b.SpeedKmph <= 0 {
		return DefaultReportedSpeedKmph
	}
	return b.SpeedKmph
}

// Stop is a named coordinate on a route.
type Stop struct {
	StopID string  `json:"stop_id" yaml:"stop_id"`
	Lat    float64 `json:"lat" yaml:"lat"`
	Lon    float64 `json:"lon" yaml:"lon"`
}

// Point returns the stop location.
func (s Stop) Point() geo.Point { return geo.Point{Lat: s.Lat, Lon: s.Lon} }

// Route is an ordered list of stops.
type Route struct {
	ID    string `json:"-" yaml:"-"`
	Name  string `json:"name,omitempty" yaml:"name"`
	Stops []Stop `json:"stops" yaml:"stops"`
}

// Snapshot is a full copy of the registry contents.
type Snapshot struct {
	Buses  map[string]Bus
	Routes map[string]Route
}

// BusIDs returns the bus ids in ascending order.
func (s Snapshot) BusIDs() []string { return sortedKeys(s.Buses) }

// RouteIDs returns the route ids in ascending order.
func (s Snapshot) RouteIDs() []string { return sortedKeys(s.Routes) }

// JSON renders v compactly for inclusion in context documents.
func JSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
