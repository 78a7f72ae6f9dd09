package fleet

import (
	"context"
	"errors"

	"github.com/WessleyAI/transit-mvp/engine/geo"
)

// ErrNotFound is returned for unknown buses, routes and stops.
var ErrNotFound = errors.New("fleet: not found")

// Registry is the read side of the fleet and route data.
type Registry interface {
	BusExists(ctx context.Context, busID string) (bool, error)
	RouteExists(ctx context.Context, routeID string) (bool, error)
	// BusRoute returns the route a bus is assigned to, or ErrNotFound.
	BusRoute(ctx context.Context, busID string) (string, error)
	RouteStops(ctx context.Context, routeID string) ([]Stop, error)
	// BusesOnRoute returns the ids of every bus on the route, ascending.
	BusesOnRoute(ctx context.Context, routeID string) ([]string, error)
	Bus(ctx context.Context, busID string) (Bus, error)
	// StopCoords finds a stop by id across all routes.
	StopCoords(ctx context.Context, stopID string) (geo.Point, error)
	Snapshot(ctx context.Context) (Snapshot, error)
}

// StopOnBusRoute resolves a stop through the bus's current route.
func StopOnBusRoute(ctx context.Context, r Registry, busID, stopID string) (geo.Point, error) {
	routeID, err := r.BusRoute(ctx, busID)
	if err != nil {
		return geo.Point{}, err
	}
	stops, err := r.RouteStops(ctx, routeID)
	if err != nil {
		return geo.Point{}, err
	}
	for _, s := range stops {
		if s.StopID == stopID {
			return s.Point(), nil
		}
	}
	return geo.Point{}, ErrNotFound
}
