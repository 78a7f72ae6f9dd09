package fleet

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/WessleyAI/transit-mvp/engine/geo"
	"github.com/WessleyAI/transit-mvp/pkg/repo"
)

// Graph model:
//
//	(:Bus {id, lat, lon, speed_kmph, status, status_message, route_id})
//	  -[:ON_ROUTE]->(:Route {id, name})-[:HAS_STOP {seq}]->(:Stop {id, lat, lon})

// Neo4jRegistry reads fleet data from a Neo4j graph.
type Neo4jRegistry struct {
	sessions repo.SessionFunc
	buses    *repo.Neo4jRepo[Bus, string]
	routes   *repo.Neo4jRepo[Route, string]
	stops    *repo.Neo4jRepo[Stop, string]
}

var _ Registry = (*Neo4jRegistry)(nil)

// NewNeo4jRegistry creates a registry over sessions.
func NewNeo4jRegistry(sessions repo.SessionFunc) *Neo4jRegistry {
	return &Neo4jRegistry{
		sessions: sessions,
		buses:    repo.NewNeo4jRepo[Bus, string](sessions, "Bus", busToMap, busFromRecord),
		routes:   repo.NewNeo4jRepo[Route, string](sessions, "Route", routeToMap, routeFromRecord),
		stops:    repo.NewNeo4jRepo[Stop, string](sessions, "Stop", stopToMap, stopFromRecord),
	}
}

func (g *Neo4jRegistry) BusExists(ctx context.Context, busID string) (bool, error) {
	return g.buses.Exists(ctx, busID)
}

func (g *Neo4jRegistry) RouteExists(ctx context.Context, routeID string) (bool, error) {
	return g.routes.Exists(ctx, routeID)
}

func (g *Neo4jRegistry) BusRoute(ctx context.Context, busID string) (string, error) {
	ids, err := repo.Query(ctx, g.sessions,
		`MATCH (:Bus {id: $id})-[:ON_ROUTE]->(r:Route) RETURN r.id AS id LIMIT 1`,
		map[string]any{"id": busID}, idFromRecord)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("route of bus %s: %w", busID, ErrNotFound)
	}
	return ids[0], nil
}

func (g *Neo4jRegistry) RouteStops(ctx context.Context, routeID string) ([]Stop, error) {
	ok, err := g.routes.Exists(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("route %s: %w", routeID, ErrNotFound)
	}
	return repo.Query(ctx, g.sessions,
		`MATCH (:Route {id: $id})-[h:HAS_STOP]->(n:Stop) RETURN n ORDER BY h.seq`,
		map[string]any{"id": routeID}, stopFromRecord)
}

func (g *Neo4jRegistry) BusesOnRoute(ctx context.Context, routeID string) ([]string, error) {
	return repo.Query(ctx, g.sessions,
		`MATCH (b:Bus)-[:ON_ROUTE]->(:Route {id: $id}) RETURN b.id AS id ORDER BY id`,
		map[string]any{"id": routeID}, idFromRecord)
}

func (g *Neo4jRegistry) Bus(ctx context.Context, busID string) (Bus, error) {
	b, err := g.buses.Get(ctx, busID)
	if errors.Is(err, repo.ErrNotFound) {
		return Bus{}, fmt.Errorf("bus %s: %w", busID, ErrNotFound)
	}
	return b, err
}

func (g *Neo4jRegistry) StopCoords(ctx context.Context, stopID string) (geo.Point, error) {
	s, err := g.stops.Get(ctx, stopID)
	if errors.Is(err, repo.ErrNotFound) {
		return geo.Point{}, fmt.Errorf("stop %s: %w", stopID, ErrNotFound)
	}
	if err != nil {
		return geo.Point{}, err
	}
	return s.Point(), nil
}

// Snapshot lists up to 1000 buses and routes.
func (g *Neo4jRegistry) Snapshot(ctx context.Context) (Snapshot, error) {
	s := Snapshot{Buses: map[string]Bus{}, Routes: map[string]Route{}}
	buses, err := g.buses.List(ctx, repo.ListOpts{Limit: 1000})
	if err != nil {
		return Snapshot{}, fmt.Errorf("list buses: %w", err)
	}
	for _, b := range buses {
		s.Buses[b.ID] = b
	}
	routes, err := g.routes.List(ctx, repo.ListOpts{Limit: 1000})
	if err != nil {
		return Snapshot{}, fmt.Errorf("list routes: %w", err)
	}
	for _, rt := range routes {
		stops, err := g.RouteStops(ctx, rt.ID)
		if err != nil {
			return Snapshot{}, err
		}
		rt.Stops = stops
		s.Routes[rt.ID] = rt
	}
	return s, nil
}

// NodeCounts returns node counts grouped by label.
func (g *Neo4jRegistry) NodeCounts(ctx context.Context) (map[string]int64, error) {
	type row struct {
		label string
		count int64
	}
	rows, err := repo.Query(ctx, g.sessions,
		`MATCH (n) RETURN labels(n)[0] AS type, count(*) AS count`, nil,
		func(rec *neo4j.Record) (row, error) {
			t, _, err := neo4j.GetRecordValue[string](rec, "type")
			if err != nil {
				return row{}, err
			}
			c, _, err := neo4j.GetRecordValue[int64](rec, "count")
			return row{label: t, count: c}, err
		})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.label] = r.count
	}
	return counts, nil
}

func busToMap(b Bus) map[string]any {
	return map[string]any{
		"id":             b.ID,
		"route_id":       b.RouteID,
		"lat":            b.Lat,
		"lon":            b.Lon,
		"speed_kmph":     b.SpeedKmph,
		"status":         b.Status,
		"status_message": b.StatusMessage,
	}
}

func busFromRecord(rec *neo4j.Record) (Bus, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return Bus{}, err
	}
	p := node.Props
	return Bus{
		ID:            strProp(p, "id"),
		RouteID:       strProp(p, "route_id"),
		Lat:           floatProp(p, "lat"),
		Lon:           floatProp(p, "lon"),
		SpeedKmph:     floatProp(p, "speed_kmph"),
		Status:        strProp(p, "status"),
		StatusMessage: strProp(p, "status_message"),
	}, nil
}

func routeToMap(r Route) map[string]any {
	return map[string]any{"id": r.ID, "name": r.Name}
}

func routeFromRecord(rec *neo4j.Record) (Route, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return Route{}, err
	}
	return Route{ID: strProp(node.Props, "id"), Name: strProp(node.Props, "name")}, nil
}

func stopToMap(s Stop) map[string]any {
	return map[string]any{"id": s.StopID, "lat": s.Lat, "lon": s.Lon}
}

func stopFromRecord(rec *neo4j.Record) (Stop, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return Stop{}, err
	}
	p := node.Props
	return Stop{StopID: strProp(p, "id"), Lat: floatProp(p, "lat"), Lon: floatProp(p, "lon")}, nil
}

func idFromRecord(rec *neo4j.Record) (string, error) {
	id, _, err := neo4j.GetRecordValue[string](rec, "id")
	return id, err
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func floatProp(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}
