package fleet

import (
	"context"
	"fmt"

	"github.com/WessleyAI/transit-mvp/pkg/repo"
)

var constraints = []string{
	`CREATE CONSTRAINT bus_id IF NOT EXISTS FOR (n:Bus) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT route_id IF NOT EXISTS FOR (n:Route) REQUIRE n.id IS UNIQUE`,
	`CREATE CONSTRAINT stop_id IF NOT EXISTS FOR (n:Stop) REQUIRE n.id IS UNIQUE`,
}

const linkStop = `MERGE (s:Stop {id: $stop}) SET s.lat = $lat, s.lon = $lon
WITH s MATCH (r:Route {id: $route})
MERGE (r)-[h:HAS_STOP]->(s) SET h.seq = $seq`

const linkBus = `MATCH (b:Bus {id: $bus})
OPTIONAL MATCH (b)-[o:ON_ROUTE]->()
DELETE o
WITH DISTINCT b MATCH (r:Route {id: $route})
MERGE (b)-[:ON_ROUTE]->(r)`

// SeedCount is the number of progress steps Seed reports for s.
func SeedCount(s Snapshot) int { return len(s.Routes) + len(s.Buses) }

// Seed writes the snapshot into the graph. Routes are written before buses so
// ON_ROUTE edges can be linked. progress, when non-nil, is called once per
// route and per bus.
func Seed(ctx context.Context, sessions repo.SessionFunc, s Snapshot, progress func()) error {
	g := NewNeo4jRegistry(sessions)
	for _, c := range constraints {
		if err := repo.Exec(ctx, sessions, c, nil); err != nil {
			return fmt.Errorf("seed: constraint: %w", err)
		}
	}
	tick := func() {
		if progress != nil {
			progress()
		}
	}

	for _, id := range s.RouteIDs() {
		rt := s.Routes[id]
		rt.ID = id
		if err := g.routes.Upsert(ctx, rt); err != nil {
			return fmt.Errorf("seed: route %s: %w", id, err)
		}
		for seq, st := range rt.Stops {
			params := map[string]any{"stop": st.StopID, "lat": st.Lat, "lon": st.Lon, "route": id, "seq": seq}
			if err := repo.Exec(ctx, sessions, linkStop, params); err != nil {
				return fmt.Errorf("seed: stop %s on %s: %w", st.StopID, id, err)
			}
		}
		tick()
	}

	for _, id := range s.BusIDs() {
		b := s.Buses[id]
		b.ID = id
		if err := g.buses.Upsert(ctx, b); err != nil {
			return fmt.Errorf("seed: bus %s: %w", id, err)
		}
		if b.RouteID != "" {
			if err := repo.Exec(ctx, sessions, linkBus, map[string]any{"bus": id, "route": b.RouteID}); err != nil {
				return fmt.Errorf("seed: link bus %s: %w", id, err)
			}
		}
		tick()
	}
	return nil
}
