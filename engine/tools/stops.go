package tools

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/WessleyAI/transit-mvp/engine/domain"
	"github.com/WessleyAI/transit-mvp/engine/fleet"
	"github.com/WessleyAI/transit-mvp/engine/geo"
	"github.com/WessleyAI/transit-mvp/pkg/fn"
)

// StopLookup names the stop to resolve and what is known around it.
type StopLookup struct {
	BusID  string
	StopID string
	Docs   []string
}

// StopResolver finds a stop's coordinates from one source.
type StopResolver func(ctx context.Context, q StopLookup) (geo.Point, error)

// ResolveStop runs resolvers in order until one succeeds.
func ResolveStop(ctx context.Context, q StopLookup, resolvers ...StopResolver) fn.Result[geo.Point] {
	chain := fn.Map(resolvers, func(r StopResolver) fn.Resolver[geo.Point] {
		return func(ctx context.Context) fn.Result[geo.Point] { return fn.FromPair(r(ctx, q)) }
	})
	return fn.FirstOk(ctx, chain...)
}

// DefaultStopResolvers is registry-by-route, then any route, then context text.
func DefaultStopResolvers(reg fleet.Registry) []StopResolver {
	return []StopResolver{BusRouteStop(reg), AnyRouteStop(reg), ContextStop}
}

// BusRouteStop looks the stop up on the bus's current route.
func BusRouteStop(reg fleet.Registry) StopResolver {
	return func(ctx context.Context, q StopLookup) (geo.Point, error) {
		if q.BusID == "" {
			return geo.Point{}, domain.ErrNoBusID
		}
		return fleet.StopOnBusRoute(ctx, reg, q.BusID, q.StopID)
	}
}

// AnyRouteStop looks the stop up across every route.
func AnyRouteStop(reg fleet.Registry) StopResolver {
	return func(ctx context.Context, q StopLookup) (geo.Point, error) {
		return reg.StopCoords(ctx, q.StopID)
	}
}

var decimalRe = regexp.MustCompile(`[-+]?\d+\.\d+`)

// ContextStop reads the first two decimal numbers that follow a mention of
// the stop id in a retrieved document.
func ContextStop(_ context.Context, q StopLookup) (geo.Point, error) {
	if q.StopID == "" {
		return geo.Point{}, domain.ErrNoCoordinates
	}
	mention := regexp.MustCompile(`\b` + regexp.QuoteMeta(q.StopID) + `\b`)
	for _, d := range q.Docs {
		loc := mention.FindStringIndex(d)
		if loc == nil {
			continue
		}
		nums := decimalRe.FindAllString(d[loc[1]:], 2)
		if len(nums) < 2 {
			continue
		}
		lat, err1 := strconv.ParseFloat(nums[0], 64)
		lon, err2 := strconv.ParseFloat(nums[1], 64)
		if err1 == nil && err2 == nil {
			return geo.Point{Lat: lat, Lon: lon}, nil
		}
	}
	return geo.Point{}, fmt.Errorf("stop %s in context: %w", q.StopID, domain.ErrNoCoordinates)
}
