// Package tools executes plan steps: bus position, weather and ETA lookups
// with per-tool caching and fallbacks.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/WessleyAI/transit-mvp/engine/domain"
	"github.com/WessleyAI/transit-mvp/engine/fleet"
	"github.com/WessleyAI/transit-mvp/engine/geo"
	"github.com/WessleyAI/transit-mvp/pkg/kv"
	"github.com/WessleyAI/transit-mvp/pkg/metrics"
)

// Cache lifetimes.
const (
	WeatherTTL = 300 * time.Second
	ETATTL     = 60 * time.Second
)

var tracer = otel.Tracer("transit/engine/tools")

// Config wires an Executor. Registry, Positions and Weather are required.
type Config struct {
	Registry  fleet.Registry
	Positions PositionProvider
	Weather   WeatherProvider
	// Stops defaults to DefaultStopResolvers(Registry).
	Stops        []StopResolver
	WeatherCache *kv.Cache[domain.WeatherResult]
	ETACache     *kv.Cache[domain.ETAResult]
	Metrics      *metrics.Registry
	Logger       *slog.Logger
}

// Executor runs plans. It holds no per-request state and is safe for
// concurrent use.
type Executor struct {
	registry     fleet.Registry
	positions    PositionProvider
	weather      WeatherProvider
	stops        []StopResolver
	weatherCache *kv.Cache[domain.WeatherResult]
	etaCache     *kv.Cache[domain.ETAResult]
	logger       *slog.Logger
	observe      func(tool domain.Tool, kind string, d time.Duration)
}

// NewExecutor creates an Executor from cfg.
func NewExecutor(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Stops == nil {
		cfg.Stops = DefaultStopResolvers(cfg.Registry)
	}
	e := &Executor{
		registry:     cfg.Registry,
		positions:    cfg.Positions,
		weather:      cfg.Weather,
		stops:        cfg.Stops,
		weatherCache: cfg.WeatherCache,
		etaCache:     cfg.ETACache,
		logger:       cfg.Logger,
		observe:      func(domain.Tool, string, time.Duration) {},
	}
	if cfg.Metrics != nil {
		steps := cfg.Metrics.Counter("transit_tool_steps_total", "Executed plan steps by tool and result kind", "tool", "kind")
		dur := cfg.Metrics.Histogram("transit_tool_step_duration_seconds", "Plan step duration", nil, "tool")
		e.observe = func(tool domain.Tool, kind string, d time.Duration) {
			steps.WithLabelValues(string(tool), kind).Inc()
			dur.WithLabelValues(string(tool)).Observe(d.Seconds())
		}
	}
	return e
}

// execution carries results between the steps of one plan.
type execution struct {
	query       string
	docs        []string
	lastPos     *domain.PositionResult
	lastWeather *domain.WeatherResult
}

// Execute runs every step in order. The trace has one entry per step; a
// failing step records an error or fallback and the next step still runs.
func (e *Executor) Execute(ctx context.Context, plan domain.Plan, query string, docs []string) domain.Trace {
	ex := &execution{query: query, docs: docs}
	trace := make(domain.Trace, 0, len(plan))
	for _, step := range plan {
		start := time.Now()
		res := e.runStep(ctx, ex, step)
		e.observe(step.Tool, res.Kind(), time.Since(start))
		trace = append(trace, domain.ToolResult{Step: step, Result: res})
	}
	return trace
}

func (e *Executor) runStep(ctx context.Context, ex *execution, step domain.PlanStep) (res domain.Result) {
	ctx, span := tracer.Start(ctx, "tool."+string(step.Tool), trace.WithAttributes(attribute.String("tool", string(step.Tool))))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tools: step panicked", "tool", step.Tool, "panic", fmt.Sprint(r))
			if step.Tool == domain.ToolETA {
				res = domain.FallbackETA(step.Param("bus_id"), step.Param("stop_id"))
			} else {
				res = domain.Errorf("%v", r)
			}
		}
		span.SetAttributes(attribute.String("result", res.Kind()))
	}()

	switch step.Tool {
	case domain.ToolPosition:
		return e.position(ctx, ex, step)
	case domain.ToolWeather:
		return e.weatherStep(ctx, ex, step)
	case domain.ToolETA:
		return e.eta(ctx, ex, step)
	default:
		return domain.NoOpResult{Info: "no-op"}
	}
}

func (e *Executor) position(ctx context.Context, ex *execution, step domain.PlanStep) domain.Result {
	bus := busIDFor(step, ex.query)
	if bus == "" {
		return domain.ErrorResult{Message: domain.ErrNoBusID.Error()}
	}
	pos, err := e.positions.Position(ctx, bus)
	if err != nil {
		e.logger.Warn("tools: position lookup failed", "bus_id", bus, "err", err)
		return domain.Errorf("position for %s unavailable", bus)
	}
	ex.lastPos = &pos
	return pos
}

func (e *Executor) weatherStep(ctx context.Context, ex *execution, step domain.PlanStep) domain.Result {
	p, ok := e.weatherPoint(ctx, ex, step)
	if !ok {
		return domain.ErrorResult{Message: "No coordinates available for weather tool"}
	}
	key := fmt.Sprintf("%.3f:%.3f", geo.Round(p.Lat, 3), geo.Round(p.Lon, 3))
	if w, hit := e.weatherCache.Get(ctx, key); hit {
		w.Cached = true
		ex.lastWeather = &w
		return w
	}
	w := e.weather.WeatherAt(ctx, p)
	if w.Condition != domain.UnknownWeather().Condition {
		e.weatherCache.Set(ctx, key, w)
	}
	ex.lastWeather = &w
	return w
}

// weatherPoint takes explicit lat/lon, then a route's first stop, then the
// last position seen in this execution.
func (e *Executor) weatherPoint(ctx context.Context, ex *execution, step domain.PlanStep) (geo.Point, bool) {
	lat, okLat := step.FloatParam("lat")
	lon, okLon := step.FloatParam("lon")
	if okLat && okLon {
		return geo.Point{Lat: lat, Lon: lon}, true
	}
	if route := step.Param("route_id"); route != "" {
		stops, err := e.registry.RouteStops(ctx, route)
		if err == nil && len(stops) > 0 {
			return stops[0].Point(), true
		}
		e.logger.Warn("tools: route has no usable stop for weather", "route_id", route, "err", err)
	}
	if ex.lastPos != nil {
		return ex.lastPos.Point(), true
	}
	return geo.Point{}, false
}

func (e *Executor) eta(ctx context.Context, ex *execution, step domain.PlanStep) domain.Result {
	bus := busIDFor(step, ex.query)
	stop := step.Param("stop_id")
	if stop == "" {
		stop = step.Param("stop")
	}
	if stop == "" {
		stop = domain.DefaultStopID
	}

	key := bus + ":" + stop
	if bus != "" {
		if r, hit := e.etaCache.Get(ctx, key); hit {
			r.Cached = true
			return r
		}
	}

	stopRes := ResolveStop(ctx, StopLookup{BusID: bus, StopID: stop, Docs: ex.docs}, e.stops...)
	stopPt, stopErr := stopRes.Unwrap()
	if stopErr != nil {
		e.logger.Warn("tools: stop coordinates unresolved", "stop_id", stop, "err", stopErr)
	}
	if ex.lastPos == nil && bus != "" {
		if pos, err := e.positions.Position(ctx, bus); err == nil {
			ex.lastPos = &pos
		} else {
			e.logger.Warn("tools: bus position unresolved for eta", "bus_id", bus, "err", err)
		}
	}
	if bus == "" || stopErr != nil || ex.lastPos == nil {
		return domain.FallbackETA(bus, stop)
	}

	dist := geo.HaversineKm(ex.lastPos.Point(), stopPt)
	speed := geo.NormalizeSpeed(ex.lastPos.SpeedKmph)
	secs := geo.ETASeconds(dist, speed)
	if ex.lastWeather != nil {
		secs += ex.lastWeather.ExpectedDelaySec
	}
	r := domain.ETAResult{
		BusID:      bus,
		StopID:     stop,
		ETASec:     secs,
		DistanceKm: geo.Round(dist, 2),
		SpeedKmph:  speed,
		Stop:       &stopPt,
	}
	e.etaCache.Set(ctx, key, r)
	return r
}

func busIDFor(step domain.PlanStep, query string) string {
	if b := step.Param("bus_id"); b != "" {
		return b
	}
	return domain.FirstBusID(query)
}
