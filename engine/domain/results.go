package domain

import (
	"encoding/json"
	"fmt"

	"github.com/WessleyAI/transit-mvp/engine/geo"
)

// Result is the tagged union of tool outputs. The set of implementations is
// closed: PositionResult, WeatherResult, ETAResult, ErrorResult, NoOpResult.
type Result interface {
	Kind() string
	isResult()
}

// PositionResult is a resolved bus position.
type PositionResult struct {
	BusID     string  `json:"bus_id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	SpeedKmph float64 `json:"speed_kmph"`
	RouteID   string  `json:"route_id,omitempty"`
	Status    string  `json:"status,omitempty"`
	Source    string  `json:"source,omitempty"`
}

// Point returns the position as a geo.Point.
func (p PositionResult) Point() geo.Point { return geo.Point{Lat: p.Lat, Lon: p.Lon} }

// WeatherResult is normalized weather at a coordinate.
type WeatherResult struct {
	Condition        string   `json:"condition"`
	Description      string   `json:"description"`
	TempC            *float64 `json:"temp_c"`
	ExpectedDelaySec int      `json:"expected_delay_sec"`
	Cached           bool     `json:"cached,omitempty"`
}

// UnmarshalJSON accepts the "delay" and "temp" spellings used by some providers.
func (w *WeatherResult) UnmarshalJSON(b []byte) error {
	type plain WeatherResult
	var aux struct {
		plain
		Delay *int     `json:"delay"`
		Temp  *float64 `json:"temp"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*w = WeatherResult(aux.plain)
	if w.ExpectedDelaySec == 0 && aux.Delay != nil {
		w.ExpectedDelaySec = *aux.Delay
	}
	if w.TempC == nil && aux.Temp != nil {
		w.TempC = aux.Temp
	}
	return nil
}

// UnknownWeather is returned whenever the provider cannot answer.
func UnknownWeather() WeatherResult {
	return WeatherResult{Condition: "unknown"}
}

// ETAResult is an arrival estimate. Fallback marks the fixed estimate used
// when an endpoint could not be resolved.
type ETAResult struct {
	BusID      string     `json:"bus_id,omitempty"`
	StopID     string     `json:"stop_id"`
	ETASec     int        `json:"eta_sec"`
	DistanceKm float64    `json:"distance_km,omitempty"`
	SpeedKmph  float64    `json:"speed_kmph,omitempty"`
	Stop       *geo.Point `json:"stop,omitempty"`
	Fallback   bool       `json:"fallback,omitempty"`
	Cached     bool       `json:"cached,omitempty"`
}

// FallbackETASec is the estimate reported when distance cannot be computed.
const FallbackETASec = 1200

// FallbackETA builds the fixed fallback estimate.
func FallbackETA(busID, stopID string) ETAResult {
	return ETAResult{BusID: busID, StopID: stopID, ETASec: FallbackETASec, Fallback: true}
}

// ErrorResult records a failed step.
type ErrorResult struct {
	Message string `json:"error"`
}

// Errorf builds an ErrorResult.
func Errorf(format string, args ...any) ErrorResult {
	return ErrorResult{Message: fmt.Sprintf(format, args...)}
}

// NoOpResult is the placeholder for a none step.
type NoOpResult struct {
	Info string `json:"info"`
}

func (PositionResult) Kind() string { return "position" }
func (WeatherResult) Kind() string  { return "weather" }
func (ETAResult) Kind() string      { return "eta" }
func (ErrorResult) Kind() string    { return "error" }
func (NoOpResult) Kind() string     { return "noop" }

func (PositionResult) isResult() {}
func (WeatherResult) isResult()  {}
func (ETAResult) isResult()      {}
func (ErrorResult) isResult()    {}
func (NoOpResult) isResult()     {}

// ToolResult pairs an executed step with its outcome.
type ToolResult struct {
	Step   PlanStep
	Result Result
}

type toolResultJSON struct {
	Step   PlanStep        `json:"step"`
	Kind   string          `json:"kind"`
	Result json.RawMessage `json:"result"`
}

// MarshalJSON encodes the result together with its kind tag.
func (tr ToolResult) MarshalJSON() ([]byte, error) {
	if tr.Result == nil {
		tr.Result = NoOpResult{}
	}
	raw, err := json.Marshal(tr.Result)
	if err != nil {
		return nil, err
	}
	return json.Marshal(toolResultJSON{Step: tr.Step, Kind: tr.Result.Kind(), Result: raw})
}

// UnmarshalJSON decodes a result by its kind tag.
func (tr *ToolResult) UnmarshalJSON(b []byte) error {
	var aux toolResultJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	tr.Step = aux.Step
	var err error
	switch aux.Kind {
	case "position":
		var r PositionResult
		err = json.Unmarshal(aux.Result, &r)
		tr.Result = r
	case "weather":
		var r WeatherResult
		err = json.Unmarshal(aux.Result, &r)
		tr.Result = r
	case "eta":
		var r ETAResult
		err = json.Unmarshal(aux.Result, &r)
		tr.Result = r
	case "error":
		var r ErrorResult
		err = json.Unmarshal(aux.Result, &r)
		tr.Result = r
	case "noop":
		var r NoOpResult
		err = json.Unmarshal(aux.Result, &r)
		tr.Result = r
	default:
		return fmt.Errorf("domain: unknown result kind %q", aux.Kind)
	}
	return err
}

// Trace is the ordered record of an executed plan.
type Trace []ToolResult

// FirstETA returns the first eta step that produced a numeric estimate.
func (t Trace) FirstETA() (ETAResult, bool) {
	for _, tr := range t {
		if tr.Step.Tool != ToolETA {
			continue
		}
		if eta, ok := tr.Result.(ETAResult); ok {
			return eta, true
		}
	}
	return ETAResult{}, false
}
