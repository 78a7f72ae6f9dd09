package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/WessleyAI/transit-mvp/engine/domain"
	"github.com/WessleyAI/transit-mvp/engine/fleet"
	"github.com/WessleyAI/transit-mvp/engine/geo"
	"github.com/WessleyAI/transit-mvp/pkg/fn"
	"github.com/WessleyAI/transit-mvp/pkg/resilience"
)

// PositionProvider looks up where a bus is now.
type PositionProvider interface {
	Position(ctx context.Context, busID string) (domain.PositionResult, error)
}

// PositionChain tries each provider in order and returns the first success.
type PositionChain []PositionProvider

func (c PositionChain) Position(ctx context.Context, busID string) (domain.PositionResult, error) {
	resolvers := fn.Map(c, func(p PositionProvider) fn.Resolver[domain.PositionResult] {
		return func(ctx context.Context) fn.Result[domain.PositionResult] {
			return fn.FromPair(p.Position(ctx, busID))
		}
	})
	return fn.FirstOk(ctx, resolvers...).Unwrap()
}

// DefaultLiveTimeout bounds one live position request.
const DefaultLiveTimeout = time.Second

// LivePositions reads GET {base}/bus/status?bus_id= from the fleet service.
type LivePositions struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	breaker *resilience.Breaker
}

// NewLivePositions creates the live provider. breaker may be nil.
func NewLivePositions(baseURL string, timeout time.Duration, breaker *resilience.Breaker, hc *http.Client) *LivePositions {
	if timeout <= 0 {
		timeout = DefaultLiveTimeout
	}
	if hc == nil {
		hc = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &LivePositions{baseURL: strings.TrimRight(baseURL, "/"), client: hc, timeout: timeout, breaker: breaker}
}

// liveStatus is the bus status object served by the fleet service.
type liveStatus struct {
	BusID     string   `json:"bus_id"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	RouteID   string   `json:"route_id"`
	SpeedKmph *float64 `json:"speed_kmph"`
	Status    string   `json:"status"`
}

func (l *LivePositions) Position(ctx context.Context, busID string) (domain.PositionResult, error) {
	if l.breaker == nil {
		return l.fetch(ctx, busID)
	}
	return resilience.CallResult(l.breaker, ctx, func(ctx context.Context) fn.Result[domain.PositionResult] {
		return fn.FromPair(l.fetch(ctx, busID))
	}).Unwrap()
}

func (l *LivePositions) fetch(ctx context.Context, busID string) (domain.PositionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	u := l.baseURL + "/bus/status?bus_id=" + url.QueryEscape(busID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.PositionResult{}, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return domain.PositionResult{}, fmt.Errorf("live position %s: %w", busID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.PositionResult{}, fmt.Errorf("live position %s: status %d", busID, resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return domain.PositionResult{}, fmt.Errorf("live position %s decode: %w", busID, err)
	}
	st, err := decodeLiveStatus(raw)
	if err != nil {
		return domain.PositionResult{}, fmt.Errorf("live position %s: %w", busID, err)
	}
	if st.Lat == nil || st.Lon == nil {
		return domain.PositionResult{}, fmt.Errorf("live position %s: %w", busID, domain.ErrNoPosition)
	}
	pos := domain.PositionResult{
		BusID:     st.BusID,
		Lat:       *st.Lat,
		Lon:       *st.Lon,
		SpeedKmph: fleet.DefaultReportedSpeedKmph,
		RouteID:   st.RouteID,
		Status:    st.Status,
		Source:    "live",
	}
	if pos.BusID == "" {
		pos.BusID = busID
	}
	if st.SpeedKmph != nil {
		pos.SpeedKmph = *st.SpeedKmph
	}
	return pos, nil
}

// decodeLiveStatus accepts {"ok":true,"data":{...}} or a bare status object.
func decodeLiveStatus(raw json.RawMessage) (liveStatus, error) {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return liveStatus{}, err
	}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		raw = env.Data
	}
	var st liveStatus
	err := json.Unmarshal(raw, &st)
	return st, err
}

// MockJitterDeg is the maximum jitter applied by MockPositions.
const MockJitterDeg = 0.0005

// MockPositions serves registry positions with a small random jitter so
// repeated reads look like a moving bus.
type MockPositions struct {
	registry fleet.Registry
	// Jitter returns a value in [-1, 1).
	Jitter func() float64
}

// NewMockPositions creates the registry-backed provider.
func NewMockPositions(registry fleet.Registry) *MockPositions {
	return &MockPositions{
		registry: registry,
		Jitter:   func() float64 { return rand.Float64()*2 - 1 },
	}
}

func (m *MockPositions) Position(ctx context.Context, busID string) (domain.PositionResult, error) {
	b, err := m.registry.Bus(ctx, busID)
	if err != nil {
		return domain.PositionResult{}, fmt.Errorf("mock position %s: %w", busID, err)
	}
	return domain.PositionResult{
		BusID:     busID,
		Lat:       geo.Round(b.Lat+m.Jitter()*MockJitterDeg, 6),
		Lon:       geo.Round(b.Lon+m.Jitter()*MockJitterDeg, 6),
		SpeedKmph: b.Speed(),
		RouteID:   b.RouteID,
		Status:    b.Status,
		Source:    "mock",
	}, nil
}
