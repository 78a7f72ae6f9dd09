package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/WessleyAI/transit-mvp/engine/domain"
	"github.com/WessleyAI/transit-mvp/engine/geo"
)

// WeatherProvider reports weather at a point. It never fails; problems yield
// domain.UnknownWeather.
type WeatherProvider interface {
	WeatherAt(ctx context.Context, p geo.Point) domain.WeatherResult
}

// Weather delay heuristic, in seconds.
const (
	BadWeatherDelaySec    = 5 * 60
	SevereWeatherDelaySec = 15 * 60
)

var (
	badWeather    = []string{"rain", "thunder", "storm", "snow", "haze", "fog"}
	severeWeather = []string{"heavy", "thunderstorm"}
)

// DelayFor estimates the extra travel time a weather condition causes.
func DelayFor(condition string) int {
	c := strings.ToLower(condition)
	delay := 0
	if containsAny(c, badWeather) {
		delay = BadWeatherDelaySec
	}
	if containsAny(c, severeWeather) {
		delay = SevereWeatherDelaySec
	}
	return delay
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// DefaultWeatherURL is the OpenWeatherMap current-weather endpoint.
const DefaultWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

// OpenWeather queries OpenWeatherMap by coordinates.
type OpenWeather struct {
	url     string
	apiKey  string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewOpenWeather creates the provider. An empty apiKey makes every lookup
// return unknown weather without a request.
func NewOpenWeather(endpoint, apiKey string, timeout time.Duration, logger *slog.Logger) *OpenWeather {
	if endpoint == "" {
		endpoint = DefaultWeatherURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if apiKey == "" {
		logger.Warn("weather: api key not configured, lookups return unknown weather")
	}
	return &OpenWeather{
		url:     endpoint,
		apiKey:  apiKey,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout: timeout,
		logger:  logger,
	}
}

type owmResponse struct {
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
}

func (o *OpenWeather) WeatherAt(ctx context.Context, p geo.Point) domain.WeatherResult {
	if o.apiKey == "" {
		return domain.UnknownWeather()
	}
	w, err := o.fetch(ctx, p)
	if err != nil {
		o.logger.Error("weather: lookup failed", "lat", p.Lat, "lon", p.Lon, "err", err)
		return domain.UnknownWeather()
	}
	return w
}

func (o *OpenWeather) fetch(ctx context.Context, p geo.Point) (domain.WeatherResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(p.Lon, 'f', -1, 64))
	q.Set("appid", o.apiKey)
	q.Set("units", "metric")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url+"?"+q.Encode(), nil)
	if err != nil {
		return domain.WeatherResult{}, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return domain.WeatherResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.WeatherResult{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	var raw owmResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return domain.WeatherResult{}, fmt.Errorf("decode: %w", err)
	}
	return normalizeWeather(raw), nil
}

func normalizeWeather(raw owmResponse) domain.WeatherResult {
	w := domain.UnknownWeather()
	if len(raw.Weather) > 0 {
		if raw.Weather[0].Main != "" {
			w.Condition = raw.Weather[0].Main
		}
		w.Description = raw.Weather[0].Description
	}
	w.TempC = raw.Main.Temp
	if w.Condition != "unknown" {
		w.ExpectedDelaySec = DelayFor(w.Condition)
	}
	return w
}
