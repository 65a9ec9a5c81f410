package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Nithesh414/Bloom-Alert/internal/circuitbreaker"
	"github.com/Nithesh414/Bloom-Alert/internal/models"
	"github.com/Nithesh414/Bloom-Alert/internal/observability"
)

// DefaultBaseURL is the OpenWeatherMap 2.5 API root.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

// Endpoint labels, used in metrics and logs.
const (
	EndpointWeather    = "weather"
	EndpointForecast   = "forecast"
	EndpointAirQuality = "air_quality"
)

// forecastStride samples one 3-hour entry per day; forecastDays is how many days are kept.
const (
	forecastStride = 8
	forecastDays   = 3
)

// WeatherClient fetches and normalizes provider data for a coordinate.
type WeatherClient interface {
	CurrentWeather(ctx context.Context, coords models.Coordinates) (models.CurrentWeather, error)
	Forecast(ctx context.Context, coords models.Coordinates) ([]models.ForecastDay, error)
	AirQuality(ctx context.Context, coords models.Coordinates) (models.AirQuality, error)
}

var (
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
)

// Timeouts are per-endpoint HTTP deadlines.
type Timeouts struct {
	Weather    time.Duration
	Forecast   time.Duration
	AirQuality time.Duration
}

// DefaultTimeouts: 8s for current weather and air quality, 10s for the larger forecast payload.
var DefaultTimeouts = Timeouts{
	Weather:    8 * time.Second,
	Forecast:   10 * time.Second,
	AirQuality: 8 * time.Second,
}

type OpenWeatherClient struct {
	apiKey   string
	baseURL  string
	timeouts Timeouts
	client   *http.Client
	breaker  *circuitbreaker.CircuitBreaker
}

// NewOpenWeatherClient returns a client for baseURL (DefaultBaseURL when empty).
// Zero timeouts fall back to DefaultTimeouts. Each call makes exactly one attempt.
func NewOpenWeatherClient(apiKey, baseURL string, timeouts Timeouts) (*OpenWeatherClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if timeouts.Weather <= 0 {
		timeouts.Weather = DefaultTimeouts.Weather
	}
	if timeouts.Forecast <= 0 {
		timeouts.Forecast = DefaultTimeouts.Forecast
	}
	if timeouts.AirQuality <= 0 {
		timeouts.AirQuality = DefaultTimeouts.AirQuality
	}

	return &OpenWeatherClient{
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		timeouts: timeouts,
		client:   &http.Client{},
	}, nil
}

// SetCircuitBreaker routes every provider call through cb. nil disables it.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

type weatherEntry struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type currentResponse struct {
	Name    string         `json:"name"`
	Weather []weatherEntry `json:"weather"`
	Main    struct {
		Temp     float64 `json:"temp"`
		Humidity int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

type forecastResponse struct {
	List []struct {
		DtTxt string `json:"dt_txt"`
		Main  struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []weatherEntry `json:"weather"`
	} `json:"list"`
}

type airPollutionResponse struct {
	List []struct {
		Main struct {
			AQI int `json:"aqi"`
		} `json:"main"`
	} `json:"list"`
}

// CurrentWeather calls /weather and normalizes the first weather entry.
func (c *OpenWeatherClient) CurrentWeather(ctx context.Context, coords models.Coordinates) (models.CurrentWeather, error) {
	var resp currentResponse
	if err := c.call(ctx, EndpointWeather, "/weather", coords, true, c.timeouts.Weather, &resp); err != nil {
		return models.CurrentWeather{}, err
	}
	return mapCurrent(resp), nil
}

// Forecast calls /forecast and keeps one entry per day for the first three days.
func (c *OpenWeatherClient) Forecast(ctx context.Context, coords models.Coordinates) ([]models.ForecastDay, error) {
	var resp forecastResponse
	if err := c.call(ctx, EndpointForecast, "/forecast", coords, true, c.timeouts.Forecast, &resp); err != nil {
		return nil, err
	}
	return mapForecast(resp), nil
}

// AirQuality calls /air_pollution and labels the first entry's AQI.
func (c *OpenWeatherClient) AirQuality(ctx context.Context, coords models.Coordinates) (models.AirQuality, error) {
	var resp airPollutionResponse
	if err := c.call(ctx, EndpointAirQuality, "/air_pollution", coords, false, c.timeouts.AirQuality, &resp); err != nil {
		return models.AirQuality{}, err
	}
	return mapAirQuality(resp), nil
}

func (c *OpenWeatherClient) call(ctx context.Context, endpoint, path string, coords models.Coordinates, metric bool, timeout time.Duration, out interface{}) error {
	if c.breaker == nil {
		return c.callAPI(ctx, endpoint, path, coords, metric, timeout, out)
	}
	return c.breaker.Call(ctx, func() error {
		return c.callAPI(ctx, endpoint, path, coords, metric, timeout, out)
	})
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, endpoint, path string, coords models.Coordinates, metric bool, timeout time.Duration, out interface{}) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, path, coords, metric)
	if err != nil {
		observability.ProviderCallsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.ProviderCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.ProviderCallDuration.WithLabelValues(endpoint, "error").Observe(duration)

		// url.Error carries the request URL, so the context sentinel is wrapped instead.
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("request timeout: %w", context.DeadlineExceeded)
		}
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("request canceled: %w", context.Canceled)
		}
		return fmt.Errorf("http request failed: %s", redactKey(err.Error(), c.apiKey))
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.ProviderCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.ProviderCallDuration.WithLabelValues(endpoint, status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, path string, coords models.Coordinates, metric bool) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coords.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coords.Lon, 'f', -1, 64))
	if metric {
		params.Set("units", "metric")
	}
	params.Set("appid", c.apiKey)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: HTTP 401", ErrInvalidAPIKey)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP 429", ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func mapCurrent(r currentResponse) models.CurrentWeather {
	out := models.CurrentWeather{
		Name:      r.Name,
		Temp:      r.Main.Temp,
		Humidity:  r.Main.Humidity,
		WindSpeed: r.Wind.Speed,
	}
	if len(r.Weather) > 0 {
		out.Main = r.Weather[0].Main
		out.Description = r.Weather[0].Description
	}
	return out
}

func mapForecast(r forecastResponse) []models.ForecastDay {
	days := make([]models.ForecastDay, 0, forecastDays)
	for i := 0; i < len(r.List) && len(days) < forecastDays; i += forecastStride {
		entry := r.List[i]
		day := models.ForecastDay{
			Date: strings.SplitN(entry.DtTxt, " ", 2)[0],
			Temp: entry.Main.Temp,
		}
		if len(entry.Weather) > 0 {
			day.Desc = entry.Weather[0].Description
			day.Icon = entry.Weather[0].Icon
		}
		days = append(days, day)
	}
	return days
}

var aqiLabels = map[int]string{
	1: "Good",
	2: "Fair",
	3: "Moderate",
	4: "Poor",
	5: "Very Poor",
}

// AQILabel maps the provider's 1-5 index to its label; anything else is "Unknown".
func AQILabel(aqi int) string {
	if label, ok := aqiLabels[aqi]; ok {
		return label
	}
	return "Unknown"
}

func mapAirQuality(r airPollutionResponse) models.AirQuality {
	var aqi int
	if len(r.List) > 0 {
		aqi = r.List[0].Main.AQI
	}
	return models.AirQuality{AQI: aqi, Status: AQILabel(aqi)}
}

// redactKey keeps the API key out of error text returned to callers; url.Error embeds the full URL.
func redactKey(s, key string) string {
	if key == "" {
		return s
	}
	return strings.ReplaceAll(s, key, "REDACTED")
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
