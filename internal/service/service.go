package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Nithesh414/Bloom-Alert/internal/cache"
	"github.com/Nithesh414/Bloom-Alert/internal/client"
	"github.com/Nithesh414/Bloom-Alert/internal/models"
	"github.com/Nithesh414/Bloom-Alert/internal/observability"
)

var (
	// ErrConfiguration is returned when no provider is configured (missing API key).
	ErrConfiguration = errors.New("weather API key not configured")
	// ErrUpstreamUnavailable is returned when the provider failed and no cached entry exists.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Result sources.
const (
	SourceCache      = "cache"
	SourceAPI        = "api"
	SourceCacheStale = "cache_stale"
)

// Result is the envelope returned for every weather kind.
type Result[V any] struct {
	Source  string `json:"source"`
	Data    V      `json:"data"`
	Warning string `json:"warning,omitempty"`
}

// Caches groups the per-kind caches owned by the service.
type Caches struct {
	Weather    cache.Cache[models.CurrentWeather]
	Forecast   cache.Cache[[]models.ForecastDay]
	AirQuality cache.Cache[models.AirQuality]
}

// WeatherService serves current weather, forecast and air quality using
// cache-aside with a stale fallback when the provider fails.
type WeatherService struct {
	client client.WeatherClient
	caches Caches
}

// NewWeatherService creates a WeatherService. Pass a nil client (untyped) when
// no API key is configured; provider-bound requests then fail with ErrConfiguration.
func NewWeatherService(c client.WeatherClient, caches Caches) *WeatherService {
	return &WeatherService{client: c, caches: caches}
}

// Configured reports whether a provider client is available.
func (s *WeatherService) Configured() bool {
	return s.client != nil
}

// CacheKey rounds both coordinates to 3 decimals and formats them as "lat,lon".
func CacheKey(coords models.Coordinates) string {
	return fmt.Sprintf("%.3f,%.3f", round3(coords.Lat), round3(coords.Lon))
}

func round3(v float64) float64 {
	r := math.Round(v*1000) / 1000
	if r == 0 {
		// Avoids "-0.000" keys for tiny negative inputs.
		return 0
	}
	return r
}

// CurrentWeather returns current conditions for coords.
func (s *WeatherService) CurrentWeather(ctx context.Context, coords models.Coordinates) (Result[models.CurrentWeather], error) {
	return fetch(ctx, s, client.EndpointWeather, s.caches.Weather, coords, func(ctx context.Context, c client.WeatherClient) (models.CurrentWeather, error) {
		return c.CurrentWeather(ctx, coords)
	})
}

// Forecast returns the three-day forecast for coords.
func (s *WeatherService) Forecast(ctx context.Context, coords models.Coordinates) (Result[[]models.ForecastDay], error) {
	return fetch(ctx, s, client.EndpointForecast, s.caches.Forecast, coords, func(ctx context.Context, c client.WeatherClient) ([]models.ForecastDay, error) {
		return c.Forecast(ctx, coords)
	})
}

// AirQuality returns the air quality index for coords.
func (s *WeatherService) AirQuality(ctx context.Context, coords models.Coordinates) (Result[models.AirQuality], error) {
	return fetch(ctx, s, client.EndpointAirQuality, s.caches.AirQuality, coords, func(ctx context.Context, c client.WeatherClient) (models.AirQuality, error) {
		return c.AirQuality(ctx, coords)
	})
}

// Prefetch loads all three kinds for coords. Used by the cache warmer.
func (s *WeatherService) Prefetch(ctx context.Context, coords models.Coordinates) error {
	_, errW := s.CurrentWeather(ctx, coords)
	_, errF := s.Forecast(ctx, coords)
	_, errA := s.AirQuality(ctx, coords)
	return errors.Join(errW, errF, errA)
}

func fetch[V any](ctx context.Context, s *WeatherService, kind string, c cache.Cache[V], coords models.Coordinates, call func(context.Context, client.WeatherClient) (V, error)) (Result[V], error) {
	key := CacheKey(coords)
	start := time.Now()
	logger := observability.LoggerFromContext(ctx).With(zap.String("kind", kind), zap.String("key", key))

	entry, ok, err := c.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues(kind, "get").Inc()
		logger.Warn("cache get failed", zap.Error(err))
	} else if ok {
		observability.CacheLookupsTotal.WithLabelValues(kind, "hit").Inc()
		logger.Debug("cache hit")
		return Result[V]{Source: SourceCache, Data: entry.Data}, nil
	}
	observability.CacheLookupsTotal.WithLabelValues(kind, "miss").Inc()

	if s.client == nil {
		return Result[V]{}, ErrConfiguration
	}

	logger.Debug("cache miss, fetching upstream")
	data, upstreamErr := call(ctx, s.client)
	if upstreamErr != nil {
		observability.ProviderErrorsTotal.WithLabelValues(kind, string(client.CategorizeError(upstreamErr))).Inc()

		stale, found, staleErr := c.GetStale(ctx, key)
		if staleErr != nil {
			observability.CacheErrorsTotal.WithLabelValues(kind, "get_stale").Inc()
			logger.Warn("stale cache read failed", zap.Error(staleErr))
		}
		if staleErr == nil && found {
			observability.CacheLookupsTotal.WithLabelValues(kind, "stale").Inc()
			logger.Info("serving stale cache", zap.Duration("age", time.Since(stale.Timestamp)), zap.Error(upstreamErr))
			return Result[V]{Source: SourceCacheStale, Data: stale.Data, Warning: upstreamErr.Error()}, nil
		}
		logger.Warn("upstream failed with no cached entry", zap.Error(upstreamErr))
		return Result[V]{}, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, upstreamErr)
	}

	if setErr := c.Set(ctx, key, data); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues(kind, "set").Inc()
		logger.Warn("cache set failed", zap.Error(setErr))
	}
	logger.Debug("served from upstream", zap.Duration("duration", time.Since(start)))
	return Result[V]{Source: SourceAPI, Data: data}, nil
}

// UpstreamDetails returns the provider error text carried by an ErrUpstreamUnavailable error.
func UpstreamDetails(err error) string {
	return strings.TrimPrefix(err.Error(), ErrUpstreamUnavailable.Error()+": ")
}
