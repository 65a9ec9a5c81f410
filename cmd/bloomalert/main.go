package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Nithesh414/Bloom-Alert/internal/auth"
	"github.com/Nithesh414/Bloom-Alert/internal/cache"
	"github.com/Nithesh414/Bloom-Alert/internal/circuitbreaker"
	"github.com/Nithesh414/Bloom-Alert/internal/client"
	"github.com/Nithesh414/Bloom-Alert/internal/config"
	httphandler "github.com/Nithesh414/Bloom-Alert/internal/http"
	"github.com/Nithesh414/Bloom-Alert/internal/models"
	"github.com/Nithesh414/Bloom-Alert/internal/ndvi"
	"github.com/Nithesh414/Bloom-Alert/internal/observability"
	"github.com/Nithesh414/Bloom-Alert/internal/service"
	"github.com/Nithesh414/Bloom-Alert/internal/store"
	"github.com/Nithesh414/Bloom-Alert/internal/upload"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("database", zap.Error(err), zap.String("path", cfg.DatabasePath))
	}
	defer db.Close()
	st := store.New(db, logger)
	if err := st.Migrate(context.Background()); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	var caches service.Caches
	var mc *memcache.Client
	switch cfg.CacheBackend {
	case config.CacheBackendMemcached:
		mc = cache.NewMemcachedClient(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		caches = service.Caches{
			Weather:    cache.NewMemcachedCache[models.CurrentWeather](mc, "weather:", cfg.CacheTTL, nil),
			Forecast:   cache.NewMemcachedCache[[]models.ForecastDay](mc, "forecast:", cfg.CacheTTL, nil),
			AirQuality: cache.NewMemcachedCache[models.AirQuality](mc, "air_quality:", cfg.CacheTTL, nil),
		}
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		caches = service.Caches{
			Weather:    cache.NewInMemoryCache[models.CurrentWeather](cfg.CacheTTL, nil),
			Forecast:   cache.NewInMemoryCache[[]models.ForecastDay](cfg.CacheTTL, nil),
			AirQuality: cache.NewInMemoryCache[models.AirQuality](cfg.CacheTTL, nil),
		}
		logger.Info("cache backend: in_memory")
	}

	// weatherClient stays an untyped nil without a key so the service reports ErrConfiguration.
	var weatherClient client.WeatherClient
	var breaker *circuitbreaker.CircuitBreaker
	if cfg.WeatherAPIKey == "" {
		logger.Warn("WEATHER_API_KEY not set; weather endpoints will return a configuration error")
	} else {
		owc, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, client.Timeouts{
			Weather:    cfg.WeatherTimeout,
			Forecast:   cfg.ForecastTimeout,
			AirQuality: cfg.AirQualityTimeout,
		})
		if err != nil {
			logger.Fatal("weather client", zap.Error(err))
		}
		if cfg.CircuitBreakerEnabled {
			breaker = circuitbreaker.New(circuitbreaker.Config{
				FailureThreshold: cfg.CircuitBreakerFailures,
				SuccessThreshold: cfg.CircuitBreakerSuccess,
				Cooldown:         cfg.CircuitBreakerCooldown,
				Name:             "weather_api",
				OnStateChange: func(name string, from, to circuitbreaker.State) {
					observability.RecordCircuitBreakerTransition(name, from.String(), to.String(), int(to))
					logger.Warn("circuit breaker state change", zap.String("component", name), zap.String("from", from.String()), zap.String("to", to.String()))
				},
			})
			owc.SetCircuitBreaker(breaker)
			logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailures), zap.Duration("cooldown", cfg.CircuitBreakerCooldown))
		}
		weatherClient = owc
	}
	weatherService := service.NewWeatherService(weatherClient, caches)

	if len(cfg.WarmLocations) > 0 && weatherService.Configured() {
		warmer := cache.NewWarmer(weatherService, logger)
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := warmer.Warm(warmCtx, cfg.WarmLocations); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(context.Background(), cfg.WarmLocations, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	uploads, err := upload.NewHandler(cfg.UploadDir, st)
	if err != nil {
		logger.Fatal("upload dir", zap.Error(err))
	}

	deps := httphandler.Deps{
		Weather:       weatherService,
		Reports:       st,
		Auth:          auth.NewService(st, auth.Config{SessionTTL: cfg.SessionTTL}),
		Uploads:       uploads,
		NDVI:          ndvi.NewLoader(cfg.NDVIPath, logger),
		Logger:        logger,
		SecureCookies: cfg.SecureCookies,
	}
	if mc != nil {
		deps.CachePing = mc.Ping
	}
	if breaker != nil {
		deps.BreakerState = func() string { return breaker.State().String() }
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(httphandler.NewHandler(deps), logger, limiter)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	httphandler.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if mc != nil {
		if err := mc.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
