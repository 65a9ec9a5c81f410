package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Nithesh414/Bloom-Alert/internal/models"
)

// Cache backends.
const (
	CacheBackendInMemory  = "in_memory"
	CacheBackendMemcached = "memcached"
)

// Config holds service configuration loaded from YAML, .env and environment.
type Config struct {
	ServerPort      string
	ShutdownTimeout time.Duration

	DatabasePath string
	UploadDir    string
	NDVIPath     string

	// WeatherAPIKey may be empty; weather endpoints then answer with a configuration error.
	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherTimeout    time.Duration
	ForecastTimeout   time.Duration
	AirQualityTimeout time.Duration

	CacheBackend          string
	CacheTTL              time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	SessionTTL    time.Duration
	SecureCookies bool

	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled  bool
	CircuitBreakerFailures int
	CircuitBreakerSuccess  int
	CircuitBreakerCooldown time.Duration

	WarmLocations []models.Coordinates
	WarmInterval  time.Duration
}

type fileConfig struct {
	Server struct {
		Port            string `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage struct {
		DatabasePath string `yaml:"database_path"`
		UploadDir    string `yaml:"upload_dir"`
		NDVIPath     string `yaml:"ndvi_path"`
	} `yaml:"storage"`

	WeatherAPI struct {
		URL               string `yaml:"url"`
		WeatherTimeout    string `yaml:"weather_timeout"`
		ForecastTimeout   string `yaml:"forecast_timeout"`
		AirQualityTimeout string `yaml:"air_quality_timeout"`
	} `yaml:"weather_api"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Warm struct {
			Locations []struct {
				Lat float64 `yaml:"lat"`
				Lon float64 `yaml:"lon"`
			} `yaml:"locations"`
			Interval string `yaml:"interval"`
		} `yaml:"warm"`
	} `yaml:"cache"`

	Auth struct {
		SessionTTL    string `yaml:"session_ttl"`
		SecureCookies bool   `yaml:"secure_cookies"`
	} `yaml:"auth"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Cooldown         string `yaml:"cooldown"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration relative to the working directory. See LoadFrom.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom reads dir/.env (optional), dir/config/{ENV_NAME}.yaml (default dev,
// optional) and dir/config/secrets.yaml (optional), then applies env overrides.
// Existing environment variables win over .env entries.
func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	var fc fileConfig
	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "5000")
	cfg.ShutdownTimeout = parseDuration(fc.Server.ShutdownTimeout, 30*time.Second)

	cfg.DatabasePath = firstNonEmpty(os.Getenv("DATABASE_PATH"), fc.Storage.DatabasePath, "bloom.db")
	cfg.UploadDir = firstNonEmpty(fc.Storage.UploadDir, filepath.Join("static", "uploads"))
	cfg.NDVIPath = firstNonEmpty(fc.Storage.NDVIPath, filepath.Join("data", "ndvi_sample.csv"))

	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), os.Getenv("OPENWEATHER_API_KEY"))
	if cfg.WeatherAPIKey == "" {
		key, err := readSecrets(filepath.Join(dir, "config", "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.WeatherAPIKey = key
	}
	cfg.WeatherAPIURL = firstNonEmpty(fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5")
	cfg.WeatherTimeout = parseDuration(fc.WeatherAPI.WeatherTimeout, 8*time.Second)
	cfg.ForecastTimeout = parseDuration(fc.WeatherAPI.ForecastTimeout, 10*time.Second)
	cfg.AirQualityTimeout = parseDuration(fc.WeatherAPI.AirQualityTimeout, 8*time.Second)

	cfg.CacheBackend = strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, CacheBackendInMemory))
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 10*time.Minute)
	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	for _, loc := range fc.Cache.Warm.Locations {
		cfg.WarmLocations = append(cfg.WarmLocations, models.Coordinates{Lat: loc.Lat, Lon: loc.Lon})
	}
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.Warm.Interval, 0)

	cfg.SessionTTL = parseDuration(fc.Auth.SessionTTL, 7*24*time.Hour)
	cfg.SecureCookies = fc.Auth.SecureCookies

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = cfg.RateLimitRPS * 2
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled
	cfg.CircuitBreakerFailures = cb.FailureThreshold
	if cfg.CircuitBreakerFailures <= 0 {
		cfg.CircuitBreakerFailures = 5
	}
	cfg.CircuitBreakerSuccess = cb.SuccessThreshold
	if cfg.CircuitBreakerSuccess <= 0 {
		cfg.CircuitBreakerSuccess = 2
	}
	cfg.CircuitBreakerCooldown = parseDuration(cb.Cooldown, 30*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.WeatherAPIKey), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate checks values that have no safe default.
func validate(cfg *Config) error {
	switch cfg.CacheBackend {
	case CacheBackendInMemory, CacheBackendMemcached:
	default:
		return fmt.Errorf("cache.backend must be %s or %s, got %q", CacheBackendInMemory, CacheBackendMemcached, cfg.CacheBackend)
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("reliability.rate_limit_rps must not be negative, got %d", cfg.RateLimitRPS)
	}
	for i, loc := range cfg.WarmLocations {
		if loc.Lat < -90 || loc.Lat > 90 || loc.Lon < -180 || loc.Lon > 180 {
			return fmt.Errorf("cache.warm.locations[%d] out of range: %v,%v", i, loc.Lat, loc.Lon)
		}
	}
	return nil
}
