package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Nithesh414/Bloom-Alert/internal/models"
	"github.com/Nithesh414/Bloom-Alert/internal/observability"
)

// Prefetcher is implemented by the service layer to load every weather kind
// for a coordinate. Keeps this package free of a dependency on service.
type Prefetcher interface {
	Prefetch(ctx context.Context, coords models.Coordinates) error
}

// Warmer fills the caches for a fixed list of coordinates.
type Warmer struct {
	fetcher Prefetcher
	logger  *zap.Logger
}

// NewWarmer creates a Warmer. A nil logger discards output.
func NewWarmer(fetcher Prefetcher, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{fetcher: fetcher, logger: logger}
}

// Warm prefetches every coordinate concurrently and returns the joined errors.
func (w *Warmer) Warm(ctx context.Context, locations []models.Coordinates) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("locations", len(locations)))

	var wg sync.WaitGroup
	errCh := make(chan error, len(locations))
	for _, loc := range locations {
		wg.Add(1)
		go func(loc models.Coordinates) {
			defer wg.Done()
			if err := w.fetcher.Prefetch(ctx, loc); err != nil {
				errCh <- fmt.Errorf("warm %.3f,%.3f: %w", loc.Lat, loc.Lon, err)
			}
		}(loc)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("locations", len(locations)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration))

	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes every interval until ctx is done.
// A non-positive interval warms once.
func (w *Warmer) WarmPeriodic(ctx context.Context, locations []models.Coordinates, interval time.Duration) error {
	if err := w.Warm(ctx, locations); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, locations); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
