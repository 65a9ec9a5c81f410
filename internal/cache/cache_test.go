package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Nithesh414/Bloom-Alert/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestInMemoryCache_GetSet verifies that Set stores values and Get retrieves
// them immediately afterwards.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache[models.CurrentWeather](DefaultTTL, newFakeClock())

	val := models.CurrentWeather{Name: "Chennai", Temp: 31.5}
	if err := c.Set(ctx, "13.083,80.271", val); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "13.083,80.271")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Data != val {
		t.Errorf("Get() = %+v, want %+v", got.Data, val)
	}
}

// TestInMemoryCache_Get_Miss verifies that Get returns ok=false when
// the requested key does not exist in cache.
func TestInMemoryCache_Get_Miss(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache[models.AirQuality](DefaultTTL, nil)

	_, ok, err := c.Get(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
	if _, ok, _ := c.GetStale(ctx, "nonexistent"); ok {
		t.Error("GetStale() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Expiry verifies that after the TTL elapses Get reports a miss
// while GetStale still returns the stored value.
func TestInMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewInMemoryCache[[]models.ForecastDay](600*time.Second, clock)

	val := []models.ForecastDay{{Date: "2025-03-10", Temp: 30}}
	if err := c.Set(ctx, "k", val); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	clock.Advance(600 * time.Second)
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatal("Get() at exactly TTL ok = false, want true")
	}

	clock.Advance(time.Second)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("Get() after TTL ok = true, want false")
	}

	stale, ok, err := c.GetStale(ctx, "k")
	if err != nil {
		t.Fatalf("GetStale() error = %v", err)
	}
	if !ok {
		t.Fatal("GetStale() ok = false, want true for expired entry")
	}
	if len(stale.Data) != 1 || stale.Data[0].Date != "2025-03-10" {
		t.Errorf("GetStale() = %+v, want stored forecast", stale.Data)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (expired entries are not evicted)", c.Len())
	}
}

// TestInMemoryCache_SetOverwrites verifies that a newer Set replaces the entry
// and refreshes its timestamp.
func TestInMemoryCache_SetOverwrites(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewInMemoryCache[models.AirQuality](time.Minute, clock)

	_ = c.Set(ctx, "k", models.AirQuality{AQI: 1, Status: "Good"})
	clock.Advance(2 * time.Minute)
	_ = c.Set(ctx, "k", models.AirQuality{AQI: 4, Status: "Poor"})

	got, ok, _ := c.Get(ctx, "k")
	if !ok {
		t.Fatal("Get() ok = false after overwrite, want true")
	}
	if got.Data.AQI != 4 {
		t.Errorf("Get().AQI = %d, want 4", got.Data.AQI)
	}
	if !got.Timestamp.Equal(clock.Now()) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, clock.Now())
	}
}

// TestInMemoryCache_ConcurrentAccess exercises concurrent Set/Get for the race detector.
func TestInMemoryCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache[int](time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.Set(ctx, "k", i)
			_, _, _ = c.Get(ctx, "k")
			_, _, _ = c.GetStale(ctx, "k")
		}(i)
	}
	wg.Wait()

	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Error("Get() ok = false after concurrent writes, want true")
	}
}

func TestFresh(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"new", 0, true},
		{"boundary", 10 * time.Minute, true},
		{"expired", 10*time.Minute + time.Nanosecond, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fresh(ts, ts.Add(tt.age), DefaultTTL); got != tt.want {
				t.Errorf("Fresh(age=%v) = %v, want %v", tt.age, got, tt.want)
			}
		})
	}
}

func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" host1:11211, ,host2:11211 ")
	if len(got) != 2 || got[0] != "host1:11211" || got[1] != "host2:11211" {
		t.Errorf("parseAddrs() = %v, want [host1:11211 host2:11211]", got)
	}
	if got := parseAddrs(""); len(got) != 0 {
		t.Errorf("parseAddrs(\"\") = %v, want empty", got)
	}
}
