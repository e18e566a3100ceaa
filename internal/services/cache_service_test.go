package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Hetprajapati12/Assignment-solution/internal/models"
	"github.com/Hetprajapati12/Assignment-solution/internal/queue"
	"github.com/Hetprajapati12/Assignment-solution/internal/repository"
)

func TestCacheService_MissComputesWithoutCaching(t *testing.T) {
	env := newTestEnv(t, 100, 50, 2)
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	env.repo.SeedReading("CITY_001", 20.0, base)
	env.repo.SeedReading("CITY_001", 22.0, base.Add(time.Hour))

	stats, cached, err := env.cache.GetStatistics(context.Background(), "CITY_001")
	if err != nil {
		t.Fatalf("GetStatistics() error = %v", err)
	}
	if cached {
		t.Error("GetStatistics() cached = true on a cold cache")
	}
	if got := stats.MeanValue.String(); got != "21.00" {
		t.Errorf("mean = %s, want 21.00", got)
	}
	if stats.ReadingCount != 2 {
		t.Errorf("reading count = %d, want 2", stats.ReadingCount)
	}

	// The miss queues a background refresh that materializes the cache.
	waitForFreshCache(t, env.repo, "CITY_001")

	stats, cached, err = env.cache.GetStatistics(context.Background(), "CITY_001")
	if err != nil {
		t.Fatalf("GetStatistics() error = %v", err)
	}
	if !cached {
		t.Error("GetStatistics() cached = false after background refresh")
	}
	if got := stats.MeanValue.String(); got != "21.00" {
		t.Errorf("cached mean = %s, want 21.00", got)
	}
}

func TestCacheService_ServesStaleWhileRefreshing(t *testing.T) {
	env := newTestEnv(t, 100, 50, 2)
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	env.repo.SeedReading("CITY_001", 20.0, base)

	oldMean := models.NewTemperature(99)
	env.repo.SeedCache(models.CityStats{
		CityID:       "CITY_001",
		MeanValue:    &oldMean,
		MaxValue:     &oldMean,
		MinValue:     &oldMean,
		ReadingCount: 1,
		LastUpdated:  base,
		IsStale:      true,
	})

	stats, cached, err := env.cache.GetStatistics(context.Background(), "CITY_001")
	if err != nil {
		t.Fatalf("GetStatistics() error = %v", err)
	}
	if !cached {
		t.Error("GetStatistics() cached = false, want stale entry served")
	}
	if got := stats.MeanValue.String(); got != "99.00" {
		t.Errorf("stale mean = %s, want 99.00", got)
	}

	// The stale hit queues a refresh that recomputes from readings.
	fresh := waitForFreshCache(t, env.repo, "CITY_001")
	if got := fresh.MeanValue.String(); got != "20.00" {
		t.Errorf("refreshed mean = %s, want 20.00", got)
	}
}

func TestCacheService_UnknownCity(t *testing.T) {
	env := newTestEnv(t, 100, 50, 2)

	_, _, err := env.cache.GetStatistics(context.Background(), "NOWHERE")
	if err == nil {
		t.Fatal("GetStatistics() = nil error for unknown city")
	}
	var notFound *repository.NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("GetStatistics() error = %v, want *repository.NotFoundError", err)
	}
}

func TestCacheService_TriggerRefresh(t *testing.T) {
	env := newTestEnv(t, 100, 50, 2)
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	env.repo.SeedReading("CITY_001", 20.0, base)

	staleMean := models.NewTemperature(99)
	env.repo.SeedCache(models.CityStats{
		CityID:       "CITY_001",
		MeanValue:    &staleMean,
		MaxValue:     &staleMean,
		MinValue:     &staleMean,
		ReadingCount: 1,
		LastUpdated:  base,
	})

	taskID, err := env.cache.TriggerRefresh(context.Background(), "CITY_001")
	if err != nil {
		t.Fatalf("TriggerRefresh() error = %v", err)
	}
	if taskID == "" {
		t.Error("TriggerRefresh() returned empty task id")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cache, ok := env.repo.CacheSnapshot("CITY_001"); ok && !cache.IsStale && cache.MeanValue.String() == "20.00" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("cache never refreshed to the recomputed value")
}

func TestCacheService_TriggerRefreshUnknownCity(t *testing.T) {
	env := newTestEnv(t, 100, 50, 2)

	_, err := env.cache.TriggerRefresh(context.Background(), "NOWHERE")
	if err == nil {
		t.Fatal("TriggerRefresh() = nil error for unknown city")
	}
	var notFound *repository.NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("TriggerRefresh() error = %v, want *repository.NotFoundError", err)
	}
}

func TestCacheService_RefreshAllSweep(t *testing.T) {
	env := newTestEnv(t, 100, 50, 2)
	ctx := context.Background()
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	env.repo.SeedReading("CITY_A", 10.0, base)
	env.repo.SeedReading("CITY_A", 30.0, base.Add(time.Hour))
	env.repo.SeedReading("CITY_B", -5.0, base)
	if _, err := env.repo.GetOrCreateCity(ctx, "CITY_C"); err != nil {
		t.Fatalf("GetOrCreateCity() error = %v", err)
	}

	updated, failed, err := env.cache.RefreshAll(ctx)
	if err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}
	if updated != 3 || failed != 0 {
		t.Errorf("RefreshAll() = (%d, %d), want (3, 0)", updated, failed)
	}

	cacheA, ok := env.repo.CacheSnapshot("CITY_A")
	if !ok {
		t.Fatal("CITY_A cache missing after sweep")
	}
	if got := cacheA.MeanValue.String(); got != "20.00" {
		t.Errorf("CITY_A mean = %s, want 20.00", got)
	}

	// A city with no readings still gets a cache row with nil aggregates.
	cacheC, ok := env.repo.CacheSnapshot("CITY_C")
	if !ok {
		t.Fatal("CITY_C cache missing after sweep")
	}
	if cacheC.ReadingCount != 0 {
		t.Errorf("CITY_C reading count = %d, want 0", cacheC.ReadingCount)
	}
	if cacheC.MeanValue != nil {
		t.Errorf("CITY_C mean = %v, want nil", cacheC.MeanValue)
	}
}

func TestCacheService_RefreshUnknownCity(t *testing.T) {
	env := newTestEnv(t, 100, 50, 2)

	_, err := env.cache.Refresh(context.Background(), "GHOST", "test")
	if err == nil {
		t.Fatal("Refresh() = nil error for unknown city")
	}
	var notFound *repository.NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("Refresh() error = %v, want *repository.NotFoundError", err)
	}
}

func TestCacheService_HandleUpdateMissingCityIsNoop(t *testing.T) {
	env := newTestEnv(t, 100, 50, 2)

	payload, err := json.Marshal(cityCachePayload{CityID: "GHOST"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	task := &queue.Task{
		ID:         "cache-task",
		Kind:       TaskUpdateCityCache,
		Payload:    payload,
		Attempt:    1,
		MaxRetries: 3,
	}

	// A city deleted between enqueue and delivery is not an error worth
	// retrying.
	if err := env.cache.HandleUpdateCityCache(context.Background(), task); err != nil {
		t.Fatalf("HandleUpdateCityCache() error = %v, want nil", err)
	}
}
