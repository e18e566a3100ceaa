package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hetprajapati12/Assignment-solution/internal/models"
	"github.com/Hetprajapati12/Assignment-solution/internal/queue"
	"github.com/Hetprajapati12/Assignment-solution/internal/repository"
	"github.com/Hetprajapati12/Assignment-solution/pkg/logging"
	"github.com/Hetprajapati12/Assignment-solution/pkg/metrics"
)

// CacheService maintains the per-city statistics cache: refreshing rows
// from the readings table, marking them stale, and serving the read path.
type CacheService struct {
	repo    repository.TemperatureRepository
	queue   *queue.Queue
	logger  *logging.StructuredLogger
	metrics *metrics.Collector

	mu        sync.Mutex
	cityLocks map[string]*sync.Mutex

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// NewCacheService creates a new cache service
func NewCacheService(repo repository.TemperatureRepository, q *queue.Queue, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *CacheService {
	return &CacheService{
		repo:      repo,
		queue:     q,
		logger:    logger,
		metrics:   metricsCollector,
		cityLocks: make(map[string]*sync.Mutex),
	}
}

// RegisterTasks binds the cache task kinds to the cache lane
func (s *CacheService) RegisterTasks(q *queue.Queue) error {
	if err := q.Register(TaskUpdateCityCache, queue.LaneCacheUpdates, cacheTaskRetries, s.HandleUpdateCityCache); err != nil {
		return err
	}
	return q.Register(TaskRefreshAllCaches, queue.LaneCacheUpdates, 0, s.HandleRefreshAll)
}

// Refresh recomputes one city's statistics and upserts the cache row with
// the stale flag cleared. Refreshes of the same city are serialized by a
// per-city mutex; different cities proceed concurrently. Idempotent.
func (s *CacheService) Refresh(ctx context.Context, cityID, trigger string) (*models.CityStats, error) {
	lock := s.lockCity(cityID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.repo.GetCity(ctx, cityID); err != nil {
		return nil, err
	}

	stats, err := s.repo.AggregateCity(ctx, cityID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate statistics: %w", err)
	}

	if err := s.repo.UpsertCityCache(ctx, stats); err != nil {
		return nil, fmt.Errorf("failed to store statistics: %w", err)
	}

	s.metrics.RecordCacheRefresh(trigger)

	s.logger.Debug(ctx, "[CACHE_REFRESH] City cache refreshed", logging.Fields{
		"city_id":       cityID,
		"trigger":       trigger,
		"reading_count": stats.ReadingCount,
	})

	return stats, nil
}

// MarkStale flags the cache rows of the given cities for refresh
func (s *CacheService) MarkStale(ctx context.Context, cityIDs []string) error {
	return s.repo.MarkCachesStale(ctx, cityIDs)
}

// RefreshAll sweeps every known city, refreshing each cache in turn.
// Individual failures are logged and counted, never fatal to the sweep.
func (s *CacheService) RefreshAll(ctx context.Context) (int, int, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[CACHE_SWEEP_START] Starting cache refresh for all cities", logging.Fields{
		"stage": "INITIALIZATION",
	})

	cityIDs, err := s.repo.ListCityIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list cities: %w", err)
	}

	updated := 0
	failed := 0
	for _, cityID := range cityIDs {
		if ctx.Err() != nil {
			return updated, failed, ctx.Err()
		}
		if _, err := s.Refresh(ctx, cityID, "sweep"); err != nil {
			failed++
			s.logger.Error(ctx, "[CACHE_SWEEP_ERROR] Failed to refresh city cache", logging.Fields{
				"city_id": cityID,
			}, err)
			continue
		}
		updated++
	}

	s.logger.Info(ctx, "[CACHE_SWEEP_COMPLETE] Cache refresh completed", logging.Fields{
		"updated":          updated,
		"failed":           failed,
		"total_cities":     len(cityIDs),
		"duration_seconds": time.Since(startTime).Seconds(),
		"stage":            "COMPLETE",
	})

	return updated, failed, nil
}

// GetStatistics is the read path. A cache row is served as-is, stale or
// not; a stale hit also queues a background refresh. With no cache row
// the statistics are computed once for this reader and the cache row is
// left to the queued refresh. The bool reports whether the response came
// from the cache.
func (s *CacheService) GetStatistics(ctx context.Context, cityID string) (*models.CityStats, bool, error) {
	if _, err := s.repo.GetCity(ctx, cityID); err != nil {
		return nil, false, err
	}

	cached, err := s.repo.GetCityCache(ctx, cityID)
	if err == nil {
		s.cacheHits.Add(1)
		s.updateHitRatio()
		if cached.IsStale {
			s.enqueueRefresh(ctx, cityID)
		}
		return cached, true, nil
	}

	var nf *repository.NotFoundError
	if !errors.As(err, &nf) {
		return nil, false, fmt.Errorf("failed to read statistics cache: %w", err)
	}

	s.cacheMisses.Add(1)
	s.updateHitRatio()

	stats, err := s.repo.AggregateCity(ctx, cityID)
	if err != nil {
		return nil, false, err
	}
	s.enqueueRefresh(ctx, cityID)

	return stats, false, nil
}

// TriggerRefresh marks one city's cache stale and queues a high-priority
// refresh, returning the task id.
func (s *CacheService) TriggerRefresh(ctx context.Context, cityID string) (string, error) {
	if _, err := s.repo.GetCity(ctx, cityID); err != nil {
		return "", err
	}

	if err := s.MarkStale(ctx, []string{cityID}); err != nil {
		return "", err
	}

	handle, err := s.queue.Enqueue(ctx, TaskUpdateCityCache, cityCachePayload{CityID: cityID},
		queue.WithPriority(RefreshPriorityUser))
	if err != nil {
		return "", fmt.Errorf("failed to enqueue cache refresh: %w", err)
	}

	s.logger.Info(ctx, "[CACHE_TRIGGER] Cache refresh triggered", logging.Fields{
		"city_id": cityID,
		"task_id": handle.ID(),
	})

	return handle.ID(), nil
}

// HandleUpdateCityCache is the cache task handler. A city that vanished
// before the task ran is logged and dropped, not retried.
func (s *CacheService) HandleUpdateCityCache(ctx context.Context, task *queue.Task) error {
	var payload cityCachePayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return queue.Permanent(fmt.Errorf("invalid cache task payload: %w", err))
	}

	stats, err := s.Refresh(ctx, payload.CityID, "task")
	if err != nil {
		var nf *repository.NotFoundError
		if errors.As(err, &nf) {
			s.logger.Warn(ctx, "[CACHE_CITY_MISSING] City not found for cache update", logging.Fields{
				"city_id": payload.CityID,
			})
			return nil
		}
		return err
	}

	s.logger.Info(ctx, "[CACHE_UPDATED] City cache updated", logging.Fields{
		"city_id":       payload.CityID,
		"mean_value":    stats.MeanValue,
		"max_value":     stats.MaxValue,
		"min_value":     stats.MinValue,
		"reading_count": stats.ReadingCount,
	})

	return nil
}

// HandleRefreshAll is the periodic sweep task handler
func (s *CacheService) HandleRefreshAll(ctx context.Context, task *queue.Task) error {
	_, _, err := s.RefreshAll(ctx)
	return err
}

func (s *CacheService) lockCity(cityID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.cityLocks[cityID]
	if !ok {
		lock = &sync.Mutex{}
		s.cityLocks[cityID] = lock
	}
	return lock
}

func (s *CacheService) enqueueRefresh(ctx context.Context, cityID string) {
	if _, err := s.queue.Enqueue(ctx, TaskUpdateCityCache, cityCachePayload{CityID: cityID}); err != nil {
		// The periodic sweep reconciles missed refreshes.
		s.logger.Warn(ctx, "[CACHE_ENQUEUE_WARN] Could not enqueue cache refresh", logging.Fields{
			"city_id": cityID,
		})
	}
}

func (s *CacheService) updateHitRatio() {
	hits := float64(s.cacheHits.Load())
	total := hits + float64(s.cacheMisses.Load())
	if total > 0 {
		s.metrics.StatsCacheHitRatio.Set(hits / total)
	}
}
