// Package testutil provides in-memory doubles shared by the package
// test suites.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Hetprajapati12/Assignment-solution/internal/models"
	"github.com/Hetprajapati12/Assignment-solution/internal/repository"
)

// FakeRepository is an in-memory TemperatureRepository with the same
// idempotence semantics as the Postgres implementation: ledger-gated
// batch writes, guarded job transitions, capped error logs.
type FakeRepository struct {
	mu       sync.Mutex
	cities   map[string]*models.City
	readings []*models.TemperatureReading
	caches   map[string]*models.CityStats
	jobs     map[uuid.UUID]*models.IngestionJob
	jobSeq   map[uuid.UUID]int
	seq      int
	ledger   map[string]bool

	// FailInsertBatches makes that many InsertReadingBatch calls fail
	// before any ledger claim; FailBatchOnce fails specific
	// "chunkIndex/batchIndex" keys a set number of times.
	FailInsertBatches int
	FailBatchOnce     map[string]int
}

// NewFakeRepository creates an empty fake store.
func NewFakeRepository() *FakeRepository {
	return &FakeRepository{
		cities:        make(map[string]*models.City),
		caches:        make(map[string]*models.CityStats),
		jobs:          make(map[uuid.UUID]*models.IngestionJob),
		jobSeq:        make(map[uuid.UUID]int),
		ledger:        make(map[string]bool),
		FailBatchOnce: make(map[string]int),
	}
}

func (f *FakeRepository) GetOrCreateCity(ctx context.Context, cityID string) (*models.City, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if city, ok := f.cities[cityID]; ok {
		return city, nil
	}
	city := &models.City{
		CityID:    cityID,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	f.cities[cityID] = city
	return city, nil
}

func (f *FakeRepository) GetCity(ctx context.Context, cityID string) (*models.City, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	city, ok := f.cities[cityID]
	if !ok {
		return nil, &repository.NotFoundError{Resource: "city", ID: cityID}
	}
	return city, nil
}

func (f *FakeRepository) ListCities(ctx context.Context, limit, offset int) ([]*models.City, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := f.sortedCityIDs()
	total := len(ids)

	cities := []*models.City{}
	for i := offset; i < total && len(cities) < limit; i++ {
		cities = append(cities, f.cities[ids[i]])
	}
	return cities, total, nil
}

func (f *FakeRepository) ListCityIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedCityIDs(), nil
}

func (f *FakeRepository) sortedCityIDs() []string {
	ids := make([]string, 0, len(f.cities))
	for id := range f.cities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (f *FakeRepository) InsertReadingBatch(ctx context.Context, jobID uuid.UUID, chunkIndex, batchIndex int, readings []*models.TemperatureReading) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailInsertBatches > 0 {
		f.FailInsertBatches--
		return false, fmt.Errorf("store unavailable")
	}
	onceKey := fmt.Sprintf("%d/%d", chunkIndex, batchIndex)
	if f.FailBatchOnce[onceKey] > 0 {
		f.FailBatchOnce[onceKey]--
		return false, fmt.Errorf("store unavailable")
	}

	key := fmt.Sprintf("%s/%d/%d", jobID, chunkIndex, batchIndex)
	if f.ledger[key] {
		return false, nil
	}
	f.ledger[key] = true

	f.readings = append(f.readings, readings...)
	if job, ok := f.jobs[jobID]; ok {
		job.ProcessedRows += int64(len(readings))
	}
	for _, reading := range readings {
		if cache, ok := f.caches[reading.CityID]; ok {
			cache.IsStale = true
		}
	}
	return true, nil
}

func (f *FakeRepository) GetReadings(ctx context.Context, filter repository.ReadingFilter) ([]*models.TemperatureReading, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	matched := []*models.TemperatureReading{}
	for _, reading := range f.readings {
		if filter.CityID != nil && reading.CityID != *filter.CityID {
			continue
		}
		if filter.StartDate != nil && reading.Timestamp.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && reading.Timestamp.After(*filter.EndDate) {
			continue
		}
		matched = append(matched, reading)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	page := []*models.TemperatureReading{}
	for i := filter.Offset; i < total && len(page) < filter.Limit; i++ {
		page = append(page, matched[i])
	}
	return page, total, nil
}

func (f *FakeRepository) AggregateCity(ctx context.Context, cityID string) (*models.CityStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aggregateLocked(cityID), nil
}

func (f *FakeRepository) aggregateLocked(cityID string) *models.CityStats {
	stats := &models.CityStats{
		CityID:      cityID,
		LastUpdated: time.Now().UTC(),
	}

	var sum int64
	for _, reading := range f.readings {
		if reading.CityID != cityID {
			continue
		}
		v := reading.Value
		sum += int64(v)
		if stats.ReadingCount == 0 {
			maxV, minV := v, v
			stats.MaxValue, stats.MinValue = &maxV, &minV
		} else {
			if v > *stats.MaxValue {
				*stats.MaxValue = v
			}
			if v < *stats.MinValue {
				*stats.MinValue = v
			}
		}
		stats.ReadingCount++
	}
	if stats.ReadingCount > 0 {
		mean := models.NewTemperature(float64(sum) / float64(stats.ReadingCount) / 100)
		stats.MeanValue = &mean
	}
	return stats
}

func (f *FakeRepository) GetCityCache(ctx context.Context, cityID string) (*models.CityStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cache, ok := f.caches[cityID]
	if !ok {
		return nil, &repository.NotFoundError{Resource: "city_stats_cache", ID: cityID}
	}
	cp := *cache
	return &cp, nil
}

func (f *FakeRepository) UpsertCityCache(ctx context.Context, stats *models.CityStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *stats
	cp.IsStale = false
	cp.LastUpdated = time.Now().UTC()
	f.caches[stats.CityID] = &cp
	return nil
}

func (f *FakeRepository) MarkCachesStale(ctx context.Context, cityIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, cityID := range cityIDs {
		if cache, ok := f.caches[cityID]; ok {
			cache.IsStale = true
		}
	}
	return nil
}

func (f *FakeRepository) CreateJob(ctx context.Context, job *models.IngestionJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *job
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	f.jobs[job.ID] = &cp
	f.seq++
	f.jobSeq[job.ID] = f.seq
	return nil
}

func (f *FakeRepository) GetJob(ctx context.Context, id uuid.UUID) (*models.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[id]
	if !ok {
		return nil, &repository.NotFoundError{Resource: "ingestion_job", ID: id.String()}
	}
	cp := *job
	return &cp, nil
}

func (f *FakeRepository) ListJobs(ctx context.Context, limit, offset int) ([]*models.IngestionJob, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all := make([]*models.IngestionJob, 0, len(f.jobs))
	for id := range f.jobs {
		cp := *f.jobs[id]
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		return f.jobSeq[all[i].ID] > f.jobSeq[all[j].ID]
	})

	total := len(all)
	page := []*models.IngestionJob{}
	for i := offset; i < total && len(page) < limit; i++ {
		page = append(page, all[i])
	}
	return page, total, nil
}

func (f *FakeRepository) MarkJobProcessing(ctx context.Context, id uuid.UUID, taskID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[id]
	if !ok || job.Status.IsTerminal() {
		return false, nil
	}
	job.Status = models.JobStatusProcessing
	job.QueueTaskID = taskID
	job.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (f *FakeRepository) SetJobTaskID(ctx context.Context, id uuid.UUID, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if job, ok := f.jobs[id]; ok {
		job.QueueTaskID = taskID
	}
	return nil
}

func (f *FakeRepository) SetJobTotalRows(ctx context.Context, id uuid.UUID, totalRows int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if job, ok := f.jobs[id]; ok {
		job.TotalRows = totalRows
	}
	return nil
}

func (f *FakeRepository) RecordChunkErrors(ctx context.Context, jobID uuid.UUID, chunkIndex int, jobErrors []models.JobError) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := fmt.Sprintf("%s/%d/-1", jobID, chunkIndex)
	if f.ledger[key] {
		return false, nil
	}
	f.ledger[key] = true

	job, ok := f.jobs[jobID]
	if !ok {
		return false, &repository.NotFoundError{Resource: "ingestion_job", ID: jobID.String()}
	}
	job.ErrorLog = job.ErrorLog.Append(jobErrors...)
	job.ErrorCount += int64(len(jobErrors))
	return true, nil
}

func (f *FakeRepository) IncrementJobRetry(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if job, ok := f.jobs[id]; ok {
		job.RetryCount++
	}
	return nil
}

func (f *FakeRepository) CompleteJob(ctx context.Context, id uuid.UUID) (*models.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[id]
	if !ok {
		return nil, &repository.NotFoundError{Resource: "ingestion_job", ID: id.String()}
	}
	if job.Status == models.JobStatusProcessing {
		if job.ErrorCount == 0 {
			job.Status = models.JobStatusCompleted
		} else {
			job.Status = models.JobStatusPartial
		}
		now := time.Now().UTC()
		job.CompletedAt = &now
		job.UpdatedAt = now
	}
	cp := *job
	return &cp, nil
}

func (f *FakeRepository) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[id]
	if !ok {
		return &repository.NotFoundError{Resource: "ingestion_job", ID: id.String()}
	}
	if job.Status.IsTerminal() {
		return nil
	}
	job.Status = models.JobStatusFailed
	job.ErrorLog = job.ErrorLog.Append(models.NewJobError(0, message))
	now := time.Now().UTC()
	job.CompletedAt = &now
	job.UpdatedAt = now
	return nil
}

func (f *FakeRepository) HealthCheck(ctx context.Context) error {
	return nil
}

// ReadingCount reports how many readings the store holds.
func (f *FakeRepository) ReadingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.readings)
}

// LedgerSize reports how many ledger entries have been claimed.
func (f *FakeRepository) LedgerSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ledger)
}

// CacheSnapshot returns a copy of one city's cache row.
func (f *FakeRepository) CacheSnapshot(cityID string) (models.CityStats, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cache, ok := f.caches[cityID]
	if !ok {
		return models.CityStats{}, false
	}
	return *cache, true
}

// SeedReading stores one reading directly, creating the city if needed.
func (f *FakeRepository) SeedReading(cityID string, value float64, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.cities[cityID]; !ok {
		f.cities[cityID] = &models.City{CityID: cityID, CreatedAt: ts, UpdatedAt: ts}
	}
	f.readings = append(f.readings, &models.TemperatureReading{
		ID:        int64(len(f.readings) + 1),
		CityID:    cityID,
		Value:     models.NewTemperature(value),
		Timestamp: ts,
		CreatedAt: ts,
	})
}

// SeedCache stores one cache row as given, creating the city if needed.
func (f *FakeRepository) SeedCache(stats models.CityStats) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.cities[stats.CityID]; !ok {
		now := time.Now().UTC()
		f.cities[stats.CityID] = &models.City{CityID: stats.CityID, CreatedAt: now, UpdatedAt: now}
	}
	cp := stats
	f.caches[stats.CityID] = &cp
}
