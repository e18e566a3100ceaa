package services

import (
	"context"

	"github.com/Hetprajapati12/Assignment-solution/internal/models"
	"github.com/Hetprajapati12/Assignment-solution/internal/repository"
	"github.com/Hetprajapati12/Assignment-solution/pkg/logging"
	"github.com/Hetprajapati12/Assignment-solution/pkg/metrics"
)

// CityService handles city and reading data reads
type CityService struct {
	repo    repository.TemperatureRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewCityService creates a new city service
func NewCityService(repo repository.TemperatureRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *CityService {
	return &CityService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// GetCity retrieves one city by its identifier
func (s *CityService) GetCity(ctx context.Context, cityID string) (*models.City, error) {
	return s.repo.GetCity(ctx, cityID)
}

// ListCities retrieves cities with pagination
func (s *CityService) ListCities(ctx context.Context, limit, offset int) ([]*models.City, int, error) {
	return s.repo.ListCities(ctx, limit, offset)
}

// GetReadings retrieves temperature readings with filtering
func (s *CityService) GetReadings(ctx context.Context, filter repository.ReadingFilter) ([]*models.TemperatureReading, int, error) {
	return s.repo.GetReadings(ctx, filter)
}
