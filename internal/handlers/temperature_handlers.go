package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Hetprajapati12/Assignment-solution/internal/models"
	"github.com/Hetprajapati12/Assignment-solution/internal/repository"
	"github.com/Hetprajapati12/Assignment-solution/internal/services"
	"github.com/Hetprajapati12/Assignment-solution/pkg/logging"
	"github.com/Hetprajapati12/Assignment-solution/pkg/metrics"
)

// TemperatureHandler handles the ingestion and statistics API endpoints
type TemperatureHandler struct {
	cityService      *services.CityService
	ingestionService *services.IngestionService
	cacheService     *services.CacheService
	logger           *logging.StructuredLogger
	metrics          *metrics.Collector
	uploadDir        string
	maxUploadBytes   int64
}

// NewTemperatureHandler creates a new temperature handler
func NewTemperatureHandler(
	cityService *services.CityService,
	ingestionService *services.IngestionService,
	cacheService *services.CacheService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
	uploadDir string,
	maxUploadBytes int64,
) *TemperatureHandler {
	return &TemperatureHandler{
		cityService:      cityService,
		ingestionService: ingestionService,
		cacheService:     cacheService,
		logger:           logger,
		metrics:          metricsCollector,
		uploadDir:        uploadDir,
		maxUploadBytes:   maxUploadBytes,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// PaginatedResponse represents a paginated API response
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// UploadResponse acknowledges an accepted file upload
type UploadResponse struct {
	Message   string `json:"message"`
	UploadID  string `json:"upload_id"`
	TaskID    string `json:"task_id,omitempty"`
	StatusURL string `json:"status_url"`
}

// JobStatusResponse is the client view of one ingestion job
type JobStatusResponse struct {
	UploadID           string           `json:"upload_id"`
	Filename           string           `json:"filename"`
	Status             models.JobStatus `json:"status"`
	TotalRows          int64            `json:"total_rows"`
	ProcessedRows      int64            `json:"processed_rows"`
	ErrorCount         int64            `json:"error_count"`
	ProgressPercentage float64          `json:"progress_percentage"`
	RetryCount         int              `json:"retry_count"`
	Errors             models.ErrorLog  `json:"errors"`
	CreatedAt          time.Time        `json:"created_at"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
}

// StatisticsResponse is a city statistics snapshot plus cache provenance
type StatisticsResponse struct {
	CityID       string              `json:"city_id"`
	MeanValue    *models.Temperature `json:"mean_value"`
	MaxValue     *models.Temperature `json:"max_value"`
	MinValue     *models.Temperature `json:"min_value"`
	ReadingCount int64               `json:"reading_count"`
	LastUpdated  time.Time           `json:"last_updated"`
	Cached       bool                `json:"cached"`
}

// ReadingsResponse is one page of readings for a city
type ReadingsResponse struct {
	CityID     string                       `json:"city_id"`
	TotalCount int                          `json:"total_count"`
	Limit      int                          `json:"limit"`
	Offset     int                          `json:"offset"`
	Results    []*models.TemperatureReading `json:"results"`
}

// RefreshResponse acknowledges a triggered cache refresh
type RefreshResponse struct {
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}

func jobStatusResponse(job *models.IngestionJob) *JobStatusResponse {
	return &JobStatusResponse{
		UploadID:           job.ID.String(),
		Filename:           job.Filename,
		Status:             job.Status,
		TotalRows:          job.TotalRows,
		ProcessedRows:      job.ProcessedRows,
		ErrorCount:         job.ErrorCount,
		ProgressPercentage: job.ProgressPercentage(),
		RetryCount:         job.RetryCount,
		Errors:             job.ErrorLog,
		CreatedAt:          job.CreatedAt,
		CompletedAt:        job.CompletedAt,
	}
}

// UploadFile handles POST /api/upload
func (h *TemperatureHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/api/upload").Observe(duration.Seconds())
	}()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.metrics.RecordAPIError("bad_request", "/api/upload")
		h.sendError(w, r, "invalid multipart request or file too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.metrics.RecordAPIError("bad_request", "/api/upload")
		h.sendError(w, r, "missing form field 'file'", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".csv" {
		h.metrics.RecordAPIError("bad_request", "/api/upload")
		h.sendError(w, r, "only .csv files are accepted", http.StatusBadRequest)
		return
	}

	// Stored under a fresh UUID so uploads can never collide.
	destPath := filepath.Join(h.uploadDir, uuid.New().String()+".csv")
	dst, err := os.Create(destPath)
	if err != nil {
		h.logger.Error(ctx, "[API_UPLOAD_ERROR] Failed to create upload file", logging.Fields{
			"path": destPath,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/upload")
		h.sendError(w, r, "failed to store uploaded file", http.StatusInternalServerError)
		return
	}

	size, err := io.Copy(dst, file)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(destPath)
		h.logger.Error(ctx, "[API_UPLOAD_ERROR] Failed to write upload file", logging.Fields{
			"path": destPath,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/upload")
		h.sendError(w, r, "failed to store uploaded file", http.StatusInternalServerError)
		return
	}

	job, err := h.ingestionService.SubmitJob(ctx, header.Filename, destPath, size)
	if err != nil {
		h.logger.Error(ctx, "[API_UPLOAD_ERROR] Failed to submit ingestion job", logging.Fields{
			"filename": header.Filename,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/upload")
		h.sendError(w, r, "failed to queue file for processing", http.StatusInternalServerError)
		return
	}

	response := UploadResponse{
		Message:   "File uploaded successfully and queued for processing",
		UploadID:  job.ID.String(),
		TaskID:    job.QueueTaskID,
		StatusURL: fmt.Sprintf("/api/upload/%s/status", job.ID),
	}

	h.metrics.RecordAPIRequest("/api/upload", "POST", "202")
	h.sendJSON(w, response, http.StatusAccepted)
}

// GetUploadStatus handles GET /api/upload/{upload_id}/status
func (h *TemperatureHandler) GetUploadStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/api/upload/status").Observe(duration.Seconds())
	}()

	id, err := uuid.Parse(mux.Vars(r)["upload_id"])
	if err != nil {
		h.sendError(w, r, "invalid upload id, expected a UUID", http.StatusBadRequest)
		return
	}

	job, err := h.ingestionService.GetJob(ctx, id)
	if err != nil {
		var notFound *repository.NotFoundError
		if errors.As(err, &notFound) {
			h.sendError(w, r, fmt.Sprintf("upload %s not found", id), http.StatusNotFound)
			return
		}
		h.logger.Error(ctx, "[API_UPLOAD_STATUS_ERROR] Failed to get job", logging.Fields{
			"upload_id": id.String(),
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/upload/status")
		h.sendError(w, r, "failed to retrieve upload status", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordAPIRequest("/api/upload/status", "GET", "200")
	h.sendJSON(w, jobStatusResponse(job), http.StatusOK)
}

// ListUploads handles GET /api/uploads
func (h *TemperatureHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/api/uploads").Observe(duration.Seconds())
	}()

	page, limit := parsePagination(r)
	offset := (page - 1) * limit

	jobs, total, err := h.ingestionService.ListJobs(ctx, limit, offset)
	if err != nil {
		h.logger.Error(ctx, "[API_LIST_UPLOADS_ERROR] Failed to list jobs", logging.Fields{
			"page":  page,
			"limit": limit,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/uploads")
		h.sendError(w, r, "failed to retrieve uploads", http.StatusInternalServerError)
		return
	}

	data := make([]*JobStatusResponse, 0, len(jobs))
	for _, job := range jobs {
		data = append(data, jobStatusResponse(job))
	}

	response := PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}

	h.metrics.RecordAPIRequest("/api/uploads", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// ListCities handles GET /api/cities
func (h *TemperatureHandler) ListCities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/api/cities").Observe(duration.Seconds())
	}()

	page, limit := parsePagination(r)
	offset := (page - 1) * limit

	cities, total, err := h.cityService.ListCities(ctx, limit, offset)
	if err != nil {
		h.logger.Error(ctx, "[API_LIST_CITIES_ERROR] Failed to list cities", logging.Fields{
			"page":  page,
			"limit": limit,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/cities")
		h.sendError(w, r, "failed to retrieve cities", http.StatusInternalServerError)
		return
	}

	response := PaginatedResponse{
		Data:       cities,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}

	h.metrics.RecordAPIRequest("/api/cities", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// GetCityStatistics handles GET /api/cities/{city_id}/statistics
func (h *TemperatureHandler) GetCityStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/api/cities/statistics").Observe(duration.Seconds())
	}()

	cityID := mux.Vars(r)["city_id"]

	stats, cached, err := h.cacheService.GetStatistics(ctx, cityID)
	if err != nil {
		var notFound *repository.NotFoundError
		if errors.As(err, &notFound) {
			h.sendError(w, r, fmt.Sprintf("city %s not found", cityID), http.StatusNotFound)
			return
		}
		h.logger.Error(ctx, "[API_STATISTICS_ERROR] Failed to get statistics", logging.Fields{
			"city_id": cityID,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/cities/statistics")
		h.sendError(w, r, "failed to retrieve statistics", http.StatusInternalServerError)
		return
	}

	response := StatisticsResponse{
		CityID:       stats.CityID,
		MeanValue:    stats.MeanValue,
		MaxValue:     stats.MaxValue,
		MinValue:     stats.MinValue,
		ReadingCount: stats.ReadingCount,
		LastUpdated:  stats.LastUpdated,
		Cached:       cached,
	}

	h.metrics.RecordAPIRequest("/api/cities/statistics", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// GetCityReadings handles GET /api/cities/{city_id}/readings
func (h *TemperatureHandler) GetCityReadings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/api/cities/readings").Observe(duration.Seconds())
	}()

	cityID := mux.Vars(r)["city_id"]

	if _, err := h.cityService.GetCity(ctx, cityID); err != nil {
		var notFound *repository.NotFoundError
		if errors.As(err, &notFound) {
			h.sendError(w, r, fmt.Sprintf("city %s not found", cityID), http.StatusNotFound)
			return
		}
		h.logger.Error(ctx, "[API_READINGS_ERROR] Failed to get city", logging.Fields{
			"city_id": cityID,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/cities/readings")
		h.sendError(w, r, "failed to retrieve readings", http.StatusInternalServerError)
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}
	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	filter := repository.ReadingFilter{
		CityID: &cityID,
		Limit:  limit,
		Offset: offset,
	}

	if startDateStr := r.URL.Query().Get("start_date"); startDateStr != "" {
		startDate, err := time.Parse("2006-01-02", startDateStr)
		if err != nil {
			h.sendError(w, r, "invalid start_date format, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.StartDate = &startDate
	}

	if endDateStr := r.URL.Query().Get("end_date"); endDateStr != "" {
		endDate, err := time.Parse("2006-01-02", endDateStr)
		if err != nil {
			h.sendError(w, r, "invalid end_date format, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.EndDate = &endDate
	}

	readings, total, err := h.cityService.GetReadings(ctx, filter)
	if err != nil {
		h.logger.Error(ctx, "[API_READINGS_ERROR] Failed to get readings", logging.Fields{
			"city_id": cityID,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/cities/readings")
		h.sendError(w, r, "failed to retrieve readings", http.StatusInternalServerError)
		return
	}

	response := ReadingsResponse{
		CityID:     cityID,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
		Results:    readings,
	}

	h.metrics.RecordAPIRequest("/api/cities/readings", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// RefreshCityCache handles POST /api/cities/{city_id}/refresh-cache
func (h *TemperatureHandler) RefreshCityCache(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		duration := time.Since(startTime)
		h.metrics.APIRequestDuration.WithLabelValues("/api/cities/refresh-cache").Observe(duration.Seconds())
	}()

	cityID := mux.Vars(r)["city_id"]

	taskID, err := h.cacheService.TriggerRefresh(ctx, cityID)
	if err != nil {
		var notFound *repository.NotFoundError
		if errors.As(err, &notFound) {
			h.sendError(w, r, fmt.Sprintf("city %s not found", cityID), http.StatusNotFound)
			return
		}
		h.logger.Error(ctx, "[API_REFRESH_ERROR] Failed to trigger cache refresh", logging.Fields{
			"city_id": cityID,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/cities/refresh-cache")
		h.sendError(w, r, "failed to trigger cache refresh", http.StatusInternalServerError)
		return
	}

	response := RefreshResponse{
		Message: fmt.Sprintf("Cache refresh triggered for city %s", cityID),
		TaskID:  taskID,
	}

	h.metrics.RecordAPIRequest("/api/cities/refresh-cache", "POST", "202")
	h.sendJSON(w, response, http.StatusAccepted)
}

// HealthCheck handles GET /health
func (h *TemperatureHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":  "healthy",
		"service": "temperature-service",
		"version": "1.0.0",
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

// parsePagination reads page/limit query parameters with the API defaults
func parsePagination(r *http.Request) (page, limit int) {
	page = 1
	limit = 100

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}
	return page, limit
}

// sendJSON sends a JSON response
func (h *TemperatureHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *TemperatureHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all temperature API routes
func (h *TemperatureHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/upload", h.UploadFile).Methods("POST")
	router.HandleFunc("/api/upload/{upload_id}/status", h.GetUploadStatus).Methods("GET")
	router.HandleFunc("/api/uploads", h.ListUploads).Methods("GET")
	router.HandleFunc("/api/cities", h.ListCities).Methods("GET")
	router.HandleFunc("/api/cities/{city_id}/statistics", h.GetCityStatistics).Methods("GET")
	router.HandleFunc("/api/cities/{city_id}/readings", h.GetCityReadings).Methods("GET")
	router.HandleFunc("/api/cities/{city_id}/refresh-cache", h.RefreshCityCache).Methods("POST")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
