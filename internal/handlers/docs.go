package handlers

import (
	"encoding/json"
	"net/http"
)

// OpenAPISpec returns the OpenAPI 3.0 specification for the Temperature Ingestion API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Temperature Ingestion API",
			"description": "Asynchronous CSV ingestion service for city temperature readings with PostgreSQL storage, job tracking, and cached statistics",
			"version":     "1.0.0",
			"contact": map[string]string{
				"name": "Temperature Service Team",
			},
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/upload": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Upload a temperature CSV file",
					"description": "Accepts a multipart CSV upload and queues it for asynchronous processing",
					"requestBody": map[string]interface{}{
						"required": true,
						"content": map[string]interface{}{
							"multipart/form-data": map[string]interface{}{
								"schema": map[string]interface{}{
									"type": "object",
									"properties": map[string]interface{}{
										"file": map[string]string{"type": "string", "format": "binary"},
									},
									"required": []string{"file"},
								},
							},
						},
					},
					"responses": map[string]interface{}{
						"202": map[string]interface{}{
							"description": "File accepted for processing",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"message":    map[string]string{"type": "string"},
											"upload_id":  map[string]string{"type": "string", "format": "uuid"},
											"task_id":    map[string]string{"type": "string"},
											"status_url": map[string]string{"type": "string"},
										},
									},
								},
							},
						},
						"400": map[string]interface{}{
							"description": "Missing file field, wrong extension, or oversized upload",
						},
					},
				},
			},
			"/api/upload/{upload_id}/status": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Get upload status",
					"description": "Retrieve the processing status and error log of one ingestion job",
					"parameters": []map[string]interface{}{
						{
							"name":        "upload_id",
							"in":          "path",
							"description": "Upload job UUID",
							"required":    true,
							"schema":      map[string]string{"type": "string", "format": "uuid"},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Job snapshot",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"upload_id":           map[string]string{"type": "string", "format": "uuid"},
											"filename":            map[string]string{"type": "string"},
											"status":              map[string]interface{}{"type": "string", "enum": []string{"pending", "processing", "completed", "partial", "failed"}},
											"total_rows":          map[string]string{"type": "integer"},
											"processed_rows":      map[string]string{"type": "integer"},
											"error_count":         map[string]string{"type": "integer"},
											"progress_percentage": map[string]string{"type": "number"},
											"retry_count":         map[string]string{"type": "integer"},
											"errors": map[string]interface{}{
												"type": "array",
												"items": map[string]interface{}{
													"type": "object",
													"properties": map[string]interface{}{
														"timestamp": map[string]string{"type": "string", "format": "date-time"},
														"row":       map[string]string{"type": "integer"},
														"message":   map[string]string{"type": "string"},
													},
												},
											},
											"created_at":   map[string]string{"type": "string", "format": "date-time"},
											"completed_at": map[string]interface{}{"type": "string", "format": "date-time", "nullable": true},
										},
									},
								},
							},
						},
						"404": map[string]interface{}{
							"description": "Unknown upload id",
						},
					},
				},
			},
			"/api/uploads": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "List uploads",
					"description": "Retrieve ingestion jobs, newest first, with pagination",
					"parameters": []map[string]interface{}{
						{
							"name":        "page",
							"in":          "query",
							"description": "Page number (default: 1)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "integer", "default": 1},
						},
						{
							"name":        "limit",
							"in":          "query",
							"description": "Records per page (default: 100)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "integer", "default": 100},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Paginated job list",
						},
					},
				},
			},
			"/api/cities": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "List cities",
					"description": "Retrieve known cities with pagination",
					"parameters": []map[string]interface{}{
						{
							"name":        "page",
							"in":          "query",
							"description": "Page number (default: 1)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "integer", "default": 1},
						},
						{
							"name":        "limit",
							"in":          "query",
							"description": "Records per page (default: 100)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "integer", "default": 100},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Paginated city list",
						},
					},
				},
			},
			"/api/cities/{city_id}/statistics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Get city statistics",
					"description": "Retrieve mean/max/min temperature and reading count for one city, served from the statistics cache when possible",
					"parameters": []map[string]interface{}{
						{
							"name":        "city_id",
							"in":          "path",
							"description": "City identifier",
							"required":    true,
							"schema":      map[string]string{"type": "string"},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Statistics snapshot",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"city_id":       map[string]string{"type": "string"},
											"mean_value":    map[string]interface{}{"type": "number", "nullable": true},
											"max_value":     map[string]interface{}{"type": "number", "nullable": true},
											"min_value":     map[string]interface{}{"type": "number", "nullable": true},
											"reading_count": map[string]string{"type": "integer"},
											"last_updated":  map[string]string{"type": "string", "format": "date-time"},
											"cached":        map[string]string{"type": "boolean"},
										},
									},
								},
							},
						},
						"404": map[string]interface{}{
							"description": "Unknown city",
						},
					},
				},
			},
			"/api/cities/{city_id}/readings": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Get city readings",
					"description": "Retrieve raw temperature readings for one city, newest first",
					"parameters": []map[string]interface{}{
						{
							"name":        "city_id",
							"in":          "path",
							"description": "City identifier",
							"required":    true,
							"schema":      map[string]string{"type": "string"},
						},
						{
							"name":        "start_date",
							"in":          "query",
							"description": "Filter by start date (YYYY-MM-DD)",
							"required":    false,
							"schema":      map[string]string{"type": "string", "format": "date"},
						},
						{
							"name":        "end_date",
							"in":          "query",
							"description": "Filter by end date (YYYY-MM-DD)",
							"required":    false,
							"schema":      map[string]string{"type": "string", "format": "date"},
						},
						{
							"name":        "limit",
							"in":          "query",
							"description": "Records per page (default: 100, max: 1000)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "integer", "default": 100},
						},
						{
							"name":        "offset",
							"in":          "query",
							"description": "Records to skip (default: 0)",
							"required":    false,
							"schema":      map[string]interface{}{"type": "integer", "default": 0},
						},
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Readings page",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"city_id":     map[string]string{"type": "string"},
											"total_count": map[string]string{"type": "integer"},
											"limit":       map[string]string{"type": "integer"},
											"offset":      map[string]string{"type": "integer"},
											"results": map[string]interface{}{
												"type": "array",
												"items": map[string]interface{}{
													"type": "object",
													"properties": map[string]interface{}{
														"id":         map[string]string{"type": "integer"},
														"city_id":    map[string]string{"type": "string"},
														"value":      map[string]string{"type": "number"},
														"timestamp":  map[string]string{"type": "string", "format": "date-time"},
														"created_at": map[string]string{"type": "string", "format": "date-time"},
													},
												},
											},
										},
									},
								},
							},
						},
						"404": map[string]interface{}{
							"description": "Unknown city",
						},
					},
				},
			},
			"/api/cities/{city_id}/refresh-cache": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Trigger a cache refresh",
					"description": "Queue a high-priority statistics recalculation for one city",
					"parameters": []map[string]interface{}{
						{
							"name":        "city_id",
							"in":          "path",
							"description": "City identifier",
							"required":    true,
							"schema":      map[string]string{"type": "string"},
						},
					},
					"responses": map[string]interface{}{
						"202": map[string]interface{}{
							"description": "Refresh queued",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"message": map[string]string{"type": "string"},
											"task_id": map[string]string{"type": "string"},
										},
									},
								},
							},
						},
						"404": map[string]interface{}{
							"description": "Unknown city",
						},
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Health check",
					"description": "Check if the API is running",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "API is healthy",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"status":  map[string]string{"type": "string"},
											"service": map[string]string{"type": "string"},
											"version": map[string]string{"type": "string"},
										},
									},
								},
							},
						},
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
