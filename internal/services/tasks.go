package services

// Task kinds routed through the queue.
const (
	TaskProcessFile      = "process_temperature_file"
	TaskProcessChunk     = "process_file_chunk"
	TaskUpdateCityCache  = "update_city_cache"
	TaskRefreshAllCaches = "refresh_all_city_caches"
)

// Retry limits per task kind.
const (
	fileTaskRetries  = 3
	chunkTaskRetries = 5
	cacheTaskRetries = 3
)

// Cache refresh priorities: user-triggered refreshes outrank refreshes
// queued by finished ingestion jobs, which outrank the periodic sweep.
const (
	RefreshPriorityUser  = 9
	RefreshPrioritySweep = 3
)

type processFilePayload struct {
	JobID string `json:"job_id"`
}

type processChunkPayload struct {
	JobID      string     `json:"job_id"`
	ChunkIndex int        `json:"chunk_index"`
	Rows       [][]string `json:"rows"`
}

type cityCachePayload struct {
	CityID string `json:"city_id"`
}
