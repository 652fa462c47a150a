package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/ledger-sync/internal/api/middleware"
	"github.com/dvloznov/ledger-sync/internal/jobs"
	"github.com/rs/zerolog"
)

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		Entity: query.Get("entity"),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// SyncHandler enqueues manual sync runs.
type SyncHandler struct {
	publisher jobs.Publisher
	entities  map[string]bool
	log       zerolog.Logger
}

// NewSyncHandler creates a handler accepting runs for the named entities.
func NewSyncHandler(publisher jobs.Publisher, entities []string, log zerolog.Logger) *SyncHandler {
	known := make(map[string]bool, len(entities))
	for _, e := range entities {
		known[e] = true
	}
	return &SyncHandler{
		publisher: publisher,
		entities:  known,
		log:       log,
	}
}

// EnqueueSync handles POST /api/sync/{entity}
func (h *SyncHandler) EnqueueSync(w http.ResponseWriter, r *http.Request, entity string) {
	if !h.entities[entity] {
		middleware.WriteError(w, http.StatusNotFound, "Unknown entity: "+entity)
		return
	}

	job := &jobs.SyncJob{Entity: entity, Trigger: jobs.TriggerManual}
	if err := h.publisher.PublishSync(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("entity", entity).Msg("Failed to enqueue sync job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue sync job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("entity", entity).Msg("Sync job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"entity": entity,
		"status": string(job.Status),
	})
}

// Routes registers the status and sync endpoints on a new mux.
func Routes(jobsHandler *JobsHandler, syncHandler *SyncHandler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/sync/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			entity := strings.TrimPrefix(r.URL.Path, "/api/sync/")
			if entity == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Entity is required")
				return
			}
			syncHandler.EnqueueSync(w, r, entity)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return mux
}
