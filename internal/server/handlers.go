package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/NeijiApp/meditation-engine/internal/assembly"
	"github.com/NeijiApp/meditation-engine/internal/meditation"
	"github.com/NeijiApp/meditation-engine/internal/monitor"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	assembler *assembly.Service
	planner   *meditation.Planner
	agent     *meditation.Agent
	validator *validator.Validate
	logger    *slog.Logger
	version   string
	startedAt time.Time
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) HandlerOption {
	return func(h *Handlers) {
		if v != "" {
			h.version = v
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(assembler *assembly.Service, planner *meditation.Planner, agent *meditation.Agent, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		assembler: assembler,
		planner:   planner,
		agent:     agent,
		validator: validator.New(),
		logger:    logger,
		version:   "dev",
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Version:    h.version,
		Uptime:     int64(time.Since(h.startedAt).Seconds()),
		ActiveJobs: h.assembler.ActiveJobs(),
		QueueSize:  h.assembler.QueueSize(),
		SystemResources: SystemResources{
			Goroutines:       runtime.NumGoroutine(),
			MemoryAllocBytes: mem.Alloc,
			NumCPU:           runtime.NumCPU(),
		},
	})
}

// CreateAssembly handles POST /assembly requests. The job is processed in
// the background; the response reports the accepted job and its status.
func (h *Handlers) CreateAssembly(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req CreateAssemblyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	segments := make([]assembly.SegmentInput, len(req.Segments))
	for i, s := range req.Segments {
		segments[i] = assembly.SegmentInput{
			ID:                  s.ID,
			AudioRef:            s.AudioURL,
			DurationSeconds:     s.Duration,
			SilenceAfterSeconds: s.SilenceAfter,
			Volume:              s.Volume,
			FadeInMs:            s.FadeIn,
			FadeOutMs:           s.FadeOut,
		}
	}

	job, err := h.assembler.Submit(r.Context(), segments, assemblyOptions(req.Options))
	if err != nil {
		if errors.Is(err, assembly.ErrNoSegments) || errors.Is(err, assembly.ErrInvalidSegment) {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		h.logger.Error("failed to submit assembly job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to submit job", "JOB_CREATION_FAILED")
		return
	}

	writeJSON(w, http.StatusAccepted, CreateAssemblyResponse{
		RequestID:      job.ID,
		Status:         string(job.Status),
		ProcessingTime: time.Since(start).Milliseconds(),
	})
}

// GetAssemblyStatus handles GET /assembly/{id}/status requests.
func (h *Handlers) GetAssemblyStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	job, err := h.assembler.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, assembly.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, AssemblyStatusResponse{
		RequestID:              job.ID,
		Status:                 string(job.Status),
		Progress:               job.Progress,
		CurrentStep:            job.CurrentStep,
		EstimatedTimeRemaining: job.EstimatedRemainingSeconds(),
		Error:                  job.Error,
	})
}

// CancelAssembly handles POST /assembly/{id}/cancel requests.
// Cancellation is best-effort; success is a 202 with no body.
func (h *Handlers) CancelAssembly(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	if err := h.assembler.Cancel(r.Context(), jobID); err != nil {
		if errors.Is(err, assembly.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to cancel job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel job", "JOB_CANCEL_FAILED")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// DownloadAssembly handles GET /assembly/{id}/download requests.
// Only completed jobs have downloadable output.
func (h *Handlers) DownloadAssembly(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	rc, job, err := h.assembler.Download(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, assembly.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		case errors.Is(err, assembly.ErrJobNotCompleted):
			writeError(w, http.StatusConflict, "job is not completed", "JOB_NOT_COMPLETED")
		default:
			h.logger.Error("failed to open job output",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to open output", "OUTPUT_READ_FAILED")
		}
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", contentTypeFor(job.Options.Format))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", job.FileSizeBytes))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("download interrupted",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// CreateMeditation handles POST /meditations requests: parse the free-text
// prompt, plan segments, resolve each to audio through the cache and
// providers, and submit an assembly job for the final render.
func (h *Handlers) CreateMeditation(w http.ResponseWriter, r *http.Request) {
	var req CreateMeditationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	spec := meditation.ParseRequest(req.Prompt)
	if req.Voice.Gender != "" {
		spec.Voice.Gender = req.Voice.Gender
	}
	if req.Voice.Style != "" {
		spec.Voice.Style = req.Voice.Style
	}
	if req.Language != "" {
		spec.Language = req.Language
	}

	plans, err := h.planner.Plan(spec)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	requestID := RequestIDFrom(r.Context())
	if requestID == "" {
		requestID = generateRequestID()
	}
	rec := monitor.NewRecorder(requestID)
	result, err := h.agent.ResolveAll(r.Context(), plans, spec, rec)
	if err != nil {
		var genErr *meditation.GenerationError
		if errors.As(err, &genErr) {
			writeJSON(w, http.StatusUnprocessableEntity, CreateMeditationResponse{
				Success:   false,
				RequestID: rec.RequestID(),
				Errors:    append(result.Errors, err.Error()),
				Quality:   result.Quality,
				Summary:   rec.Summary(),
			})
			return
		}
		h.logger.Error("pipeline failed",
			slog.String("request_id", rec.RequestID()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to generate meditation", "PIPELINE_FAILED")
		return
	}

	segments := make([]assembly.SegmentInput, len(result.Segments))
	for i, seg := range result.Segments {
		// Freshly synthesized clips have no measured duration yet; fall
		// back to the planner's speech estimate so submission validates.
		duration := float64(seg.AudioDurationMs) / 1000
		if duration <= 0 {
			duration = seg.EstimatedSpeechSeconds
		}
		segments[i] = assembly.SegmentInput{
			ID:                  seg.ID,
			AudioRef:            seg.AudioRef,
			DurationSeconds:     duration,
			SilenceAfterSeconds: seg.SilenceAfterSeconds,
		}
	}
	// The session fades in and out as a whole.
	job, err := h.assembler.Submit(r.Context(), segments, assembly.OutputOptions{
		Format:          "mp3",
		Normalize:       true,
		FadeTransitions: true,
	})
	if err != nil {
		h.logger.Error("failed to submit assembly for meditation",
			slog.String("request_id", rec.RequestID()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to submit assembly", "JOB_CREATION_FAILED")
		return
	}

	h.logger.Info("meditation pipeline accepted",
		slog.String("request_id", rec.RequestID()),
		slog.String("job_id", job.ID),
		slog.Int("segments", len(segments)),
		slog.Float64("quality", result.Quality),
	)

	writeJSON(w, http.StatusAccepted, CreateMeditationResponse{
		Success:   true,
		RequestID: rec.RequestID(),
		JobID:     job.ID,
		Errors:    result.Errors,
		Quality:   result.Quality,
		Summary:   rec.Summary(),
	})
}

// assemblyOptions maps the request DTO to domain output options.
// RemoveArtifacts is served by the same loudness pass as Normalize.
func assemblyOptions(o AssemblyOptions) assembly.OutputOptions {
	return assembly.OutputOptions{
		Format:          o.Format,
		Bitrate:         o.Quality,
		Normalize:       o.Normalize || o.RemoveArtifacts,
		FadeTransitions: o.FadeTransitions,
		AddMetadata:     o.AddMetadata,
	}
}

// contentTypeFor maps an output format to its MIME type.
func contentTypeFor(format string) string {
	switch format {
	case "wav":
		return "audio/wav"
	case "aac":
		return "audio/mp4"
	default:
		return "audio/mpeg"
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
