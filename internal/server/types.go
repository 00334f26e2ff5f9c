// Package server provides the HTTP server for the meditation engine API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

// AssemblySegment is one audio segment in an assembly request.
type AssemblySegment struct {
	// ID identifies the segment within the request.
	ID string `json:"id" validate:"required"`
	// AudioURL is where to fetch the segment audio (URL or server-local path).
	AudioURL string `json:"audioUrl" validate:"required"`
	// Duration is the clip duration in seconds. Must be positive.
	Duration float64 `json:"duration" validate:"gt=0"`
	// SilenceAfter is trailing silence in seconds.
	SilenceAfter float64 `json:"silenceAfter,omitempty" validate:"gte=0"`
	// Volume scales the clip; 0 means unscaled.
	Volume float64 `json:"volume,omitempty" validate:"gte=0,lte=2"`
	// FadeIn is the fade-in length in milliseconds.
	FadeIn int `json:"fadeIn,omitempty" validate:"gte=0"`
	// FadeOut is the fade-out length in milliseconds.
	FadeOut int `json:"fadeOut,omitempty" validate:"gte=0"`
}

// AssemblyOptions controls the encoded output of an assembly request.
type AssemblyOptions struct {
	// Format is the output format ("mp3", "aac", "wav"). Defaults to mp3.
	Format string `json:"format" validate:"omitempty,oneof=mp3 aac wav"`
	// Quality is the encoder bitrate ("128k", "192k").
	Quality string `json:"quality,omitempty"`
	// Normalize applies loudness normalization.
	Normalize bool `json:"normalize"`
	// FadeTransitions applies default edge fades when segments carry none.
	FadeTransitions bool `json:"fadeTransitions"`
	// RemoveArtifacts enables loudness cleanup; folded into normalization.
	RemoveArtifacts bool `json:"removeArtifacts"`
	// AddMetadata tags the output with request metadata.
	AddMetadata bool `json:"addMetadata,omitempty"`
}

// CreateAssemblyRequest is the HTTP request body for POST /assembly.
type CreateAssemblyRequest struct {
	// Segments are the ordered audio inputs.
	Segments []AssemblySegment `json:"segments" validate:"required,min=1,dive"`
	// Options control the output encoding.
	Options AssemblyOptions `json:"options"`
}

// CreateAssemblyResponse is the HTTP response for POST /assembly.
type CreateAssemblyResponse struct {
	// RequestID identifies the created assembly job.
	RequestID string `json:"requestId"`
	// Status is the job status at response time.
	Status string `json:"status"`
	// AudioURL is the output URL, present once uploaded.
	AudioURL string `json:"audioUrl,omitempty"`
	// Duration is the output duration in seconds, present once measured.
	Duration float64 `json:"duration,omitempty"`
	// FileSize is the output size in bytes, present once measured.
	FileSize int64 `json:"fileSize,omitempty"`
	// ProcessingTime is the elapsed handler time in milliseconds.
	ProcessingTime int64 `json:"processingTime"`
}

// AssemblyStatusResponse is the HTTP response for GET /assembly/{id}/status.
type AssemblyStatusResponse struct {
	// RequestID identifies the assembly job.
	RequestID string `json:"requestId"`
	// Status is the current job state.
	Status string `json:"status"`
	// Progress is the percentage of completion (0-100).
	Progress int `json:"progress"`
	// CurrentStep describes the active processing step.
	CurrentStep string `json:"currentStep"`
	// EstimatedTimeRemaining is the projected seconds to completion.
	EstimatedTimeRemaining int `json:"estimatedTimeRemaining,omitempty"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
}

// VoiceRequest carries voice preferences for a meditation request.
type VoiceRequest struct {
	// Gender selects the narration voice ("female", "male").
	Gender string `json:"gender" validate:"omitempty,oneof=female male"`
	// Style selects the delivery style ("calm", "warm", "energetic").
	Style string `json:"style" validate:"omitempty,oneof=calm warm energetic"`
}

// CreateMeditationRequest is the HTTP request body for POST /meditations.
// The prompt is free text; goal, duration, and guidance are inferred from it.
type CreateMeditationRequest struct {
	// Prompt is the free-text meditation request.
	Prompt string `json:"prompt" validate:"required,min=3"`
	// Voice carries narration preferences.
	Voice VoiceRequest `json:"voice"`
	// Language is the narration language code, defaults to "en". It scopes
	// cache reuse: entries never cross languages.
	Language string `json:"language,omitempty"`
}

// CreateMeditationResponse is the HTTP response for POST /meditations.
type CreateMeditationResponse struct {
	// Success reports whether every segment was produced.
	Success bool `json:"success"`
	// RequestID identifies the pipeline run.
	RequestID string `json:"requestId"`
	// JobID identifies the assembly job rendering the final audio.
	JobID string `json:"jobId,omitempty"`
	// Errors lists segment-scoped degradations (fallbacks used, cache misses
	// caused by outages). Partial degradation does not clear Success.
	Errors []string `json:"errors"`
	// Quality is the observability score on a 0-5 scale.
	Quality float64 `json:"quality"`
	// Summary is a human-readable pipeline report.
	Summary string `json:"summary,omitempty"`
}

// SystemResources reports process-level resource usage for health checks.
type SystemResources struct {
	// Goroutines is the current goroutine count.
	Goroutines int `json:"goroutines"`
	// MemoryAllocBytes is the currently allocated heap memory.
	MemoryAllocBytes uint64 `json:"memoryAllocBytes"`
	// NumCPU is the number of usable CPUs.
	NumCPU int `json:"numCpu"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// Version is the running build version.
	Version string `json:"version"`
	// Uptime is the process uptime in seconds.
	Uptime int64 `json:"uptime"`
	// ActiveJobs is the number of assembly jobs in flight.
	ActiveJobs int `json:"activeJobs"`
	// QueueSize is the number of assembly jobs waiting to start.
	QueueSize int `json:"queueSize"`
	// SystemResources reports process resource usage.
	SystemResources SystemResources `json:"systemResources"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}
