// Package assembly provides the Job aggregate and service for rendering an
// ordered list of narration/silence segments into one audio file. Jobs move
// through an explicit state machine and are processed asynchronously.
package assembly

import (
	"errors"
	"sync"
	"time"
)

// Status represents the current state of an assembly job.
type Status string

// Job states in processing order. failed is reachable from every
// non-terminal state.
const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusAssembling  Status = "assembling"
	StatusOptimizing  Status = "optimizing"
	StatusUploading   Status = "uploading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusPending:     {StatusDownloading, StatusFailed},
	StatusDownloading: {StatusProcessing, StatusFailed},
	StatusProcessing:  {StatusAssembling, StatusFailed},
	StatusAssembling:  {StatusOptimizing, StatusFailed},
	StatusOptimizing:  {StatusUploading, StatusFailed},
	StatusUploading:   {StatusCompleted, StatusFailed},
	StatusCompleted:   {},
	StatusFailed:      {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// progressByStatus maps each state to its nominal completion percentage.
var progressByStatus = map[Status]int{
	StatusPending:     0,
	StatusDownloading: 15,
	StatusProcessing:  35,
	StatusAssembling:  60,
	StatusOptimizing:  80,
	StatusUploading:   90,
	StatusCompleted:   100,
}

// SegmentInput is one ordered audio input to a job.
type SegmentInput struct {
	// ID identifies the segment within the request.
	ID string
	// AudioRef is where to fetch the clip (URL or local path).
	AudioRef string
	// DurationSeconds is the clip's duration.
	DurationSeconds float64
	// SilenceAfterSeconds is trailing silence to insert after the clip.
	SilenceAfterSeconds float64
	// Volume scales the clip; 0 means unscaled.
	Volume float64
	// FadeInMs is the fade-in length; honored on the first segment.
	FadeInMs int
	// FadeOutMs is the fade-out length; honored on the last segment.
	FadeOutMs int
}

// OutputOptions controls the job's encoded result.
type OutputOptions struct {
	// Format is the output container ("mp3", "aac", "wav").
	Format string
	// Bitrate is the encoder bitrate ("128k").
	Bitrate string
	// Normalize applies loudness normalization.
	Normalize bool
	// FadeTransitions applies default fades on the outer edges when the
	// segments carry none.
	FadeTransitions bool
	// AddMetadata tags the output with request metadata.
	AddMetadata bool
}

// Job represents one assembly job aggregate. It is mutated only by the
// assembly service.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Segments are the ordered inputs.
	Segments []SegmentInput
	// Options control the encoded output.
	Options OutputOptions
	// Status is the current job state.
	Status Status
	// Progress is the percentage of completion (0-100).
	Progress int
	// CurrentStep is a human-readable description of the active step.
	CurrentStep string
	// Error contains any error message if the job failed.
	Error string
	// Cancelled marks a best-effort cancellation request.
	Cancelled bool
	// OutputPath is the local path of the assembled file.
	OutputPath string
	// OutputURL is the uploaded URL, when persistent storage is configured.
	OutputURL string
	// OutputDurationSeconds is the measured duration of the result.
	OutputDurationSeconds float64
	// FileSizeBytes is the size of the result.
	FileSizeBytes int64
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// NewJob creates a Job in pending state with a generated ID.
func NewJob(segments []SegmentInput, options OutputOptions) *Job {
	now := time.Now()
	return &Job{
		ID:        generateID(),
		Segments:  segments,
		Options:   options,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.Progress = progressByStatus[status]
	j.UpdatedAt = time.Now()

	switch status {
	case StatusDownloading:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Fail transitions the job to failed with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	j.Error = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// RequestCancel marks the job for best-effort cancellation. In-flight work
// runs to completion but its output is discarded.
func (j *Job) RequestCancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Cancelled = true
	j.UpdatedAt = time.Now()
}

// IsCancelled reports whether cancellation was requested.
func (j *Job) IsCancelled() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Cancelled
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// SetStep updates the human-readable step description.
func (j *Job) SetStep(step string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.CurrentStep = step
	j.UpdatedAt = time.Now()
}

// SetOutput records the assembled result.
func (j *Job) SetOutput(path, url string, durationSeconds float64, sizeBytes int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputPath = path
	j.OutputURL = url
	j.OutputDurationSeconds = durationSeconds
	j.FileSizeBytes = sizeBytes
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// EstimatedRemainingSeconds extrapolates remaining time from elapsed time
// and progress. Returns 0 for terminal or not-yet-started jobs.
func (j *Job) EstimatedRemainingSeconds() int {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.Progress <= 0 || j.Progress >= 100 || j.StartedAt.IsZero() {
		return 0
	}
	elapsed := time.Since(j.StartedAt).Seconds()
	remaining := elapsed * float64(100-j.Progress) / float64(j.Progress)
	return int(remaining)
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	segments := make([]SegmentInput, len(j.Segments))
	copy(segments, j.Segments)

	return &Job{
		ID:                    j.ID,
		Segments:              segments,
		Options:               j.Options,
		Status:                j.Status,
		Progress:              j.Progress,
		CurrentStep:           j.CurrentStep,
		Error:                 j.Error,
		Cancelled:             j.Cancelled,
		OutputPath:            j.OutputPath,
		OutputURL:             j.OutputURL,
		OutputDurationSeconds: j.OutputDurationSeconds,
		FileSizeBytes:         j.FileSizeBytes,
		CreatedAt:             j.CreatedAt,
		UpdatedAt:             j.UpdatedAt,
		StartedAt:             j.StartedAt,
		CompletedAt:           j.CompletedAt,
	}
}
