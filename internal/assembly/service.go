package assembly

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/NeijiApp/meditation-engine/internal/media"
	"github.com/NeijiApp/meditation-engine/internal/storage"
)

// Static errors for assembly submissions.
var (
	// ErrNoSegments is returned when a submission carries no segments.
	ErrNoSegments = errors.New("assembly: at least one segment is required")
	// ErrInvalidSegment is returned when a segment fails validation.
	ErrInvalidSegment = errors.New("assembly: invalid segment")
	// ErrJobNotCompleted is returned when the output of an unfinished job is requested.
	ErrJobNotCompleted = errors.New("assembly: job is not completed")
	// ErrCancelled marks a job that was cancelled by the caller.
	ErrCancelled = errors.New("assembly: cancelled by caller")
)

// Default fade lengths applied when FadeTransitions is set and the
// segments carry no explicit fades.
const (
	defaultFadeInMs  = 2000
	defaultFadeOutMs = 3000
)

// Service orchestrates the assembly workflow: download inputs, run the
// media engine, measure the result, and upload it.
// Each job runs on its own goroutine; progress is persisted to the
// repository after every state change so status polls see fresh data.
type Service struct {
	repo       Repository
	engine     *media.Engine
	store      storage.Storage
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration

	mu     sync.Mutex
	active map[string]*Job
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHTTPClient sets the client used to download remote segment audio.
func WithHTTPClient(client *http.Client) ServiceOption {
	return func(s *Service) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithTimeout bounds the end-to-end processing time of one job.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates an assembly Service.
func NewService(repo Repository, engine *media.Engine, store storage.Storage, opts ...ServiceOption) *Service {
	s := &Service{
		repo:       repo,
		engine:     engine,
		store:      store,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     slog.Default(),
		timeout:    5 * time.Minute,
		active:     make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the request, persists a pending job, and starts
// processing in the background. Validation failures never create a job.
func (s *Service) Submit(ctx context.Context, segments []SegmentInput, options OutputOptions) (*Job, error) {
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	for i, seg := range segments {
		if seg.AudioRef == "" {
			return nil, fmt.Errorf("%w: segment %d has no audio reference", ErrInvalidSegment, i)
		}
		if seg.DurationSeconds <= 0 {
			return nil, fmt.Errorf("%w: segment %d has non-positive duration", ErrInvalidSegment, i)
		}
		if seg.SilenceAfterSeconds < 0 {
			return nil, fmt.Errorf("%w: segment %d has negative silence", ErrInvalidSegment, i)
		}
	}

	job := NewJob(segments, options)
	if err := s.repo.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}

	s.mu.Lock()
	s.active[job.ID] = job
	s.mu.Unlock()

	s.logger.Info("assembly job submitted",
		slog.String("job_id", job.ID),
		slog.Int("segments", len(segments)),
		slog.String("format", options.Format),
	)

	go s.process(job)

	return job.Clone(), nil
}

// GetJob retrieves a job snapshot by ID.
func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// Cancel requests a best-effort cancellation. In-flight engine work runs
// to completion but its output is discarded. Cancelling a terminal job
// is a no-op.
func (s *Service) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	job, ok := s.active[id]
	s.mu.Unlock()

	if !ok {
		// Not in flight: verify it exists, terminal jobs stay as they are.
		_, err := s.repo.FindByID(ctx, id)
		return err
	}

	job.RequestCancel()
	s.logger.Info("assembly job cancellation requested", slog.String("job_id", id))
	return nil
}

// Download returns a reader over the assembled file of a completed job.
// The caller must close the reader.
func (s *Service) Download(ctx context.Context, id string) (io.ReadCloser, *Job, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != StatusCompleted {
		return nil, nil, ErrJobNotCompleted
	}
	rc, err := s.store.LoadTemp(ctx, job.OutputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open output: %w", err)
	}
	return rc, job, nil
}

// ActiveJobs returns the number of jobs currently in flight.
func (s *Service) ActiveJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// QueueSize returns the number of stored jobs still waiting to start.
func (s *Service) QueueSize() int {
	n, err := s.repo.CountByStatus(context.Background(), StatusPending)
	if err != nil {
		s.logger.Warn("failed to count pending jobs", slog.String("error", err.Error()))
		return 0
	}
	return n
}

// process runs the full state walk for one job. Every transition is
// persisted; a cancellation check runs before each step.
func (s *Service) process(job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	defer func() {
		s.mu.Lock()
		delete(s.active, job.ID)
		s.mu.Unlock()
	}()

	var tempFiles []string
	defer func() {
		if err := s.store.CleanupTemp(context.Background(), tempFiles); err != nil {
			s.logger.Warn("temp cleanup failed",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}()

	fail := func(err error) {
		s.logger.Error("assembly job failed",
			slog.String("job_id", job.ID),
			slog.String("status", string(job.GetStatus())),
			slog.String("error", err.Error()),
		)
		if ferr := job.Fail(err.Error()); ferr != nil {
			s.logger.Error("failed to mark job failed", slog.String("job_id", job.ID))
		}
		s.persist(job)
	}

	advance := func(status Status, step string) bool {
		if job.IsCancelled() {
			fail(ErrCancelled)
			return false
		}
		if err := job.TransitionTo(status); err != nil {
			fail(fmt.Errorf("transition to %s: %w", status, err))
			return false
		}
		job.SetStep(step)
		s.persist(job)
		return true
	}

	// Download every segment's audio to local disk.
	if !advance(StatusDownloading, "downloading segment audio") {
		return
	}
	localPaths := make([]string, len(job.Segments))
	for i, seg := range job.Segments {
		path, owned, err := s.fetchInput(ctx, job.ID, i, seg.AudioRef)
		if err != nil {
			fail(fmt.Errorf("download segment %s: %w", seg.ID, err))
			return
		}
		if owned {
			tempFiles = append(tempFiles, path)
		}
		localPaths[i] = path
	}

	// Map the validated segments onto the media engine's input shape.
	if !advance(StatusProcessing, "preparing segment inputs") {
		return
	}
	inputs := make([]media.Segment, len(job.Segments))
	for i, seg := range job.Segments {
		inputs[i] = media.Segment{
			Path:                localPaths[i],
			DurationSeconds:     seg.DurationSeconds,
			SilenceAfterSeconds: seg.SilenceAfterSeconds,
			Volume:              seg.Volume,
			FadeInMs:            seg.FadeInMs,
			FadeOutMs:           seg.FadeOutMs,
		}
	}
	applyDefaultFades(inputs, job.Options)

	// Render the filter graph into one file.
	if !advance(StatusAssembling, "assembling audio") {
		return
	}
	outputPath, err := s.allocateOutput(ctx, job)
	if err != nil {
		fail(fmt.Errorf("allocate output: %w", err))
		return
	}
	mediaOpts := media.OutputOptions{
		Format:    job.Options.Format,
		Bitrate:   job.Options.Bitrate,
		Normalize: job.Options.Normalize,
	}
	if err := s.engine.Assemble(ctx, inputs, mediaOpts, outputPath); err != nil {
		tempFiles = append(tempFiles, outputPath)
		fail(fmt.Errorf("assemble: %w", err))
		return
	}

	// Measure the result.
	if !advance(StatusOptimizing, "measuring output") {
		return
	}
	outDuration, err := s.engine.Duration(ctx, outputPath)
	if err != nil {
		tempFiles = append(tempFiles, outputPath)
		fail(fmt.Errorf("probe output: %w", err))
		return
	}
	info, err := os.Stat(outputPath)
	if err != nil {
		tempFiles = append(tempFiles, outputPath)
		fail(fmt.Errorf("stat output: %w", err))
		return
	}

	// Upload when persistent storage is configured.
	if !advance(StatusUploading, "uploading output") {
		tempFiles = append(tempFiles, outputPath)
		return
	}
	outputURL := ""
	f, err := s.store.LoadTemp(ctx, outputPath)
	if err != nil {
		tempFiles = append(tempFiles, outputPath)
		fail(fmt.Errorf("open output for upload: %w", err))
		return
	}
	url, err := s.store.Upload(ctx, uploadKey(job), f)
	_ = f.Close()
	switch {
	case err == nil:
		outputURL = url
	case errors.Is(err, storage.ErrS3NotConfigured):
		// Local-only deployment: the output path is the reference.
	default:
		tempFiles = append(tempFiles, outputPath)
		fail(fmt.Errorf("upload output: %w", err))
		return
	}

	job.SetOutput(outputPath, outputURL, outDuration, info.Size())
	if job.IsCancelled() {
		tempFiles = append(tempFiles, outputPath)
		fail(ErrCancelled)
		return
	}
	if err := job.TransitionTo(StatusCompleted); err != nil {
		fail(fmt.Errorf("transition to completed: %w", err))
		return
	}
	job.SetStep("completed")
	s.persist(job)

	s.logger.Info("assembly job completed",
		slog.String("job_id", job.ID),
		slog.Float64("duration_seconds", outDuration),
		slog.Int64("size_bytes", info.Size()),
		slog.Bool("uploaded", outputURL != ""),
	)
}

// persist saves the current job snapshot, logging instead of failing:
// repository errors must not abort an in-flight assembly.
func (s *Service) persist(job *Job) {
	if err := s.repo.Save(context.Background(), job); err != nil {
		s.logger.Warn("failed to persist job state",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

// fetchInput resolves a segment audio reference to a local path.
// Remote references are downloaded to temp storage; local paths are used
// in place. The second return value reports whether the service owns
// the file and must clean it up.
func (s *Service) fetchInput(ctx context.Context, jobID string, index int, ref string) (string, bool, error) {
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		if _, err := os.Stat(ref); err != nil {
			return "", false, fmt.Errorf("local audio %s: %w", ref, err)
		}
		return ref, false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("fetch audio: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("fetch audio: unexpected status %d", resp.StatusCode)
	}

	path, err := s.store.SaveTemp(ctx, fmt.Sprintf("%s_in%d", jobID, index), resp.Body)
	if err != nil {
		return "", false, fmt.Errorf("save audio: %w", err)
	}
	return path, true, nil
}

// allocateOutput reserves an output file carrying the right extension so
// ffmpeg can infer the container.
func (s *Service) allocateOutput(ctx context.Context, job *Job) (string, error) {
	placeholder, err := s.store.SaveTemp(ctx, job.ID+"_out", bytes.NewReader(nil))
	if err != nil {
		return "", err
	}
	target := placeholder + "." + outputExt(job.Options.Format)
	if err := os.Rename(placeholder, target); err != nil {
		return "", fmt.Errorf("rename output: %w", err)
	}
	return target, nil
}

// applyDefaultFades adds outer-edge fades when requested and the caller
// supplied none of their own.
func applyDefaultFades(inputs []media.Segment, options OutputOptions) {
	if !options.FadeTransitions || len(inputs) == 0 {
		return
	}
	for _, in := range inputs {
		if in.FadeInMs > 0 || in.FadeOutMs > 0 {
			return
		}
	}
	inputs[0].FadeInMs = defaultFadeInMs
	inputs[len(inputs)-1].FadeOutMs = defaultFadeOutMs
}

// uploadKey returns the persistent storage key for a job's output.
func uploadKey(job *Job) string {
	return fmt.Sprintf("meditations/%s.%s", job.ID, outputExt(job.Options.Format))
}

// outputExt maps an output format to its file extension.
func outputExt(format string) string {
	switch strings.ToLower(format) {
	case "wav":
		return "wav"
	case "aac":
		return "m4a"
	default:
		return "mp3"
	}
}
