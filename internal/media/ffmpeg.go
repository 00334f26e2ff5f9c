// Package media wraps the external ffmpeg engine behind a single synchronous
// call. An assembly is expressed as one filter graph (pad, concat, normalize,
// fade) applied in a single pass; failures carry ffmpeg's stderr verbatim.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Static errors for media operations.
var (
	// ErrNoSegments is returned when no segments are provided for assembly.
	ErrNoSegments = errors.New("media: no segments provided")
	// ErrInvalidDuration is returned when a segment duration is not positive.
	ErrInvalidDuration = errors.New("media: segment duration must be positive")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("media: ffprobe execution failed")
)

// Segment is one ordered input to an assembly.
type Segment struct {
	// Path is the local audio file.
	Path string
	// DurationSeconds is the clip's known duration.
	DurationSeconds float64
	// SilenceAfterSeconds is trailing silence to pad after the clip.
	SilenceAfterSeconds float64
	// Volume scales the clip; 0 means unscaled (treated as 1.0).
	Volume float64
	// FadeInMs applies a fade-in; only honored on the first segment.
	FadeInMs int
	// FadeOutMs applies a fade-out; only honored on the last segment.
	FadeOutMs int
}

// OutputOptions controls the encoded result.
type OutputOptions struct {
	// Format is the container/codec ("mp3", "aac", "wav").
	Format string
	// Bitrate is the audio bitrate ("128k", "192k").
	Bitrate string
	// Normalize applies loudness normalization to the concatenated stream.
	Normalize bool
}

// Engine drives ffmpeg for audio assembly.
type Engine struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
}

// NewEngine creates a new Engine.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewEngine(ffmpegPath string) *Engine {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Engine{ffmpegPath: ffmpegPath}
}

// Assemble renders the ordered segments into one audio file.
// A single segment with no padding, fades or normalization bypasses the
// filter graph entirely and is stream-copied to avoid re-encoding.
func (e *Engine) Assemble(ctx context.Context, segments []Segment, opts OutputOptions, outputPath string) error {
	if len(segments) == 0 {
		return ErrNoSegments
	}
	for i, seg := range segments {
		if seg.DurationSeconds <= 0 {
			return fmt.Errorf("%w: segment %d has duration %.2f", ErrInvalidDuration, i, seg.DurationSeconds)
		}
	}

	if passthrough(segments, opts) {
		args := []string{
			"-y",
			"-i", segments[0].Path,
			"-c", "copy",
			outputPath,
		}
		return e.runFFmpeg(ctx, args)
	}

	args := []string{"-y"}
	for _, seg := range segments {
		args = append(args, "-i", seg.Path)
	}
	args = append(args,
		"-filter_complex", BuildFilterGraph(segments, opts),
		"-map", "[out]",
	)
	args = append(args, encoderArgs(opts)...)
	args = append(args, outputPath)

	return e.runFFmpeg(ctx, args)
}

// passthrough reports whether the assembly can skip the filter graph.
func passthrough(segments []Segment, opts OutputOptions) bool {
	if len(segments) != 1 || opts.Normalize {
		return false
	}
	s := segments[0]
	return s.SilenceAfterSeconds <= 0 && s.FadeInMs <= 0 && s.FadeOutMs <= 0 &&
		(s.Volume == 0 || s.Volume == 1)
}

// BuildFilterGraph constructs the filter_complex expression for an assembly:
// per-segment volume and trailing-silence padding, concatenation, optional
// loudness normalization, and fades on the outer edges of the final stream.
func BuildFilterGraph(segments []Segment, opts OutputOptions) string {
	var chains []string
	var labels []string

	for i, seg := range segments {
		var filters []string
		if seg.Volume > 0 && seg.Volume != 1 {
			filters = append(filters, fmt.Sprintf("volume=%.2f", seg.Volume))
		}
		if seg.SilenceAfterSeconds > 0 {
			filters = append(filters, fmt.Sprintf("apad=pad_dur=%.3f", seg.SilenceAfterSeconds))
		}
		if len(filters) == 0 {
			filters = append(filters, "anull")
		}

		label := fmt.Sprintf("[s%d]", i)
		chains = append(chains, fmt.Sprintf("[%d:a]%s%s", i, strings.Join(filters, ","), label))
		labels = append(labels, label)
	}

	current := "[cat]"
	chains = append(chains, fmt.Sprintf("%sconcat=n=%d:v=0:a=1%s", strings.Join(labels, ""), len(segments), current))

	if opts.Normalize {
		next := "[norm]"
		chains = append(chains, fmt.Sprintf("%sloudnorm=I=-16:TP=-1.5:LRA=11%s", current, next))
		current = next
	}

	var fades []string
	if in := segments[0].FadeInMs; in > 0 {
		fades = append(fades, fmt.Sprintf("afade=t=in:st=0:d=%.3f", float64(in)/1000))
	}
	if out := segments[len(segments)-1].FadeOutMs; out > 0 {
		total := totalDuration(segments)
		d := float64(out) / 1000
		start := total - d
		if start < 0 {
			start = 0
		}
		fades = append(fades, fmt.Sprintf("afade=t=out:st=%.3f:d=%.3f", start, d))
	}

	if len(fades) > 0 {
		chains = append(chains, fmt.Sprintf("%s%s[out]", current, strings.Join(fades, ",")))
	} else {
		chains = append(chains, fmt.Sprintf("%sanull[out]", current))
	}

	return strings.Join(chains, ";")
}

// totalDuration sums clip durations and trailing silences.
func totalDuration(segments []Segment) float64 {
	var total float64
	for _, seg := range segments {
		total += seg.DurationSeconds + seg.SilenceAfterSeconds
	}
	return total
}

// encoderArgs maps output options to ffmpeg encoder flags.
func encoderArgs(opts OutputOptions) []string {
	bitrate := opts.Bitrate
	if bitrate == "" {
		bitrate = "128k"
	}

	switch strings.ToLower(opts.Format) {
	case "wav":
		return []string{"-c:a", "pcm_s16le"}
	case "aac":
		return []string{"-c:a", "aac", "-b:a", bitrate}
	default: // mp3
		return []string{"-c:a", "libmp3lame", "-b:a", bitrate}
	}
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (e *Engine) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// Duration returns the duration in seconds of a media file.
// It uses ffprobe to extract the duration metadata.
func (e *Engine) Duration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - path is provided by trusted internal code
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var duration float64
	_, err = fmt.Sscanf(strings.TrimSpace(stdout.String()), "%f", &duration)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}

	return duration, nil
}
