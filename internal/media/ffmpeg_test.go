package media

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestAssemble_Validation(t *testing.T) {
	e := NewEngine("")
	ctx := context.Background()

	err := e.Assemble(ctx, nil, OutputOptions{}, "/tmp/out.mp3")
	if !errors.Is(err, ErrNoSegments) {
		t.Errorf("empty segments error = %v, want ErrNoSegments", err)
	}

	err = e.Assemble(ctx, []Segment{{Path: "a.mp3", DurationSeconds: 0}}, OutputOptions{}, "/tmp/out.mp3")
	if !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("zero duration error = %v, want ErrInvalidDuration", err)
	}

	err = e.Assemble(ctx, []Segment{{Path: "a.mp3", DurationSeconds: -3}}, OutputOptions{}, "/tmp/out.mp3")
	if !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("negative duration error = %v, want ErrInvalidDuration", err)
	}
}

// A single clean segment skips the filter graph entirely (stream copy).
func TestPassthrough(t *testing.T) {
	tests := []struct {
		name     string
		segments []Segment
		opts     OutputOptions
		want     bool
	}{
		{"single clean segment", []Segment{{DurationSeconds: 30}}, OutputOptions{}, true},
		{"unit volume", []Segment{{DurationSeconds: 30, Volume: 1}}, OutputOptions{}, true},
		{"two segments", []Segment{{DurationSeconds: 10}, {DurationSeconds: 20}}, OutputOptions{}, false},
		{"trailing silence", []Segment{{DurationSeconds: 30, SilenceAfterSeconds: 2}}, OutputOptions{}, false},
		{"fade in", []Segment{{DurationSeconds: 30, FadeInMs: 500}}, OutputOptions{}, false},
		{"fade out", []Segment{{DurationSeconds: 30, FadeOutMs: 500}}, OutputOptions{}, false},
		{"scaled volume", []Segment{{DurationSeconds: 30, Volume: 0.5}}, OutputOptions{}, false},
		{"normalize requested", []Segment{{DurationSeconds: 30}}, OutputOptions{Normalize: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := passthrough(tt.segments, tt.opts); got != tt.want {
				t.Errorf("passthrough() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildFilterGraph_PadAndConcat(t *testing.T) {
	segments := []Segment{
		{Path: "a.mp3", DurationSeconds: 10, SilenceAfterSeconds: 2},
		{Path: "b.mp3", DurationSeconds: 20, SilenceAfterSeconds: 3},
		{Path: "c.mp3", DurationSeconds: 10},
	}

	graph := BuildFilterGraph(segments, OutputOptions{})

	for _, want := range []string{
		"[0:a]apad=pad_dur=2.000[s0]",
		"[1:a]apad=pad_dur=3.000[s1]",
		"[2:a]anull[s2]",
		"[s0][s1][s2]concat=n=3:v=0:a=1[cat]",
		"[cat]anull[out]",
	} {
		if !strings.Contains(graph, want) {
			t.Errorf("graph missing %q:\n%s", want, graph)
		}
	}
	if strings.Contains(graph, "loudnorm") {
		t.Errorf("unexpected loudnorm in graph:\n%s", graph)
	}
}

func TestBuildFilterGraph_NormalizeAndFades(t *testing.T) {
	segments := []Segment{
		{Path: "a.mp3", DurationSeconds: 10, SilenceAfterSeconds: 2, FadeInMs: 2000},
		{Path: "b.mp3", DurationSeconds: 20, FadeOutMs: 3000},
	}

	graph := BuildFilterGraph(segments, OutputOptions{Normalize: true})

	for _, want := range []string{
		"[cat]loudnorm=I=-16:TP=-1.5:LRA=11[norm]",
		"afade=t=in:st=0:d=2.000",
		// Total runtime is 32s; the 3s fade-out starts at 29s.
		"afade=t=out:st=29.000:d=3.000",
		"[out]",
	} {
		if !strings.Contains(graph, want) {
			t.Errorf("graph missing %q:\n%s", want, graph)
		}
	}
}

func TestBuildFilterGraph_Volume(t *testing.T) {
	segments := []Segment{
		{Path: "a.mp3", DurationSeconds: 10, Volume: 0.5, SilenceAfterSeconds: 1},
		{Path: "b.mp3", DurationSeconds: 10, Volume: 1},
	}

	graph := BuildFilterGraph(segments, OutputOptions{})

	if !strings.Contains(graph, "[0:a]volume=0.50,apad=pad_dur=1.000[s0]") {
		t.Errorf("graph missing scaled first input:\n%s", graph)
	}
	// Unit volume is not re-encoded through a volume filter.
	if !strings.Contains(graph, "[1:a]anull[s1]") {
		t.Errorf("graph missing clean second input:\n%s", graph)
	}
}

// Output duration is the sum of clip durations and trailing silences.
func TestTotalDuration(t *testing.T) {
	tests := []struct {
		name     string
		segments []Segment
		want     float64
	}{
		{"single 30s", []Segment{{DurationSeconds: 30}}, 30},
		{
			"three segments with silences",
			[]Segment{
				{DurationSeconds: 10, SilenceAfterSeconds: 2},
				{DurationSeconds: 20, SilenceAfterSeconds: 3},
				{DurationSeconds: 10},
			},
			45,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := totalDuration(tt.segments); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("totalDuration() = %.3f, want %.3f", got, tt.want)
			}
		})
	}
}

func TestEncoderArgs(t *testing.T) {
	tests := []struct {
		name string
		opts OutputOptions
		want []string
	}{
		{"default mp3", OutputOptions{}, []string{"-c:a", "libmp3lame", "-b:a", "128k"}},
		{"mp3 with bitrate", OutputOptions{Format: "mp3", Bitrate: "192k"}, []string{"-c:a", "libmp3lame", "-b:a", "192k"}},
		{"aac", OutputOptions{Format: "aac"}, []string{"-c:a", "aac", "-b:a", "128k"}},
		{"wav ignores bitrate", OutputOptions{Format: "wav", Bitrate: "192k"}, []string{"-c:a", "pcm_s16le"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := encoderArgs(tt.opts)
			if len(got) != len(tt.want) {
				t.Fatalf("encoderArgs() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("encoderArgs() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestFFmpegError_Unwrap(t *testing.T) {
	inner := errors.New("exit status 1")
	err := &FFmpegError{Args: []string{"-i", "a.mp3"}, Stderr: "boom", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("expected FFmpegError to unwrap to the exec error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Error("expected stderr to surface in the error message")
	}
}
