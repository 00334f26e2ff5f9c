package meditation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/NeijiApp/meditation-engine/internal/cache"
	"github.com/NeijiApp/meditation-engine/internal/monitor"
	"github.com/NeijiApp/meditation-engine/internal/textgen"
	"github.com/NeijiApp/meditation-engine/internal/tts"
)

// Decision cost and timing constants. Exact reuse is free; similar reuse pays
// a small adjustment cost proportional to how far the match is from perfect.
const (
	similarTopK        = 5
	exactConfidence    = 0.95
	unitAdjustmentCost = 0.1
	exactTimeMs        = 50
	similarTimeMs      = 500
	createCostUnits    = 1.0
	createTimeMs       = 3000
)

// DecisionThresholds are the similarity cut-offs for the reuse policy.
// Invariant: Exact >= High >= Medium.
type DecisionThresholds struct {
	// Medium is the floor below which candidates are not considered at all.
	Medium float64
	// High is the score at or above which a candidate is served as reuse_similar.
	High float64
	// Exact is the score reported for hash-identical matches.
	Exact float64
}

// DefaultThresholds is the canonical threshold set.
var DefaultThresholds = DecisionThresholds{Medium: 0.85, High: 0.90, Exact: 0.98}

// GenerationError marks a segment for which no audio could be produced.
// It aborts the whole request.
type GenerationError struct {
	SegmentID string
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("meditation: segment %s: no audio could be produced: %v", e.SegmentID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// AudioCache is the slice of the semantic cache the agent consumes.
// *cache.Cache satisfies it; tests substitute fakes.
type AudioCache interface {
	FindExact(ctx context.Context, textHash, voiceID, voiceStyle string) (*cache.Entry, error)
	FindSimilar(ctx context.Context, text, voiceID, voiceStyle, language string, threshold float64, limit int) ([]cache.Match, error)
	Save(ctx context.Context, p cache.SaveParams) (*cache.Entry, error)
	IncrementUsage(ctx context.Context, entryID string)
}

// AudioWriter persists freshly synthesized audio and returns its reference.
type AudioWriter interface {
	SaveAudio(ctx context.Context, name string, data io.Reader) (ref string, err error)
}

// Agent resolves planned segments to rendered audio, reusing cached clips
// whenever the reuse policy allows and paying generation cost only on a miss.
type Agent struct {
	cache      AudioCache
	textGen    textgen.Generator
	tts        tts.Synthesizer
	audio      AudioWriter
	thresholds DecisionThresholds

	wordsPerMinute float64
	maxConcurrent  int
	language       string
	logger         *slog.Logger
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithThresholds overrides the decision thresholds.
func WithThresholds(t DecisionThresholds) AgentOption {
	return func(a *Agent) { a.thresholds = t }
}

// WithMaxConcurrent bounds how many segments resolve in parallel.
func WithMaxConcurrent(n int) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.maxConcurrent = n
		}
	}
}

// WithWordsPerMinute sets the speaking rate used for speech time estimates.
func WithWordsPerMinute(wpm int) AgentOption {
	return func(a *Agent) {
		if wpm > 0 {
			a.wordsPerMinute = float64(wpm)
		}
	}
}

// WithAgentLogger sets the logger.
func WithAgentLogger(l *slog.Logger) AgentOption {
	return func(a *Agent) { a.logger = l }
}

// WithLanguage sets the default language scope for cache lookups, used when
// the specification does not carry one.
func WithLanguage(lang string) AgentOption {
	return func(a *Agent) {
		if lang != "" {
			a.language = lang
		}
	}
}

// NewAgent creates a segment orchestration agent.
func NewAgent(audioCache AudioCache, gen textgen.Generator, synth tts.Synthesizer, audio AudioWriter, opts ...AgentOption) *Agent {
	a := &Agent{
		cache:          audioCache,
		textGen:        gen,
		tts:            synth,
		audio:          audio,
		thresholds:     DefaultThresholds,
		wordsPerMinute: 130,
		maxConcurrent:  3,
		language:       "en",
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ResolveResult is the outcome of resolving a full segment plan.
type ResolveResult struct {
	// Segments are the rendered segments in plan order.
	Segments []RenderedSegment
	// Errors holds segment-scoped degradation messages (fallbacks used).
	Errors []string
	// Quality is the observability-only output quality score (0-5).
	Quality float64
}

// ResolveAll resolves every planned segment with bounded parallelism,
// preserving plan order in the result. Failures local to one segment never
// abort its siblings; only a segment with no audio at all fails the request.
func (a *Agent) ResolveAll(ctx context.Context, plans []SegmentPlan, spec Specification, rec *monitor.Recorder) (ResolveResult, error) {
	segments := make([]RenderedSegment, len(plans))
	warnings := make([][]string, len(plans))

	sem := make(chan struct{}, a.maxConcurrent)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var fatal error

	for i, plan := range plans {
		wg.Add(1)
		go func(i int, plan SegmentPlan) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			seg, warns, err := a.resolve(ctx, plan, spec, rec)
			mu.Lock()
			defer mu.Unlock()
			if err != nil && fatal == nil {
				fatal = err
			}
			segments[i] = seg
			warnings[i] = warns
		}(i, plan)
	}
	wg.Wait()

	if fatal != nil {
		return ResolveResult{}, fatal
	}

	result := ResolveResult{Segments: segments}
	reused := 0
	for i := range segments {
		result.Errors = append(result.Errors, warnings[i]...)
		if segments[i].Decision.Action != ActionCreateNew {
			reused++
		}
	}
	result.Quality = 3.5 + float64(reused)/float64(len(segments))*1.5

	rec.Record(monitor.Event{
		Component: "agent",
		Step:      "resolve_all",
		Status:    monitor.StatusCompleted,
	})
	return result, nil
}

// resolve renders one segment: generate text, consult the cache, and only
// synthesize fresh audio when no cached clip qualifies.
func (a *Agent) resolve(ctx context.Context, plan SegmentPlan, spec Specification, rec *monitor.Recorder) (RenderedSegment, []string, error) {
	var warnings []string

	text, warn := a.generateText(ctx, plan, spec, rec)
	if warn != "" {
		warnings = append(warnings, warn)
	}

	language := spec.Language
	if language == "" {
		language = a.language
	}

	seg := RenderedSegment{
		SegmentPlan:            plan,
		Text:                   text,
		EstimatedSpeechSeconds: a.estimateSpeechSeconds(text),
		SilenceAfterSeconds:    plan.SilenceSeconds,
	}
	if plan.Type == SegmentBreathing {
		seg.Breathing = breathingCueFor(spec.Constraints.BreathingStyle)
	}

	// Step 1: exact reuse by (textHash, voiceId, voiceStyle).
	textHash := cache.HashText(text)
	if entry, err := a.cache.FindExact(ctx, textHash, spec.Voice.Gender, spec.Voice.Style); err == nil {
		rec.CacheLookup("find_exact", true, 1)
		a.cache.IncrementUsage(ctx, entry.ID)

		seg.AudioRef = entry.AudioRef
		seg.AudioDurationMs = entry.DurationMs
		seg.Decision = Decision{
			Action:     ActionReuseExact,
			Confidence: exactConfidence,
			EntryID:    entry.ID,
			CostUnits:  0,
			TimeMs:     exactTimeMs,
		}
		return seg, warnings, nil
	}
	rec.CacheLookup("find_exact", false, 0)

	// Step 2: similar reuse above the high threshold.
	matches, err := a.cache.FindSimilar(ctx, text, spec.Voice.Gender, spec.Voice.Style, language, a.thresholds.Medium, similarTopK)
	if err != nil {
		a.logger.Warn("similarity lookup failed",
			slog.String("segment_id", plan.ID),
			slog.String("error", err.Error()),
		)
	}
	if len(matches) > 0 && matches[0].Similarity >= a.thresholds.High {
		best := matches[0]
		rec.CacheLookup("find_similar", true, best.Similarity)
		a.cache.IncrementUsage(ctx, best.Entry.ID)

		seg.AudioRef = best.Entry.AudioRef
		seg.AudioDurationMs = best.Entry.DurationMs
		seg.Decision = Decision{
			Action:     ActionReuseSimilar,
			Confidence: best.Similarity,
			Similarity: best.Similarity,
			EntryID:    best.Entry.ID,
			CostUnits:  math.Min((1-best.Similarity)*unitAdjustmentCost, unitAdjustmentCost),
			TimeMs:     similarTimeMs,
		}
		return seg, warnings, nil
	}
	rec.CacheLookup("find_similar", false, 0)

	// Step 3: create new audio.
	audio, finalText, warn, err := a.synthesize(ctx, text, plan, spec, rec)
	if warn != "" {
		warnings = append(warnings, warn)
	}
	if err != nil {
		return seg, warnings, &GenerationError{SegmentID: plan.ID, Err: err}
	}
	if finalText != text {
		// Fallback narration replaced the generated script.
		seg.Text = finalText
		seg.EstimatedSpeechSeconds = a.estimateSpeechSeconds(finalText)
	}

	ref, err := a.audio.SaveAudio(ctx, plan.ID+".mp3", bytes.NewReader(audio))
	if err != nil {
		return seg, warnings, &GenerationError{SegmentID: plan.ID, Err: fmt.Errorf("persist audio: %w", err)}
	}

	entry, err := a.cache.Save(ctx, cache.SaveParams{
		Text:        seg.Text,
		VoiceID:     spec.Voice.Gender,
		VoiceGender: spec.Voice.Gender,
		VoiceStyle:  spec.Voice.Style,
		Language:    language,
		AudioRef:    ref,
		SizeBytes:   int64(len(audio)),
	})
	entryID := ""
	if err != nil {
		a.logger.Warn("cache save failed",
			slog.String("segment_id", plan.ID),
			slog.String("error", err.Error()),
		)
	} else {
		entryID = entry.ID
	}

	seg.AudioRef = ref
	seg.Decision = Decision{
		Action:     ActionCreateNew,
		Confidence: 1,
		EntryID:    entryID,
		CostUnits:  createCostUnits,
		TimeMs:     createTimeMs,
	}
	return seg, warnings, nil
}

// generateText asks the text provider for the segment script, substituting
// the deterministic fallback template on failure.
func (a *Agent) generateText(ctx context.Context, plan SegmentPlan, spec Specification, rec *monitor.Recorder) (text, warning string) {
	systemPrompt := "You are a meditation guide. Write spoken narration: simple, slow, second person, no headings or stage directions."
	userPrompt := fmt.Sprintf(
		"Write the %s segment of a %d-minute %s meditation for a %s practitioner. %s.",
		plan.Type, spec.DurationMinutes, spec.Goal, spec.Guidance, plan.Purpose,
	)

	start := time.Now()
	text, err := a.textGen.Generate(ctx, systemPrompt, userPrompt, plan.TargetWords)
	if err != nil {
		a.logger.Warn("text generation failed, using fallback template",
			slog.String("segment_id", plan.ID),
			slog.String("error", err.Error()),
		)
		return FallbackText(plan.Type, spec.Goal),
			fmt.Sprintf("segment %s: text generation failed, fallback template used", plan.ID)
	}

	rec.AICall("generate_text", time.Since(start).Milliseconds(), 0.01, len(strings.Fields(text)))
	return text, ""
}

// synthesize renders text to audio, retrying once with the fallback template
// before giving up. Returns the audio, the text actually spoken, and an
// optional degradation warning.
func (a *Agent) synthesize(ctx context.Context, text string, plan SegmentPlan, spec Specification, rec *monitor.Recorder) ([]byte, string, string, error) {
	req := tts.Request{Text: text, VoiceID: spec.Voice.Gender, Style: spec.Voice.Style}

	start := time.Now()
	audio, err := a.tts.Synthesize(ctx, req)
	if err == nil {
		rec.TTSCall("synthesize", time.Since(start).Milliseconds(), createCostUnits)
		return audio, text, "", nil
	}

	a.logger.Warn("tts failed, retrying with fallback template",
		slog.String("segment_id", plan.ID),
		slog.String("error", err.Error()),
	)

	fallback := FallbackText(plan.Type, spec.Goal)
	req.Text = fallback
	audio, retryErr := a.tts.Synthesize(ctx, req)
	if retryErr != nil {
		return nil, text, "", fmt.Errorf("tts failed for generated and fallback text: %w", retryErr)
	}

	rec.TTSCall("synthesize_fallback", time.Since(start).Milliseconds(), createCostUnits)
	return audio, fallback, fmt.Sprintf("segment %s: tts failed for generated text, fallback spoken", plan.ID), nil
}

// estimateSpeechSeconds converts a script's word count to seconds at the
// agent's speaking rate.
func (a *Agent) estimateSpeechSeconds(text string) float64 {
	return float64(len(strings.Fields(text))) / a.wordsPerMinute * 60
}

// breathingCueFor maps a breathing style to phase timings.
func breathingCueFor(style string) *BreathingCue {
	switch style {
	case "box":
		return &BreathingCue{InhaleSeconds: 4, HoldSeconds: 4, ExhaleSeconds: 4, PauseSeconds: 4}
	case "478":
		return &BreathingCue{InhaleSeconds: 4, HoldSeconds: 7, ExhaleSeconds: 8}
	default:
		return &BreathingCue{InhaleSeconds: 4, HoldSeconds: 2, ExhaleSeconds: 6, PauseSeconds: 1}
	}
}
