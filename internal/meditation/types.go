// Package meditation turns a free-text meditation request into an ordered
// list of rendered narration segments. It contains the request parser, the
// timing planner and the segment orchestration agent.
package meditation

// Goal is the primary intent of a meditation session.
type Goal string

// Supported meditation goals.
const (
	GoalCalm    Goal = "calm"
	GoalFocus   Goal = "focus"
	GoalSleep   Goal = "sleep"
	GoalEnergy  Goal = "energy"
	GoalHealing Goal = "healing"
	GoalStress  Goal = "stress"
	GoalAnxiety Goal = "anxiety"
)

// IsValid returns true if the goal is one of the supported values.
func (g Goal) IsValid() bool {
	switch g {
	case GoalCalm, GoalFocus, GoalSleep, GoalEnergy, GoalHealing, GoalStress, GoalAnxiety:
		return true
	default:
		return false
	}
}

// GuidanceLevel describes how experienced the listener is.
type GuidanceLevel string

// Supported guidance levels.
const (
	GuidanceBeginner  GuidanceLevel = "beginner"
	GuidanceConfirmed GuidanceLevel = "confirmed"
	GuidanceExpert    GuidanceLevel = "expert"
)

// SegmentType classifies one narrated unit of a meditation.
type SegmentType string

// Segment types in their canonical session order.
const (
	SegmentIntro         SegmentType = "intro"
	SegmentSettling      SegmentType = "settling"
	SegmentBreathing     SegmentType = "breathing"
	SegmentBodyScan      SegmentType = "body_scan"
	SegmentVisualization SegmentType = "visualization"
	SegmentMindfulness   SegmentType = "mindfulness"
	SegmentIntegration   SegmentType = "integration"
	SegmentClosing       SegmentType = "closing"
)

// VoicePreferences holds the requested narrator voice characteristics.
type VoicePreferences struct {
	// Gender is the requested narrator gender ("female", "male").
	Gender string
	// Style is the requested delivery style ("calm", "warm", "energetic").
	Style string
}

// Constraints carries optional fine-tuning knobs for the planner.
type Constraints struct {
	// MaxSilenceRatio caps the fraction of the session spent in silence.
	// Zero means no cap beyond the planner's own clamp.
	MaxSilenceRatio float64
	// BreathingStyle selects the breathing pattern ("box", "478", "natural").
	BreathingStyle string
	// InstructionDensity tunes how talkative the narration is ("low", "medium", "high").
	InstructionDensity string
	// PacePreference tunes narration speed ("slow", "normal", "fast").
	PacePreference string
}

// Specification is the fully resolved meditation request.
// It is built once per request and immutable thereafter.
type Specification struct {
	// Intent is the original free-text request.
	Intent string
	// DurationMinutes is the inferred total session length.
	DurationMinutes int
	// Goal is the detected primary goal.
	Goal Goal
	// Guidance is the detected experience level.
	Guidance GuidanceLevel
	// Voice holds narrator preferences.
	Voice VoicePreferences
	// Language is the narration language code; empty means the agent default.
	Language string
	// Background names an optional background soundscape.
	Background string
	// Constraints carries optional planner knobs.
	Constraints Constraints
}

// DurationSeconds returns the total requested duration in seconds.
func (s Specification) DurationSeconds() float64 {
	return float64(s.DurationMinutes) * 60
}

// SegmentPlan is one planned narration unit with its time and word budget.
type SegmentPlan struct {
	// ID identifies the segment within the request (e.g. "seg-3-breathing").
	ID string
	// Type classifies the segment.
	Type SegmentType
	// Purpose is a one-line description used to steer text generation.
	Purpose string
	// SpeechSeconds is the time allocated to narration.
	SpeechSeconds float64
	// SilenceSeconds is the time allocated to the pause after narration.
	SilenceSeconds float64
	// TargetWords is the word budget derived from SpeechSeconds.
	TargetWords int
	// Priority ranks the segment 1 (droppable) to 5 (essential).
	Priority int
	// Flexibility is how much the segment's timing may be renegotiated (0-1).
	Flexibility float64
}

// BreathingCue holds per-phase timings for guided breathing segments.
type BreathingCue struct {
	InhaleSeconds float64
	HoldSeconds   float64
	ExhaleSeconds float64
	PauseSeconds  float64
}

// Action is the reuse decision taken for one segment.
type Action string

// Possible optimization actions, ordered from most to least reusing.
const (
	ActionReuseExact   Action = "reuse_exact"
	ActionReuseSimilar Action = "reuse_similar"
	ActionCreateNew    Action = "create_new"
)

// Decision records how a segment's audio was obtained.
// It is immutable once executed.
type Decision struct {
	// Action is the chosen strategy.
	Action Action
	// Confidence is the agent's confidence in the decision (0-1).
	Confidence float64
	// Similarity is the best cosine similarity found; only meaningful
	// for reuse_similar.
	Similarity float64
	// EntryID references the cache entry served, if any.
	EntryID string
	// CostUnits is the estimated generation cost of the decision.
	CostUnits float64
	// TimeMs is the estimated wall time of the decision.
	TimeMs int64
}

// RenderedSegment is a SegmentPlan resolved to concrete text and audio.
type RenderedSegment struct {
	SegmentPlan

	// Text is the narration script for this segment.
	Text string
	// EstimatedSpeechSeconds is computed from the word count and speaking rate.
	EstimatedSpeechSeconds float64
	// SilenceAfterSeconds is the trailing pause to insert during assembly.
	SilenceAfterSeconds float64
	// Breathing holds cue timings for breathing segments, nil otherwise.
	Breathing *BreathingCue
	// AudioRef is the resolved audio location (URL or local path).
	AudioRef string
	// AudioDurationMs is the measured clip duration when known, 0 otherwise.
	AudioDurationMs int64
	// Decision records how the audio was obtained.
	Decision Decision
}
