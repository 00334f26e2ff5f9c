package meditation

import (
	"regexp"
	"strconv"
	"strings"
)

// Default inferred duration when the request gives no hint.
const defaultDurationMinutes = 10

// durationPattern matches explicit durations like "5 minutes", "20 min", "1 minute".
var durationPattern = regexp.MustCompile(`(\d+)\s*(?:minutes?|mins?|m\b)`)

// goalKeywords maps request vocabulary to goals. First match wins, scanned
// in the order of goalScanOrder so more specific goals beat generic ones.
var goalKeywords = map[Goal][]string{
	GoalSleep:   {"sleep", "insomnia", "bedtime", "fall asleep", "night"},
	GoalFocus:   {"focus", "concentrat", "productiv", "work", "study", "exam"},
	GoalAnxiety: {"anxiety", "anxious", "panic", "worried", "worry"},
	GoalStress:  {"stress", "overwhelm", "pressure", "tense", "tension"},
	GoalEnergy:  {"energy", "energize", "wake up", "morning boost", "revitalize"},
	GoalHealing: {"healing", "heal", "recovery", "grief", "pain"},
	GoalCalm:    {"calm", "relax", "peace", "quiet", "unwind", "soothe"},
}

// goalScanOrder fixes the precedence of goal detection.
var goalScanOrder = []Goal{
	GoalSleep, GoalFocus, GoalAnxiety, GoalStress, GoalEnergy, GoalHealing, GoalCalm,
}

// ParseRequest converts a free-text meditation request into a Specification.
// Unknown aspects fall back to sensible defaults (10 minutes, calm goal,
// confirmed guidance, female calm voice).
func ParseRequest(text string) Specification {
	lower := strings.ToLower(text)

	spec := Specification{
		Intent:          text,
		DurationMinutes: inferDuration(lower),
		Goal:            inferGoal(lower),
		Guidance:        inferGuidance(lower),
		Voice: VoicePreferences{
			Gender: "female",
			Style:  "calm",
		},
	}

	if strings.Contains(lower, "male voice") || strings.Contains(lower, "man's voice") {
		spec.Voice.Gender = "male"
	}
	switch {
	case strings.Contains(lower, "energetic"):
		spec.Voice.Style = "energetic"
	case strings.Contains(lower, "warm"):
		spec.Voice.Style = "warm"
	}

	if strings.Contains(lower, "slow") {
		spec.Constraints.PacePreference = "slow"
	}
	switch {
	case strings.Contains(lower, "box breathing"):
		spec.Constraints.BreathingStyle = "box"
	case strings.Contains(lower, "4-7-8"), strings.Contains(lower, "478"):
		spec.Constraints.BreathingStyle = "478"
	}

	return spec
}

// inferDuration extracts an explicit duration or infers one from qualifiers.
func inferDuration(lower string) int {
	if m := durationPattern.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}

	switch {
	case strings.Contains(lower, "quick"), strings.Contains(lower, "short"),
		strings.Contains(lower, "break"), strings.Contains(lower, "at work"):
		return 5
	case strings.Contains(lower, "long"), strings.Contains(lower, "deep"),
		strings.Contains(lower, "extended"):
		return 20
	default:
		return defaultDurationMinutes
	}
}

// inferGoal scans the request for goal vocabulary in precedence order.
func inferGoal(lower string) Goal {
	for _, goal := range goalScanOrder {
		for _, kw := range goalKeywords[goal] {
			if strings.Contains(lower, kw) {
				return goal
			}
		}
	}
	return GoalCalm
}

// inferGuidance detects the listener's experience level.
func inferGuidance(lower string) GuidanceLevel {
	switch {
	case strings.Contains(lower, "beginner"), strings.Contains(lower, "first time"),
		strings.Contains(lower, "never meditated"), strings.Contains(lower, "new to"):
		return GuidanceBeginner
	case strings.Contains(lower, "expert"), strings.Contains(lower, "advanced"),
		strings.Contains(lower, "experienced"):
		return GuidanceExpert
	default:
		return GuidanceConfirmed
	}
}
