package meditation

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidDuration is returned when a specification requests a non-positive duration.
var ErrInvalidDuration = errors.New("meditation: duration must be positive")

const (
	// minSegmentSeconds is the shortest useful segment. Requests shorter than
	// three of these collapse to the minimal intro/core/closing flow.
	minSegmentSeconds = 20.0

	minSilenceRatio = 0.1
	maxSilenceRatio = 0.8
)

// baseSilenceRatio is the per-goal starting point before duration adjustment.
// Sleep skews heavily toward silence; focus and energy stay narration-dense.
var baseSilenceRatio = map[Goal]float64{
	GoalSleep:   0.55,
	GoalCalm:    0.45,
	GoalHealing: 0.45,
	GoalStress:  0.40,
	GoalAnxiety: 0.40,
	GoalFocus:   0.30,
	GoalEnergy:  0.25,
}

// canonicalOrder fixes the session position of each segment type.
var canonicalOrder = map[SegmentType]int{
	SegmentIntro:         0,
	SegmentSettling:      1,
	SegmentBreathing:     2,
	SegmentBodyScan:      3,
	SegmentVisualization: 4,
	SegmentMindfulness:   5,
	SegmentIntegration:   6,
	SegmentClosing:       7,
}

// middlePreference ranks the non-intro, non-closing types by relevance to a goal.
var middlePreference = map[Goal][]SegmentType{
	GoalFocus:   {SegmentBreathing, SegmentMindfulness, SegmentSettling, SegmentBodyScan, SegmentVisualization, SegmentIntegration},
	GoalSleep:   {SegmentSettling, SegmentBodyScan, SegmentBreathing, SegmentVisualization, SegmentMindfulness, SegmentIntegration},
	GoalEnergy:  {SegmentBreathing, SegmentVisualization, SegmentMindfulness, SegmentSettling, SegmentBodyScan, SegmentIntegration},
	GoalAnxiety: {SegmentBreathing, SegmentSettling, SegmentBodyScan, SegmentMindfulness, SegmentVisualization, SegmentIntegration},
	GoalStress:  {SegmentBreathing, SegmentBodyScan, SegmentSettling, SegmentMindfulness, SegmentVisualization, SegmentIntegration},
}

// defaultMiddlePreference covers goals without a dedicated ordering.
var defaultMiddlePreference = []SegmentType{
	SegmentSettling, SegmentBreathing, SegmentBodyScan,
	SegmentVisualization, SegmentMindfulness, SegmentIntegration,
}

// coreTypeFor picks the single middle segment of a collapsed short session.
func coreTypeFor(goal Goal) SegmentType {
	switch goal {
	case GoalFocus, GoalEnergy, GoalAnxiety:
		return SegmentBreathing
	case GoalSleep:
		return SegmentBodyScan
	default:
		return SegmentMindfulness
	}
}

// Planner converts a Specification into an ordered segment plan whose
// speech and silence budgets sum to the requested duration.
type Planner struct {
	// wordsPerMinute is the base narration rate before per-spec adjustment.
	wordsPerMinute float64
}

// NewPlanner creates a Planner with the given base speaking rate.
// A non-positive rate falls back to 130 words per minute.
func NewPlanner(wordsPerMinute int) *Planner {
	if wordsPerMinute <= 0 {
		wordsPerMinute = 130
	}
	return &Planner{wordsPerMinute: float64(wordsPerMinute)}
}

// Plan computes the segment plan for a specification.
// It is a pure function of its input; the only failure mode is validation.
func (p *Planner) Plan(spec Specification) ([]SegmentPlan, error) {
	total := spec.DurationSeconds()
	if total <= 0 {
		return nil, fmt.Errorf("%w: got %d minutes", ErrInvalidDuration, spec.DurationMinutes)
	}

	ratio := p.silenceRatio(spec)
	speechTotal := total * (1 - ratio)
	silenceTotal := total * ratio

	types := p.segmentSequence(spec, total)
	return p.allocate(spec, types, speechTotal, silenceTotal), nil
}

// silenceRatio derives the silence fraction from goal and duration,
// clamped to [0.1, 0.8]. Longer sessions earn slightly more silence.
func (p *Planner) silenceRatio(spec Specification) float64 {
	ratio, ok := baseSilenceRatio[spec.Goal]
	if !ok {
		ratio = baseSilenceRatio[GoalCalm]
	}

	ratio += float64(spec.DurationMinutes-10) * 0.01

	if limit := spec.Constraints.MaxSilenceRatio; limit > 0 && ratio > limit {
		ratio = limit
	}

	return math.Min(math.Max(ratio, minSilenceRatio), maxSilenceRatio)
}

// segmentSequence chooses how many segments to plan and which types they are,
// in canonical session order.
func (p *Planner) segmentSequence(spec Specification, totalSeconds float64) []SegmentType {
	// Very short sessions collapse to the minimal three-part flow.
	if totalSeconds < 3*minSegmentSeconds {
		return []SegmentType{SegmentIntro, coreTypeFor(spec.Goal), SegmentClosing}
	}

	count := p.segmentCount(spec)

	pref, ok := middlePreference[spec.Goal]
	if !ok {
		pref = defaultMiddlePreference
	}

	middle := make([]SegmentType, 0, count-2)
	middle = append(middle, pref[:min(count-2, len(pref))]...)
	// Sessions long enough to want more segments than there are distinct
	// middle types repeat the goal's top preference.
	for len(middle) < count-2 {
		middle = append(middle, pref[0])
	}

	sortByCanonicalOrder(middle)

	types := make([]SegmentType, 0, count)
	types = append(types, SegmentIntro)
	types = append(types, middle...)
	types = append(types, SegmentClosing)
	return types
}

// segmentCount picks a count from the duration band, then shifts it by
// guidance level: beginners get more narration checkpoints, experts fewer.
func (p *Planner) segmentCount(spec Specification) int {
	minutes := spec.DurationMinutes

	var lo, hi int
	switch {
	case minutes <= 5:
		lo, hi = 3, 5
	case minutes <= 15:
		lo, hi = 5, 8
	default:
		lo, hi = 7, 12
	}

	// Scale within the band by where the duration falls in it.
	count := lo + (hi-lo)*minutes/20
	if count > hi {
		count = hi
	}

	switch spec.Guidance {
	case GuidanceBeginner:
		count += 2
	case GuidanceExpert:
		count -= 2
	}

	if count < 3 {
		count = 3
	}
	if count > 12 {
		count = 12
	}
	return count
}

// allocate distributes the global speech and silence budgets across segments.
// It starts from an equal split, scales by per-type multipliers, then
// renormalizes so the totals are hit exactly rather than compounding
// rounding error across segments.
func (p *Planner) allocate(spec Specification, types []SegmentType, speechTotal, silenceTotal float64) []SegmentPlan {
	n := len(types)
	speechEach := speechTotal / float64(n)
	silenceEach := silenceTotal / float64(n)

	speech := make([]float64, n)
	silence := make([]float64, n)
	var speechSum, silenceSum float64
	for i, t := range types {
		prof := profileFor(t)
		speech[i] = speechEach * prof.Speech
		silence[i] = silenceEach * prof.Silence
		speechSum += speech[i]
		silenceSum += silence[i]
	}

	speechScale := speechTotal / speechSum
	silenceScale := silenceTotal / silenceSum

	wpm := p.effectiveWPM(spec)

	plans := make([]SegmentPlan, n)
	for i, t := range types {
		prof := profileFor(t)
		speechSec := speech[i] * speechScale
		silenceSec := silence[i] * silenceScale

		plans[i] = SegmentPlan{
			ID:             fmt.Sprintf("seg-%d-%s", i+1, t),
			Type:           t,
			Purpose:        prof.Purpose,
			SpeechSeconds:  speechSec,
			SilenceSeconds: silenceSec,
			TargetWords:    int(math.Round(speechSec * wpm / 60)),
			Priority:       prof.Priority,
			Flexibility:    prof.Flexibility,
		}
	}
	return plans
}

// effectiveWPM adjusts the base speaking rate for goal, guidance, voice style
// and pace preference. Sleep narration runs about 20% slower.
func (p *Planner) effectiveWPM(spec Specification) float64 {
	wpm := p.wordsPerMinute

	switch spec.Goal {
	case GoalSleep:
		wpm *= 0.8
	case GoalCalm, GoalHealing:
		wpm *= 0.9
	case GoalEnergy:
		wpm *= 1.1
	}

	switch spec.Guidance {
	case GuidanceBeginner:
		wpm *= 0.95
	case GuidanceExpert:
		wpm *= 1.05
	}

	switch spec.Voice.Style {
	case "calm":
		wpm *= 0.95
	case "energetic":
		wpm *= 1.1
	}

	if spec.Constraints.PacePreference == "slow" {
		wpm *= 0.9
	}

	return wpm
}

// sortByCanonicalOrder sorts segment types into their session position.
func sortByCanonicalOrder(types []SegmentType) {
	for i := 1; i < len(types); i++ {
		for j := i; j > 0 && canonicalOrder[types[j]] < canonicalOrder[types[j-1]]; j-- {
			types[j], types[j-1] = types[j-1], types[j]
		}
	}
}
