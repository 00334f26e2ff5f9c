package meditation

import (
	"strings"
	"testing"
)

func TestFallbackText_Precedence(t *testing.T) {
	// A goal-specific template wins over the type default.
	sleepIntro := FallbackText(SegmentIntro, GoalSleep)
	if !strings.Contains(sleepIntro, "bed") {
		t.Errorf("sleep intro fallback = %q, want the sleep-specific template", sleepIntro)
	}

	// Goals without their own template get the type default.
	calmIntro := FallbackText(SegmentIntro, GoalCalm)
	defaultIntro := FallbackText(SegmentIntro, Goal("unknown-goal"))
	if calmIntro != defaultIntro {
		t.Errorf("calm intro = %q, want the type default %q", calmIntro, defaultIntro)
	}
	if calmIntro == sleepIntro {
		t.Error("type default should differ from the sleep-specific template")
	}

	// Unknown types still produce narration.
	generic := FallbackText(SegmentType("humming"), GoalCalm)
	if generic == "" {
		t.Error("expected a generic fallback for unknown types")
	}
}

func TestFallbackText_CoversEveryPlannedType(t *testing.T) {
	types := []SegmentType{
		SegmentIntro, SegmentSettling, SegmentBreathing, SegmentBodyScan,
		SegmentVisualization, SegmentMindfulness, SegmentIntegration, SegmentClosing,
	}
	for _, st := range types {
		if FallbackText(st, GoalCalm) == "" {
			t.Errorf("no fallback narration for segment type %s", st)
		}
	}
}

func TestProfileFor(t *testing.T) {
	intro := profileFor(SegmentIntro)
	if intro.Speech <= 1 {
		t.Errorf("intro speech multiplier = %.2f, want > 1 (speech-heavy)", intro.Speech)
	}
	if intro.Purpose == "" {
		t.Error("intro profile missing purpose")
	}

	breathing := profileFor(SegmentBreathing)
	if breathing.Silence <= intro.Silence {
		t.Errorf("breathing silence %.2f should exceed intro silence %.2f", breathing.Silence, intro.Silence)
	}

	// Unknown types get the neutral profile.
	unknown := profileFor(SegmentType("humming"))
	if unknown.Speech != 1 || unknown.Silence != 1 {
		t.Errorf("unknown profile = %+v, want neutral multipliers", unknown)
	}
}
