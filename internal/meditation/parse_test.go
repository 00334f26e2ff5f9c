package meditation

import "testing"

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantGoal     Goal
		wantMinutes  int
		wantGuidance GuidanceLevel
	}{
		{"quick focus at work", "quick meditation to focus at work", GoalFocus, 5, GuidanceConfirmed},
		{"explicit duration", "15 minute meditation for sleep", GoalSleep, 15, GuidanceConfirmed},
		{"anxiety default duration", "something for my anxiety please", GoalAnxiety, 10, GuidanceConfirmed},
		{"long healing", "a long meditation for grief and healing", GoalHealing, 20, GuidanceConfirmed},
		{"beginner", "first time meditating, help me relax", GoalCalm, 10, GuidanceBeginner},
		{"expert stress", "advanced practice for stress, 30 minutes", GoalStress, 30, GuidanceExpert},
		{"no hints", "please make me a meditation", GoalCalm, 10, GuidanceConfirmed},
		{"morning energy", "wake up meditation with energy", GoalEnergy, 10, GuidanceConfirmed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := ParseRequest(tt.text)

			if spec.Goal != tt.wantGoal {
				t.Errorf("goal = %s, want %s", spec.Goal, tt.wantGoal)
			}
			if spec.DurationMinutes != tt.wantMinutes {
				t.Errorf("duration = %d, want %d", spec.DurationMinutes, tt.wantMinutes)
			}
			if spec.Guidance != tt.wantGuidance {
				t.Errorf("guidance = %s, want %s", spec.Guidance, tt.wantGuidance)
			}
			if spec.Intent != tt.text {
				t.Errorf("intent = %q, want original text", spec.Intent)
			}
		})
	}
}

func TestParseRequest_VoicePreferences(t *testing.T) {
	spec := ParseRequest("sleep meditation with a warm male voice")
	if spec.Voice.Gender != "male" {
		t.Errorf("gender = %s, want male", spec.Voice.Gender)
	}
	if spec.Voice.Style != "warm" {
		t.Errorf("style = %s, want warm", spec.Voice.Style)
	}

	spec = ParseRequest("calm me down")
	if spec.Voice.Gender != "female" || spec.Voice.Style != "calm" {
		t.Errorf("defaults = %s/%s, want female/calm", spec.Voice.Gender, spec.Voice.Style)
	}
}

func TestParseRequest_Constraints(t *testing.T) {
	spec := ParseRequest("slow box breathing session for anxiety")
	if spec.Constraints.PacePreference != "slow" {
		t.Errorf("pace = %s, want slow", spec.Constraints.PacePreference)
	}
	if spec.Constraints.BreathingStyle != "box" {
		t.Errorf("breathing = %s, want box", spec.Constraints.BreathingStyle)
	}

	spec = ParseRequest("4-7-8 breathing before bedtime")
	if spec.Constraints.BreathingStyle != "478" {
		t.Errorf("breathing = %s, want 478", spec.Constraints.BreathingStyle)
	}
}

// A quick work-break request should land on a narration-dense plan, not the
// silence-heavy sleep profile.
func TestParseAndPlan_QuickFocusAtWork(t *testing.T) {
	spec := ParseRequest("quick meditation to focus at work")
	if spec.Goal != GoalFocus {
		t.Fatalf("goal = %s, want focus", spec.Goal)
	}
	if spec.DurationMinutes > 10 {
		t.Fatalf("duration = %d minutes, want <= 10", spec.DurationMinutes)
	}

	p := NewPlanner(130)
	plans, err := p.Plan(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var speech, silence float64
	for _, plan := range plans {
		speech += plan.SpeechSeconds
		silence += plan.SilenceSeconds
	}
	ratio := silence / (speech + silence)
	if ratio >= baseSilenceRatio[GoalSleep] {
		t.Errorf("silence ratio %.2f should be below the sleep baseline %.2f", ratio, baseSilenceRatio[GoalSleep])
	}
}
