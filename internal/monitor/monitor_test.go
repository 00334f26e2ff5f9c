package monitor

import (
	"math"
	"strings"
	"sync"
	"testing"
)

func TestRecord_OrderAndCounters(t *testing.T) {
	rec := NewRecorder("req-1")

	rec.Record(Event{Component: "planner", Step: "plan", Status: StatusCompleted})
	rec.CacheLookup("find_exact", true, 1)
	rec.CacheLookup("find_similar", false, 0)
	rec.AICall("generate_text", 120, 0.01, 250)
	rec.TTSCall("synthesize", 900, 1.0)

	events := rec.Events()
	if len(events) != 5 {
		t.Fatalf("len(events) = %d, want 5", len(events))
	}
	if events[0].Component != "planner" || events[0].Step != "plan" {
		t.Errorf("first event = %s/%s, want planner/plan", events[0].Component, events[0].Step)
	}
	for i, ev := range events {
		if ev.TimestampMs == 0 {
			t.Errorf("event %d has no timestamp", i)
		}
	}

	stats := rec.Stats()
	if stats.RequestID != "req-1" {
		t.Errorf("RequestID = %s, want req-1", stats.RequestID)
	}
	if stats.CacheLookups != 2 || stats.CacheHits != 1 {
		t.Errorf("cache counters = %d/%d, want 2/1", stats.CacheLookups, stats.CacheHits)
	}
	if stats.CacheHitRate != 0.5 {
		t.Errorf("CacheHitRate = %.2f, want 0.50", stats.CacheHitRate)
	}
	if stats.AICalls != 1 || stats.TTSCalls != 1 {
		t.Errorf("call counters = %d/%d, want 1/1", stats.AICalls, stats.TTSCalls)
	}
	if math.Abs(stats.TotalCost-1.01) > 1e-9 {
		t.Errorf("TotalCost = %.4f, want 1.01", stats.TotalCost)
	}
}

func TestStats_NoLookups(t *testing.T) {
	rec := NewRecorder("req-2")

	if rate := rec.Stats().CacheHitRate; rate != 0 {
		t.Errorf("CacheHitRate = %.2f, want 0 with no lookups", rate)
	}
}

func TestEvents_ReturnsCopy(t *testing.T) {
	rec := NewRecorder("req-3")
	rec.Record(Event{Component: "agent", Step: "resolve", Status: StatusCompleted})

	events := rec.Events()
	events[0].Step = "mutated"

	if rec.Events()[0].Step != "resolve" {
		t.Error("mutating the returned slice changed the recorder's log")
	}
}

func TestSummary(t *testing.T) {
	rec := NewRecorder("req-4")
	rec.CacheLookup("find_exact", true, 1)
	rec.TTSCall("synthesize", 900, 1.0)

	s := rec.Summary()
	for _, want := range []string{"request req-4", "1/1 hits", "1 tts", "1.0000 units"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
}

// A nil recorder must absorb every call: the monitor can never be the
// reason a pipeline fails.
func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder

	rec.Record(Event{Component: "agent", Step: "resolve"})
	rec.CacheLookup("find_exact", true, 1)
	rec.AICall("generate_text", 10, 0.01, 5)
	rec.TTSCall("synthesize", 10, 1)

	if rec.RequestID() != "" {
		t.Error("nil recorder RequestID should be empty")
	}
	if rec.Summary() != "" {
		t.Error("nil recorder Summary should be empty")
	}
	if got := rec.Events(); got != nil {
		t.Errorf("nil recorder Events = %v, want nil", got)
	}
	if got := rec.Stats(); got != (Stats{}) {
		t.Errorf("nil recorder Stats = %+v, want zero value", got)
	}
}

func TestConcurrentRecording(t *testing.T) {
	rec := NewRecorder("req-5")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rec.CacheLookup("find_exact", j%2 == 0, 0.9)
			}
		}()
	}
	wg.Wait()

	stats := rec.Stats()
	if stats.CacheLookups != 1000 {
		t.Errorf("CacheLookups = %d, want 1000", stats.CacheLookups)
	}
	if stats.CacheHits != 500 {
		t.Errorf("CacheHits = %d, want 500", stats.CacheHits)
	}
	if stats.Events != 1000 {
		t.Errorf("Events = %d, want 1000", stats.Events)
	}
}
