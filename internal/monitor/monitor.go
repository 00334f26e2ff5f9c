// Package monitor provides the cross-cutting pipeline monitor: an ordered,
// per-request event log with aggregate counters. It observes the other
// components and never mutates their state; every method is nil-safe so a
// missing or broken monitor can never abort the pipeline.
package monitor

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Status is the outcome of one recorded step.
type Status string

// Step statuses.
const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Event is one entry in the per-request pipeline log.
type Event struct {
	// Component names the subsystem ("planner", "agent", "cache", "assembly").
	Component string
	// Step names the operation within the component.
	Step string
	// Status is the outcome.
	Status Status
	// TimestampMs is when the event was recorded, unix milliseconds.
	TimestampMs int64
	// DurationMs is how long the step took, when known.
	DurationMs int64
	// Cost is the estimated cost in cost units, when applicable.
	Cost float64
	// Tokens is the provider token usage, when applicable.
	Tokens int
	// Similarity is the cache similarity score, when applicable.
	Similarity float64
	// CacheHit marks cache lookup outcomes.
	CacheHit bool
}

// Recorder collects the event log and aggregate counters for one request.
type Recorder struct {
	mu        sync.Mutex
	requestID string
	startedAt time.Time
	events    []Event

	cacheLookups int64
	cacheHits    int64
	aiCalls      int64
	ttsCalls     int64
	totalCost    float64
}

// NewRecorder creates a Recorder for one request.
func NewRecorder(requestID string) *Recorder {
	return &Recorder{
		requestID: requestID,
		startedAt: time.Now(),
	}
}

// RequestID returns the identifier of the request being recorded.
func (r *Recorder) RequestID() string {
	if r == nil {
		return ""
	}
	return r.requestID
}

// Record appends an event to the log and updates counters.
func (r *Recorder) Record(ev Event) {
	if r == nil {
		return
	}
	if ev.TimestampMs == 0 {
		ev.TimestampMs = time.Now().UnixMilli()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	r.totalCost += ev.Cost
}

// CacheLookup records the outcome of one cache lookup.
func (r *Recorder) CacheLookup(step string, hit bool, similarity float64) {
	if r == nil {
		return
	}
	r.Record(Event{
		Component:  "cache",
		Step:       step,
		Status:     StatusCompleted,
		CacheHit:   hit,
		Similarity: similarity,
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheLookups++
	if hit {
		r.cacheHits++
	}
}

// AICall records one text-generation or embedding provider call.
func (r *Recorder) AICall(step string, durationMs int64, cost float64, tokens int) {
	if r == nil {
		return
	}
	r.Record(Event{
		Component:  "agent",
		Step:       step,
		Status:     StatusCompleted,
		DurationMs: durationMs,
		Cost:       cost,
		Tokens:     tokens,
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.aiCalls++
}

// TTSCall records one speech synthesis call.
func (r *Recorder) TTSCall(step string, durationMs int64, cost float64) {
	if r == nil {
		return
	}
	r.Record(Event{
		Component:  "agent",
		Step:       step,
		Status:     StatusCompleted,
		DurationMs: durationMs,
		Cost:       cost,
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttsCalls++
}

// Stats is the aggregate view of one request's pipeline activity.
type Stats struct {
	RequestID    string
	CacheLookups int64
	CacheHits    int64
	CacheHitRate float64
	AICalls      int64
	TTSCalls     int64
	TotalCost    float64
	Events       int
	ElapsedMs    int64
}

// Stats returns the current aggregate counters.
func (r *Recorder) Stats() Stats {
	if r == nil {
		return Stats{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		RequestID:    r.requestID,
		CacheLookups: r.cacheLookups,
		CacheHits:    r.cacheHits,
		AICalls:      r.aiCalls,
		TTSCalls:     r.ttsCalls,
		TotalCost:    r.totalCost,
		Events:       len(r.events),
		ElapsedMs:    time.Since(r.startedAt).Milliseconds(),
	}
	if s.CacheLookups > 0 {
		s.CacheHitRate = float64(s.CacheHits) / float64(s.CacheLookups)
	}
	return s
}

// Events returns a copy of the ordered event log.
func (r *Recorder) Events() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Summary returns a human-readable report for request completion.
func (r *Recorder) Summary() string {
	if r == nil {
		return ""
	}
	s := r.Stats()

	var b strings.Builder
	fmt.Fprintf(&b, "request %s: %d events in %dms\n", s.RequestID, s.Events, s.ElapsedMs)
	fmt.Fprintf(&b, "  cache: %d/%d hits (%.0f%%)\n", s.CacheHits, s.CacheLookups, s.CacheHitRate*100)
	fmt.Fprintf(&b, "  calls: %d ai, %d tts\n", s.AICalls, s.TTSCalls)
	fmt.Fprintf(&b, "  cost:  %.4f units", s.TotalCost)
	return b.String()
}
