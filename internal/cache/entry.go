// Package cache provides the semantic audio cache: a tiered store of rendered
// narration clips keyed by normalized text and voice identity, with embedding
// vectors for near-duplicate detection.
//
// Tier 0 is an in-process map, Tier 1 a durable store (NATS JetStream KV).
// When the durable tier is unreachable the cache degrades to always-miss
// rather than failing callers: availability beats cache efficiency.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry is one cached narration clip. The JSON field names are the persisted
// row layout of the durable tier.
type Entry struct {
	ID          string    `json:"id"`
	TextContent string    `json:"text_content"`
	TextHash    string    `json:"text_hash"`
	VoiceID     string    `json:"voice_id"`
	VoiceGender string    `json:"voice_gender"`
	VoiceStyle  string    `json:"voice_style"`
	Language    string    `json:"language"`
	AudioRef    string    `json:"audio_url"`
	DurationMs  int64     `json:"audio_duration"`
	SizeBytes   int64     `json:"file_size"`
	Embedding   []float32 `json:"embedding,omitempty"`
	UsageCount  int64     `json:"usage_count"`
	LastUsedAt  time.Time `json:"last_used_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Key returns the composite lookup key. (TextHash, VoiceID, VoiceStyle)
// uniquely identifies at most one entry.
func (e *Entry) Key() string {
	return CompositeKey(e.TextHash, e.VoiceID, e.VoiceStyle)
}

// HasEmbedding reports whether the embedding backfill has completed.
func (e *Entry) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// Clone returns a deep copy so callers cannot mutate cached state.
func (e *Entry) Clone() *Entry {
	clone := *e
	if e.Embedding != nil {
		clone.Embedding = make([]float32, len(e.Embedding))
		copy(clone.Embedding, e.Embedding)
	}
	return &clone
}

// SaveParams are the inputs for inserting a new cache entry.
type SaveParams struct {
	Text        string
	VoiceID     string
	VoiceGender string
	VoiceStyle  string
	Language    string
	AudioRef    string
	DurationMs  int64
	SizeBytes   int64
}

// newEntry builds a fresh Entry with usage count 1.
func newEntry(p SaveParams) *Entry {
	now := time.Now().UTC()
	return &Entry{
		ID:          uuid.NewString(),
		TextContent: p.Text,
		TextHash:    HashText(p.Text),
		VoiceID:     p.VoiceID,
		VoiceGender: p.VoiceGender,
		VoiceStyle:  p.VoiceStyle,
		Language:    p.Language,
		AudioRef:    p.AudioRef,
		DurationMs:  p.DurationMs,
		SizeBytes:   p.SizeBytes,
		UsageCount:  1,
		LastUsedAt:  now,
		CreatedAt:   now,
	}
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// NormalizeText lowercases, trims and collapses whitespace so that
// cosmetically different requests hash identically.
func NormalizeText(text string) string {
	return whitespacePattern.ReplaceAllString(strings.TrimSpace(strings.ToLower(text)), " ")
}

// HashText returns the SHA-256 hex digest of the normalized text.
// Identical text always produces the same hash.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}

var keyUnsafePattern = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// CompositeKey builds the exact-lookup key from hash and voice identity.
// Voice fields are sanitized so the key is valid in the durable store.
func CompositeKey(textHash, voiceID, voiceStyle string) string {
	sanitize := func(s string) string {
		return keyUnsafePattern.ReplaceAllString(s, "_")
	}
	return textHash + "." + sanitize(voiceID) + "." + sanitize(voiceStyle)
}
