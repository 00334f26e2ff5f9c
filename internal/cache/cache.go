package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ErrCacheUnavailable marks durable-tier outages. The cache never surfaces it
// from lookups (those degrade to always-miss); it exists for health reporting.
var ErrCacheUnavailable = errors.New("cache: durable store unavailable")

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BlobStore deletes audio blobs referenced by pruned entries.
type BlobStore interface {
	Delete(ctx context.Context, ref string) error
}

// Match pairs a candidate entry with its similarity to the query.
type Match struct {
	Entry      *Entry
	Similarity float64
}

// Cache is the tiered semantic audio cache.
type Cache struct {
	mu    sync.RWMutex
	local map[string]*Entry // composite key -> entry
	byID  map[string]string // entry ID -> composite key

	store    Store // nil means memory-only
	embedder Embedder
	blobs    BlobStore // may be nil
	logger   *slog.Logger

	// healthy gates whether the durable tier is attempted. After a failure
	// the tier is retried once recoveryInterval has elapsed.
	healthy          atomic.Bool
	lastFailureNanos atomic.Int64
	recoveryInterval time.Duration

	backfill *backfillPool
}

// Option configures a Cache.
type Option func(*Cache)

// WithBlobStore wires blob deletion for Prune.
func WithBlobStore(b BlobStore) Option {
	return func(c *Cache) { c.blobs = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithRecoveryInterval sets how long the cache waits before re-probing an
// unhealthy durable tier.
func WithRecoveryInterval(d time.Duration) Option {
	return func(c *Cache) { c.recoveryInterval = d }
}

// New creates a Cache. A nil store means the cache runs memory-only; a nil
// embedder disables similarity search and backfill (FindSimilar returns no
// matches).
func New(store Store, embedder Embedder, opts ...Option) *Cache {
	c := &Cache{
		local:            make(map[string]*Entry),
		byID:             make(map[string]string),
		store:            store,
		embedder:         embedder,
		logger:           slog.Default(),
		recoveryInterval: 30 * time.Second,
	}
	c.healthy.Store(true)
	for _, opt := range opts {
		opt(c)
	}
	c.backfill = newBackfillPool(2, 64, c.backfillEntry, c.logger)
	return c
}

// Close stops the backfill workers.
func (c *Cache) Close() {
	c.backfill.Close()
}

// Healthy reports whether the durable tier is currently being attempted.
func (c *Cache) Healthy() bool {
	return c.store == nil || c.healthy.Load()
}

// durableAvailable reports whether the durable tier should be attempted now.
func (c *Cache) durableAvailable() bool {
	if c.store == nil {
		return false
	}
	if c.healthy.Load() {
		return true
	}
	// Probe again once the recovery interval has elapsed.
	last := time.Unix(0, c.lastFailureNanos.Load())
	return time.Since(last) >= c.recoveryInterval
}

func (c *Cache) markFailure(op string, err error) {
	if c.healthy.CompareAndSwap(true, false) {
		c.logger.Warn("durable cache tier unavailable, degrading to always-miss",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
	}
	c.lastFailureNanos.Store(time.Now().UnixNano())
}

func (c *Cache) markSuccess() {
	if c.healthy.CompareAndSwap(false, true) {
		c.logger.Info("durable cache tier recovered")
	}
}

// FindExact looks up an entry by (textHash, voiceId, voiceStyle).
// Returns ErrEntryNotFound on a miss; durable-tier outages degrade to a miss.
func (c *Cache) FindExact(ctx context.Context, textHash, voiceID, voiceStyle string) (*Entry, error) {
	key := CompositeKey(textHash, voiceID, voiceStyle)

	c.mu.RLock()
	entry, ok := c.local[key]
	c.mu.RUnlock()
	if ok {
		return entry.Clone(), nil
	}

	if !c.durableAvailable() {
		return nil, ErrEntryNotFound
	}

	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			c.markSuccess()
			return nil, ErrEntryNotFound
		}
		c.markFailure("get", err)
		return nil, ErrEntryNotFound
	}
	c.markSuccess()

	c.remember(entry)
	return entry.Clone(), nil
}

// FindSimilar embeds the text and returns same-scope entries whose cosine
// similarity is at or above threshold, sorted descending, truncated to limit.
// Embedding or durable-tier failures are logged and produce fewer (or no)
// matches rather than an error.
func (c *Cache) FindSimilar(ctx context.Context, text, voiceID, voiceStyle, language string, threshold float64, limit int) ([]Match, error) {
	if c.embedder == nil {
		return nil, nil
	}

	query, err := c.embedder.Embed(ctx, text)
	if err != nil {
		c.logger.Warn("query embedding failed, skipping similarity search",
			slog.String("error", err.Error()),
		)
		return nil, nil
	}

	matches := make([]Match, 0, limit)
	for _, entry := range c.candidates(ctx) {
		if entry.VoiceID != voiceID || entry.VoiceStyle != voiceStyle || entry.Language != language {
			continue
		}
		if !entry.HasEmbedding() {
			continue
		}
		if sim := CosineSimilarity(query, entry.Embedding); sim >= threshold {
			matches = append(matches, Match{Entry: entry, Similarity: sim})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	// Warm the served matches into the local tier: durable-only rows would
	// otherwise be unknown to IncrementUsage and their history lost.
	for _, m := range matches {
		c.remember(m.Entry)
	}
	return matches, nil
}

// Save inserts a new entry with usage count 1 and schedules asynchronous
// embedding backfill. A duplicate insert race is resolved by returning the
// winner's entry rather than erroring.
func (c *Cache) Save(ctx context.Context, p SaveParams) (*Entry, error) {
	entry := newEntry(p)
	key := entry.Key()

	// Local tier first: an in-process duplicate is a read.
	c.mu.Lock()
	if existing, ok := c.local[key]; ok {
		c.mu.Unlock()
		return existing.Clone(), nil
	}
	c.mu.Unlock()

	if c.durableAvailable() {
		err := c.store.Create(ctx, entry)
		switch {
		case err == nil:
			c.markSuccess()
		case errors.Is(err, ErrEntryExists):
			c.markSuccess()
			// Lost the insert race: fetch and serve the winner.
			winner, getErr := c.store.Get(ctx, key)
			if getErr == nil {
				c.remember(winner)
				return winner.Clone(), nil
			}
			c.logger.Warn("duplicate insert race: winner fetch failed",
				slog.String("entry_key", key),
				slog.String("error", getErr.Error()),
			)
		default:
			c.markFailure("create", err)
		}
	}

	c.remember(entry)
	c.backfill.Submit(key)
	return entry.Clone(), nil
}

// IncrementUsage bumps the usage counter and touches lastUsedAt.
// It is best-effort: failures are logged, never surfaced, and the bump is
// commutative so no ordering is guaranteed across concurrent readers.
func (c *Cache) IncrementUsage(ctx context.Context, entryID string) {
	c.mu.Lock()
	key, ok := c.byID[entryID]
	if !ok {
		c.mu.Unlock()
		c.logger.Debug("usage increment for unknown entry",
			slog.String("entry_id", entryID),
		)
		return
	}
	entry := c.local[key]
	entry.UsageCount++
	entry.LastUsedAt = time.Now().UTC()
	updated := entry.Clone()
	c.mu.Unlock()

	if c.durableAvailable() {
		if err := c.store.Update(ctx, updated); err != nil {
			c.markFailure("update", err)
		} else {
			c.markSuccess()
		}
	}
}

// remember inserts an entry into the local tier.
func (c *Cache) remember(entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := entry.Clone()
	c.local[clone.Key()] = clone
	c.byID[clone.ID] = clone.Key()
}

// forget removes an entry from the local tier.
func (c *Cache) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.local[key]; ok {
		delete(c.byID, entry.ID)
		delete(c.local, key)
	}
}

// candidates merges the local and durable tiers, preferring durable rows
// (they carry backfilled embeddings the local tier may lack). Local rows are
// cloned so callers hold detached snapshots: IncrementUsage and the backfill
// workers mutate the live objects under the lock.
func (c *Cache) candidates(ctx context.Context) []*Entry {
	merged := make(map[string]*Entry)

	c.mu.RLock()
	for key, entry := range c.local {
		merged[key] = entry.Clone()
	}
	c.mu.RUnlock()

	if c.durableAvailable() {
		entries, err := c.store.List(ctx)
		if err != nil {
			c.markFailure("list", err)
		} else {
			c.markSuccess()
			for _, entry := range entries {
				merged[entry.Key()] = entry
			}
		}
	}

	out := make([]*Entry, 0, len(merged))
	for _, entry := range merged {
		out = append(out, entry)
	}
	return out
}

// backfillEntry computes and persists the embedding for one entry.
// Runs on the backfill pool, never on the request path.
func (c *Cache) backfillEntry(ctx context.Context, key string) error {
	if c.embedder == nil {
		return nil
	}

	c.mu.RLock()
	entry, ok := c.local[key]
	c.mu.RUnlock()
	if !ok || entry.HasEmbedding() {
		return nil
	}

	vector, err := c.embedder.Embed(ctx, entry.TextContent)
	if err != nil {
		return fmt.Errorf("embed entry %s: %w", entry.ID, err)
	}

	c.mu.Lock()
	entry, ok = c.local[key]
	if !ok {
		// Evicted while embedding (e.g. a concurrent prune); nothing to persist.
		c.mu.Unlock()
		return nil
	}
	entry.Embedding = vector
	updated := entry.Clone()
	c.mu.Unlock()

	if c.durableAvailable() {
		if err := c.store.Update(ctx, updated); err != nil {
			c.markFailure("update", err)
			return fmt.Errorf("persist embedding for %s: %w", entry.ID, err)
		}
		c.markSuccess()
	}
	return nil
}
