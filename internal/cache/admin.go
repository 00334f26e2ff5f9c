package cache

import (
	"context"
	"log/slog"
)

// DefaultDuplicateFloor is the similarity at or above which two entries are
// considered near-duplicates for administrative de-duplication.
const DefaultDuplicateFloor = 0.95

// Cluster is a group of near-duplicate entries within one voice scope.
type Cluster struct {
	// Entries is the cluster's members, the highest-usage member first.
	Entries []*Entry
}

// PruneReport summarizes a de-duplication pass.
type PruneReport struct {
	ClustersFound  int
	EntriesDeleted int
	BytesFreed     int64
	DryRun         bool
}

// DetectNearDuplicateClusters groups entries whose embeddings are within
// similarityFloor of a cluster seed. Clustering is scoped to
// (voiceId, voiceStyle, language); entries without embeddings are skipped.
func (c *Cache) DetectNearDuplicateClusters(ctx context.Context, similarityFloor float64) []Cluster {
	if similarityFloor <= 0 {
		similarityFloor = DefaultDuplicateFloor
	}

	// Bucket candidates per voice scope.
	scopes := make(map[string][]*Entry)
	for _, entry := range c.candidates(ctx) {
		if !entry.HasEmbedding() {
			continue
		}
		scope := entry.VoiceID + "|" + entry.VoiceStyle + "|" + entry.Language
		scopes[scope] = append(scopes[scope], entry)
	}

	var clusters []Cluster
	for _, entries := range scopes {
		clustered := make(map[string]bool)
		for i, seed := range entries {
			if clustered[seed.ID] {
				continue
			}
			members := []*Entry{seed}
			for _, other := range entries[i+1:] {
				if clustered[other.ID] {
					continue
				}
				if CosineSimilarity(seed.Embedding, other.Embedding) >= similarityFloor {
					members = append(members, other)
					clustered[other.ID] = true
				}
			}
			if len(members) > 1 {
				clustered[seed.ID] = true
				sortByUsageDesc(members)
				clusters = append(clusters, Cluster{Entries: members})
			}
		}
	}
	return clusters
}

// Prune deletes all but the highest-usage member of each near-duplicate
// cluster, along with their audio blobs. With dryRun it only reports what
// would be removed.
func (c *Cache) Prune(ctx context.Context, dryRun bool) (PruneReport, error) {
	clusters := c.DetectNearDuplicateClusters(ctx, DefaultDuplicateFloor)
	report := PruneReport{ClustersFound: len(clusters), DryRun: dryRun}

	for _, cluster := range clusters {
		// Entries[0] is the keeper (highest usage count).
		for _, loser := range cluster.Entries[1:] {
			report.EntriesDeleted++
			report.BytesFreed += loser.SizeBytes
			if dryRun {
				continue
			}

			if c.durableAvailable() {
				if err := c.store.Delete(ctx, loser.Key()); err != nil {
					c.markFailure("delete", err)
					return report, err
				}
				c.markSuccess()
			}
			c.forget(loser.Key())

			if c.blobs != nil {
				if err := c.blobs.Delete(ctx, loser.AudioRef); err != nil {
					// Orphaned blobs are preferable to a failed prune.
					c.logger.Warn("prune: blob deletion failed",
						slog.String("entry_id", loser.ID),
						slog.String("audio_ref", loser.AudioRef),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
	return report, nil
}

// BackfillMissingEmbeddings synchronously computes embeddings for up to
// batchSize entries that lack one (or all scanned entries when forceUpdate
// is set). Returns the number of entries updated; individual failures are
// logged and skipped.
func (c *Cache) BackfillMissingEmbeddings(ctx context.Context, batchSize int, forceUpdate bool) (int, error) {
	if c.embedder == nil {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 50
	}

	updated := 0
	for _, entry := range c.candidates(ctx) {
		if updated >= batchSize {
			break
		}
		if entry.HasEmbedding() && !forceUpdate {
			continue
		}

		vector, err := c.embedder.Embed(ctx, entry.TextContent)
		if err != nil {
			c.logger.Warn("backfill: embedding failed",
				slog.String("entry_id", entry.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		entry.Embedding = vector
		c.remember(entry)
		if c.durableAvailable() {
			if err := c.store.Update(ctx, entry); err != nil {
				c.markFailure("update", err)
				continue
			}
			c.markSuccess()
		}
		updated++
	}
	return updated, nil
}

// sortByUsageDesc orders cluster members by usage count, highest first.
func sortByUsageDesc(entries []*Entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].UsageCount > entries[j-1].UsageCount; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
