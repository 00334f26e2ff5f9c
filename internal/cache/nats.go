package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Compile-time check that NatsStore implements Store.
var _ Store = (*NatsStore)(nil)

// NatsStore is the JetStream Key-Value implementation of the durable tier.
// Each entry is stored as one JSON row under its composite key.
type NatsStore struct {
	kv     nats.KeyValue
	bucket string
}

// NewNatsStore binds to the cache bucket, creating it if it does not exist.
func NewNatsStore(js nats.JetStreamContext, bucket string) (*NatsStore, error) {
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "Semantic audio cache rows",
			Storage:     nats.FileStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("bind cache bucket %q: %w", bucket, err)
	}

	return &NatsStore{kv: kv, bucket: bucket}, nil
}

// Create inserts a new entry, failing with ErrEntryExists if the composite
// key already has a row. JetStream's Create is atomic, which resolves
// duplicate-insert races with exactly one winner.
func (s *NatsStore) Create(_ context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry %s: %w", entry.ID, err)
	}

	if _, err := s.kv.Create(entry.Key(), data); err != nil {
		if errors.Is(err, nats.ErrKeyExists) {
			return ErrEntryExists
		}
		return fmt.Errorf("create cache entry %s: %w", entry.Key(), err)
	}
	return nil
}

// Update overwrites the row for an existing entry.
func (s *NatsStore) Update(_ context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry %s: %w", entry.ID, err)
	}

	if _, err := s.kv.Put(entry.Key(), data); err != nil {
		return fmt.Errorf("update cache entry %s: %w", entry.Key(), err)
	}
	return nil
}

// Get retrieves one row by composite key.
func (s *NatsStore) Get(_ context.Context, key string) (*Entry, error) {
	kve, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("get cache entry %s: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(kve.Value(), &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return &entry, nil
}

// List returns every row in the bucket. The cache is bounded by de-duplication
// tooling, so a full scan is acceptable for similarity search.
func (s *NatsStore) List(ctx context.Context) ([]*Entry, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list cache keys: %w", err)
	}

	entries := make([]*Entry, 0, len(keys))
	for _, key := range keys {
		entry, err := s.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrEntryNotFound) {
				continue // deleted between Keys and Get
			}
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Delete removes a row by composite key.
func (s *NatsStore) Delete(_ context.Context, key string) error {
	if err := s.kv.Delete(key); err != nil {
		return fmt.Errorf("delete cache entry %s: %w", key, err)
	}
	return nil
}
