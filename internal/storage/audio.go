package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// AudioStore adapts Storage for callers that persist rendered narration:
// the orchestration agent saving fresh clips and the cache pruning blobs.
// Clips are uploaded when a persistent backend exists and kept on local
// disk otherwise.
type AudioStore struct {
	backend Storage
}

// NewAudioStore creates an AudioStore over the given backend.
func NewAudioStore(backend Storage) *AudioStore {
	return &AudioStore{backend: backend}
}

// SaveAudio persists one clip and returns its reference (URL or local path).
func (a *AudioStore) SaveAudio(ctx context.Context, name string, data io.Reader) (string, error) {
	key := fmt.Sprintf("segments/%d_%s", time.Now().UnixNano(), name)

	url, err := a.backend.Upload(ctx, key, data)
	if err == nil {
		return url, nil
	}
	if !errors.Is(err, ErrS3NotConfigured) {
		return "", fmt.Errorf("upload audio %s: %w", name, err)
	}

	// Local-only deployment: the temp path is the durable reference.
	path, err := a.backend.SaveTemp(ctx, name, data)
	if err != nil {
		return "", fmt.Errorf("save audio %s: %w", name, err)
	}
	return path, nil
}

// Delete removes a clip by reference.
func (a *AudioStore) Delete(ctx context.Context, ref string) error {
	return a.backend.Delete(ctx, ref)
}
