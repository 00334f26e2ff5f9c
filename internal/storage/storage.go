// Package storage provides temporary and persistent file storage for audio.
// It defines the Storage port and implementations for local disk and S3.
// Rendered segment clips and assembled outputs are blobs; the semantic cache
// references them by URL or local path.
package storage

import (
	"context"
	"io"
)

// Storage is the port for blob storage. Implementations must handle
// temporary files during assembly and optionally persistent uploads.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Delete removes a single blob by reference (local path or remote URL).
	Delete(ctx context.Context, ref string) error

	// Upload persists data under a key and returns its public URL.
	// Returns ErrS3NotConfigured when no persistent backend is configured.
	Upload(ctx context.Context, key string, data io.Reader) (url string, err error)
}
