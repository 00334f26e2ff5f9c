package assembly

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when no assembly job exists for an ID.
var ErrJobNotFound = errors.New("assembly job not found")

// Repository persists assembly jobs across their state walk. The service
// saves a snapshot after every transition, so implementations must treat
// Save of an existing ID as an overwrite.
type Repository interface {
	// Save upserts a job snapshot.
	Save(ctx context.Context, job *Job) error

	// FindByID retrieves a job snapshot.
	// Returns ErrJobNotFound if the ID is unknown.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns snapshots of every stored job.
	List(ctx context.Context) ([]*Job, error)

	// CountByStatus reports how many stored jobs are in the given state.
	// Health checks use it to report queue depth.
	CountByStatus(ctx context.Context, status Status) (int, error)

	// Delete removes a job.
	// Returns ErrJobNotFound if the ID is unknown.
	Delete(ctx context.Context, id string) error
}
