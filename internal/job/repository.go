package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when no job has the requested ID.
var ErrJobNotFound = errors.New("job not found")

// Repository keeps the jobs of a batch. A CLI run stores them in memory for
// the lifetime of the process.
type Repository interface {
	// Save inserts job or replaces the stored job with the same ID.
	Save(ctx context.Context, job *Job) error

	// FindByID returns ErrJobNotFound for unknown IDs.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns every job in the order it was first saved, which is the
	// order the batch submitted them in.
	List(ctx context.Context) ([]*Job, error)

	// Tally counts the stored jobs by status.
	Tally(ctx context.Context) (map[Status]int, error)
}
