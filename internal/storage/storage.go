// Package storage provides scratch workspaces for reducer runs, output file
// locking, and optional S3 delivery of rendered videos.
package storage

import (
	"context"
	"io"
)

// Storage defines scratch space and delivery for reducer runs.
// Every run works inside its own workspace directory, which is removed once
// the render finishes.
type Storage interface {
	// Workspace creates a fresh directory for one run and returns its path.
	// The name parameter is used as a hint for the directory name.
	Workspace(ctx context.Context, name string) (dir string, err error)

	// Open reads a file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Cleanup removes the specified files or workspace directories.
	// It continues cleanup even if some paths fail to delete.
	Cleanup(ctx context.Context, paths []string) error

	// Upload uploads data to S3 and returns the public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	Upload(ctx context.Context, key string, data io.Reader) (url string, err error)
}
