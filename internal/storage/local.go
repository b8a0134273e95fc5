package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var _ Storage = (*LocalStorage)(nil)

// ErrS3NotConfigured is returned by Upload when no bucket is configured.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

// DefaultDirName is the scratch directory under os.TempDir() used when no
// temp folder is configured.
const DefaultDirName = "talks-reducer"

// LocalStorage keeps run workspaces under a scratch directory. It cannot
// deliver outputs anywhere; see S3Storage.
type LocalStorage struct {
	tempDir string
}

// NewLocalStorage creates tempDir if needed. An empty tempDir selects
// DefaultDirName under os.TempDir().
func NewLocalStorage(tempDir string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), DefaultDirName)
	}
	if err := os.MkdirAll(tempDir, 0o750); err != nil {
		return nil, fmt.Errorf("create temp folder %s: %w", tempDir, err)
	}
	return &LocalStorage{tempDir: tempDir}, nil
}

// TempDir returns the scratch directory.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// Workspace creates a fresh directory named after the input file, so that
// concurrent runs over the same input never share intermediate files.
func (s *LocalStorage) Workspace(ctx context.Context, input string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	dir, err := os.MkdirTemp(s.tempDir, sanitizeName(input)+"_*")
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return dir, nil
}

// Open opens a rendered file for upload. Directories are rejected.
func (s *LocalStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	f, err := os.Open(path) // #nosec G304 - path is the output the run just rendered
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: is a directory", path)
	}
	return f, nil
}

// Cleanup removes every path, missing ones included, and joins the errors
// of those it could not remove.
func (s *LocalStorage) Cleanup(ctx context.Context, paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		if err := os.RemoveAll(p); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// Upload always fails with ErrS3NotConfigured.
func (s *LocalStorage) Upload(context.Context, string, io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}

// sanitizeName reduces an input path to its base name without extension,
// with anything outside [A-Za-z0-9_-] replaced by '_'.
func sanitizeName(input string) string {
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if name := b.String(); name != "" && name != "_" {
		return name
	}
	return "run"
}
