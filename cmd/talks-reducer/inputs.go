package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/maauso/talks-reducer/internal/media"
)

// prober reports stream metadata for a path. *media.FFmpegProcessor satisfies it.
type prober interface {
	Probe(ctx context.Context, path string) (*media.Info, error)
}

// gatherInputs expands paths into the files that carry an audio stream.
// Directories contribute their direct entries in name order; anything that
// cannot be probed is skipped with a warning.
func gatherInputs(ctx context.Context, p prober, paths []string, logger *slog.Logger) []string {
	var files []string
	seen := make(map[string]bool)
	add := func(path string) {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if seen[abs] {
			return
		}
		if !hasAudio(ctx, p, abs, logger) {
			return
		}
		seen[abs] = true
		files = append(files, abs)
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			logger.Warn("skipping input", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		if !info.IsDir() {
			add(path)
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			logger.Warn("skipping directory", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		sort.Slice(entries, func(a, b int) bool { return entries[a].Name() < entries[b].Name() })
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			add(filepath.Join(path, entry.Name()))
		}
	}
	return files
}

func hasAudio(ctx context.Context, p prober, path string, logger *slog.Logger) bool {
	info, err := p.Probe(ctx, path)
	if err != nil {
		logger.Debug("not a media file", slog.String("path", path), slog.String("error", err.Error()))
		return false
	}
	if !info.HasAudio() {
		logger.Debug("no audio stream", slog.String("path", path))
		return false
	}
	return true
}
