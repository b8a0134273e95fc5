// Package media probes input videos and renders the re-timed output with ffmpeg.
package media

import "context"

// ProgressFunc receives the number of frames encoded so far.
type ProgressFunc func(frame int)

// RenderOpts describes one output render.
type RenderOpts struct {
	// Input is the source video; its video and non-audio streams are kept.
	Input string
	// Audio is the re-timed WAV track replacing the source audio.
	Audio string
	// FilterScript is a file holding the video filter graph.
	FilterScript string
	// Output is the destination file.
	Output string
	// Small selects the faster, lower quality encoder settings.
	Small bool
	// AudioBitrate is the AAC bitrate, e.g. "160k".
	AudioBitrate string
}

// Processor defines the interface for the external media operations the
// reducer depends on. Implementations shell out to ffprobe and ffmpeg.
type Processor interface {
	// Probe reads the container and stream metadata of path.
	Probe(ctx context.Context, path string) (*Info, error)

	// Render encodes opts.Input with the re-timed audio and the filter script
	// applied, reporting encoded frames to progress when it is not nil.
	Render(ctx context.Context, opts RenderOpts, progress ProgressFunc) error
}
