package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// ExtractOpts configures the audio track pulled out of a media file.
type ExtractOpts struct {
	// SampleRate is the canonical pipeline sample rate in Hz.
	// Default: 44100.
	SampleRate int

	// Channels is the number of output channels.
	// Default: 2.
	Channels int

	// Bitrate is passed to ffmpeg as -ab.
	// Default: "160k" ("128k" in small mode).
	Bitrate string
}

// DefaultExtractOpts returns the default options for audio extraction.
func DefaultExtractOpts() ExtractOpts {
	return ExtractOpts{
		SampleRate: 44100,
		Channels:   2,
		Bitrate:    "160k",
	}
}

// Extractor pulls the audio track of a media file into a PCM WAV file.
type Extractor interface {
	// Extract decodes the audio of input and writes it to outputWav at the
	// requested sample rate and channel count.
	Extract(ctx context.Context, input, outputWav string, opts ExtractOpts) error
}

// FFmpegExtractor implements Extractor using the ffmpeg CLI.
type FFmpegExtractor struct {
	ffmpegPath string
}

// NewFFmpegExtractor creates a new FFmpegExtractor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegExtractor(ffmpegPath string) *FFmpegExtractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegExtractor{ffmpegPath: ffmpegPath}
}

// Extract implements Extractor.Extract.
func (e *FFmpegExtractor) Extract(ctx context.Context, input, outputWav string, opts ExtractOpts) error {
	if _, err := os.Stat(input); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", input)
	}

	defaults := DefaultExtractOpts()
	if opts.SampleRate <= 0 {
		opts.SampleRate = defaults.SampleRate
	}
	if opts.Channels <= 0 {
		opts.Channels = defaults.Channels
	}
	if opts.Bitrate == "" {
		opts.Bitrate = defaults.Bitrate
	}

	if err := os.MkdirAll(filepath.Dir(outputWav), 0750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.ffmpegPath, extractArgs(input, outputWav, opts)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg error: %w, stderr: %s", err, stderr.String())
	}

	return nil
}

// extractArgs builds the ffmpeg argument list for a WAV extraction.
func extractArgs(input, outputWav string, opts ExtractOpts) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "warning",
		"-i", input,
		"-ab", opts.Bitrate,
		"-ac", strconv.Itoa(opts.Channels),
		"-ar", strconv.Itoa(opts.SampleRate),
		"-vn",
		"-c:a", "pcm_s16le",
		outputWav,
	}
}

// Verify interface implementation at compile time.
var _ Extractor = (*FFmpegExtractor)(nil)
