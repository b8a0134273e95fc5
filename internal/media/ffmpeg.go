package media

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
)

// Static errors for media operations.
var (
	// ErrMissingInput is returned when a render input file does not exist.
	ErrMissingInput = errors.New("render input not found")
	// ErrNoOutput is returned when a render has no output path.
	ErrNoOutput = errors.New("render output path is empty")
)

// Encoder settings for the two render modes.
const (
	DefaultAudioBitrate = "160k"
	SmallAudioBitrate   = "128k"
)

// stderrTail bounds how much ffmpeg output is kept for error reports.
const stderrTail = 16 << 10

var frameProgress = regexp.MustCompile(`frame=\s*(\d+)`)

// FFmpegProcessor implements Processor using the ffmpeg and ffprobe CLIs.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// Empty paths default to "ffmpeg" and "ffprobe" found via PATH.
func NewFFmpegProcessor(ffmpegPath, ffprobePath string) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegProcessor{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Render encodes the re-timed output. Video is re-encoded with libx264 because
// the filter graph changes every frame's timestamp; audio is encoded to AAC.
func (p *FFmpegProcessor) Render(ctx context.Context, opts RenderOpts, progress ProgressFunc) error {
	for _, path := range []string{opts.Input, opts.Audio, opts.FilterScript} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
	}
	if opts.Output == "" {
		return ErrNoOutput
	}
	if dir := filepath.Dir(opts.Output); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	return p.runFFmpeg(ctx, renderArgs(opts), progress)
}

// renderArgs builds the ffmpeg argument list for a render.
func renderArgs(opts RenderOpts) []string {
	bitrate := opts.AudioBitrate
	if bitrate == "" {
		bitrate = DefaultAudioBitrate
		if opts.Small {
			bitrate = SmallAudioBitrate
		}
	}

	args := []string{"-y", "-hide_banner", "-loglevel", "info", "-stats"}
	if !opts.Small {
		args = append(args, "-filter_complex_threads", "1")
	}
	args = append(args,
		"-i", opts.Input,
		"-i", opts.Audio,
		"-map", "0", "-map", "-0:a", "-map", "1:a",
		"-filter_script:v", opts.FilterScript,
		"-c:v", "libx264",
	)
	if opts.Small {
		args = append(args, "-preset", "veryfast", "-crf", "24", "-tune", "zerolatency")
	} else {
		args = append(args, "-preset", "fast", "-crf", "23")
	}
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", bitrate,
		opts.Output,
	)
	return args
}

// parseFrame extracts the frame counter from an ffmpeg stats line.
func parseFrame(line []byte) (int, bool) {
	m := frameProgress.FindSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, false
	}
	return n, true
}

// scanStatLines splits ffmpeg stderr on both carriage returns and newlines,
// since -stats rewrites its status line in place.
func scanStatLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

// runFFmpeg executes ffmpeg with the given arguments, streaming frame counts
// from stderr to progress. A failure carries the tail of stderr.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, args []string, progress ProgressFunc) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	tail := &tailBuffer{limit: stderrTail}
	scanner := bufio.NewScanner(io.TeeReader(stderrPipe, tail))
	scanner.Split(scanStatLines)
	for scanner.Scan() {
		if progress == nil {
			continue
		}
		if frame, ok := parseFrame(scanner.Bytes()); ok {
			progress(frame)
		}
	}
	// Drain whatever the scanner left so ffmpeg never blocks on a full pipe.
	_, _ = io.Copy(tail, stderrPipe)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: tail.String(),
			Err:    err,
		}
	}
	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// Compile-time check that FFmpegProcessor implements Processor.
var _ Processor = (*FFmpegProcessor)(nil)
