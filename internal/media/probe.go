package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// ErrFFprobeExecution is returned when the ffprobe command fails.
var ErrFFprobeExecution = errors.New("ffprobe execution failed")

// ErrEmptyPath is returned when probing without a path.
var ErrEmptyPath = errors.New("media: empty path")

// Info is the subset of ffprobe output the reducer uses.
type Info struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the container.
type Stream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	NBFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
}

// Format captures container-level metadata.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

// ParseInfo decodes ffprobe's JSON output.
func ParseInfo(data []byte) (*Info, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &info, nil
}

// Probe runs ffprobe against path.
func (p *FFmpegProcessor) Probe(ctx context.Context, path string) (*Info, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrEmptyPath
	}

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-hide_banner",
		"-show_format",
		"-show_streams",
		"-of", "json",
		"--", path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, strings.TrimSpace(stderr.String()))
	}
	return ParseInfo(stdout.Bytes())
}

// videoStream returns the first video stream, if any.
func (i *Info) videoStream() (Stream, bool) {
	for _, s := range i.Streams {
		if strings.EqualFold(s.CodecType, "video") {
			return s, true
		}
	}
	return Stream{}, false
}

// HasAudio reports whether the container has at least one audio stream.
func (i *Info) HasAudio() bool {
	for _, s := range i.Streams {
		if strings.EqualFold(s.CodecType, "audio") {
			return true
		}
	}
	return false
}

// HasVideo reports whether the container has at least one video stream.
func (i *Info) HasVideo() bool {
	_, ok := i.videoStream()
	return ok
}

// FrameRate returns the average frame rate of the first video stream, or 0
// when ffprobe did not report a usable one.
func (i *Info) FrameRate() float64 {
	s, ok := i.videoStream()
	if !ok {
		return 0
	}
	if rate := ParseRate(s.AvgFrameRate); rate > 0 {
		return rate
	}
	return ParseRate(s.RFrameRate)
}

// DurationSeconds returns the container duration, or 0 when unavailable.
func (i *Info) DurationSeconds() float64 {
	d := parseFloat(i.Format.Duration)
	if math.IsNaN(d) || d < 0 {
		return 0
	}
	return d
}

// FrameCount returns the reported frame count of the first video stream, or
// an estimate from duration and frame rate when the container has none.
func (i *Info) FrameCount() int {
	s, ok := i.videoStream()
	if !ok {
		return 0
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s.NBFrames)); err == nil && n > 0 {
		return n
	}
	return int(math.Round(i.DurationSeconds() * i.FrameRate()))
}

// ParseRate parses an ffprobe rate such as "30000/1001" or "25". It returns 0
// for anything that is not a positive finite rate, including "0/0".
func ParseRate(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	num, den, found := strings.Cut(value, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d := 1.0
	if found {
		if d, err = strconv.ParseFloat(den, 64); err != nil || d == 0 {
			return 0
		}
	}
	rate := n / d
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return 0
	}
	return rate
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
