// Package classify decides, frame by frame, whether a track is sounded or
// silent. A frame is the run of samples that plays during one video frame.
package classify

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/maauso/talks-reducer/internal/audio"
)

// Static errors for classifier input validation.
var (
	// ErrNoFrames is returned when the frame count is not positive.
	ErrNoFrames = errors.New("classify: frame count must be positive")
	// ErrInvalidSamplesPerFrame is returned when samples per frame is not a positive number.
	ErrInvalidSamplesPerFrame = errors.New("classify: samples per frame must be positive")
	// ErrInvalidThreshold is returned when a threshold falls outside [0, 1].
	ErrInvalidThreshold = errors.New("classify: threshold must be within [0, 1]")
	// ErrUnknownKind is returned by New for an unrecognized classifier kind.
	ErrUnknownKind = errors.New("classify: unknown classifier kind")
)

// Kind names a classifier implementation.
type Kind string

const (
	// KindVolume marks frames whose peak level reaches a threshold.
	KindVolume Kind = "volume"
	// KindVAD marks frames containing detected voice activity.
	KindVAD Kind = "vad"
)

// Input is the frame grid a classifier works over.
type Input struct {
	// Buffer holds the full track at the canonical pipeline sample rate.
	Buffer *audio.Buffer
	// FrameCount is the number of video-frame sized bins to classify.
	FrameCount int
	// SamplesPerFrame is SampleRate / FrameRate; it need not be integral.
	SamplesPerFrame float64
	// MaxVolume is the global peak of Buffer.
	MaxVolume float64
}

// Validate checks the frame grid before classification.
func (in Input) Validate() error {
	if err := in.Buffer.Validate(); err != nil {
		return err
	}
	if in.FrameCount <= 0 {
		return fmt.Errorf("%w: got %d", ErrNoFrames, in.FrameCount)
	}
	if math.IsNaN(in.SamplesPerFrame) || math.IsInf(in.SamplesPerFrame, 0) || in.SamplesPerFrame <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidSamplesPerFrame, in.SamplesPerFrame)
	}
	return nil
}

// bounds returns the sample range [start, end) covered by frame i. Truncation
// matches ffmpeg's fps filter so chunk boundaries land on rendered frames.
func (in Input) bounds(i int) (int, int) {
	n := in.Buffer.Len()
	start := int(float64(i) * in.SamplesPerFrame)
	end := int(float64(i+1) * in.SamplesPerFrame)
	if end > n {
		end = n
	}
	return start, end
}

// Classifier labels every frame of a track as sounded (true) or silent.
type Classifier interface {
	// Classify returns a slice of length in.FrameCount.
	Classify(in Input) ([]bool, error)
}

// Options selects and configures a classifier.
type Options struct {
	Kind Kind
	// Threshold is the normalized peak level for KindVolume.
	Threshold float64
	// VADMode is the WebRTC aggressiveness (0..3) for KindVAD.
	VADMode int
}

// New builds the classifier named by opts.Kind. An empty kind selects KindVolume.
func New(opts Options) (Classifier, error) {
	switch Kind(strings.ToLower(string(opts.Kind))) {
	case "", KindVolume:
		return NewVolume(opts.Threshold)
	case KindVAD:
		return NewVAD(opts.VADMode)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, opts.Kind)
	}
}
