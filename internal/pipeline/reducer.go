// Package pipeline sequences the re-timing stages for one audio track:
// classification, chunk building, synthesis and time remapping.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/maauso/talks-reducer/internal/audio"
	"github.com/maauso/talks-reducer/internal/chunk"
	"github.com/maauso/talks-reducer/internal/classify"
	"github.com/maauso/talks-reducer/internal/stretch"
	"github.com/maauso/talks-reducer/internal/synth"
	"github.com/maauso/talks-reducer/internal/timeremap"
)

// ErrInvalidInput is the root of every *InputError.
var ErrInvalidInput = errors.New("pipeline: invalid input")

// InputError describes a request or option the reducer refuses to run with.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("pipeline: invalid %s: %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// Expression suffix converting an output frame number into a timestamp.
const timebaseSuffix = "/TB/FR"

// Defaults for Options.
const (
	DefaultSilentSpeed  = 4.0
	DefaultSoundedSpeed = 1.0
	DefaultFrameMargin  = 2
)

// Options holds the re-timing tunables.
type Options struct {
	SilentSpeed  float64
	SoundedSpeed float64
	FrameMargin  int
	FadeSamples  int
	// BatchSize and Workers tune synthesis concurrency; zero picks defaults.
	BatchSize int
	Workers   int
}

// DefaultOptions returns the stock tunables.
func DefaultOptions() Options {
	return Options{
		SilentSpeed:  DefaultSilentSpeed,
		SoundedSpeed: DefaultSoundedSpeed,
		FrameMargin:  DefaultFrameMargin,
		FadeSamples:  synth.DefaultFadeSamples,
		BatchSize:    synth.DefaultBatchSize,
	}
}

// Validate checks the tunables.
func (o Options) Validate() error {
	if err := stretch.ValidateSpeed(o.SilentSpeed); err != nil {
		return &InputError{Field: "silent_speed", Reason: err.Error()}
	}
	if err := stretch.ValidateSpeed(o.SoundedSpeed); err != nil {
		return &InputError{Field: "sounded_speed", Reason: err.Error()}
	}
	if o.FrameMargin < 0 {
		return &InputError{Field: "frame_margin", Reason: fmt.Sprintf("must not be negative, got %d", o.FrameMargin)}
	}
	if o.FadeSamples < 0 {
		return &InputError{Field: "audio_fade_envelope_size", Reason: fmt.Sprintf("must not be negative, got %d", o.FadeSamples)}
	}
	return nil
}

// Request is one track to re-time.
type Request struct {
	Audio     *audio.Buffer
	FrameRate float64
}

// Result is a re-timed track.
type Result struct {
	Audio  *audio.Buffer
	Chunks []chunk.Chunk
	// Expression maps output frames to source timestamps, suffixed with /TB/FR.
	Expression string
	// PTSExpression maps source frames to output timestamps; it is what setpts evaluates.
	PTSExpression string
	// OutputFrames is the frame count of the re-timed track.
	OutputFrames    int
	FrameCount      int
	SamplesPerFrame float64
	MaxVolume       float64
	Elapsed         time.Duration
}

// Reducer runs the re-timing stages for a track.
type Reducer struct {
	classifier classify.Classifier
	stretcher  stretch.Stretcher
	opts       Options
	logger     *slog.Logger
}

// New creates a Reducer. A nil logger uses slog.Default().
func New(classifier classify.Classifier, stretcher stretch.Stretcher, opts Options, logger *slog.Logger) (*Reducer, error) {
	if classifier == nil {
		return nil, &InputError{Field: "classifier", Reason: "is nil"}
	}
	if stretcher == nil {
		return nil, &InputError{Field: "stretcher", Reason: "is nil"}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reducer{classifier: classifier, stretcher: stretcher, opts: opts, logger: logger}, nil
}

func validateRequest(req Request) error {
	if req.Audio == nil {
		return &InputError{Field: "audio", Reason: "is nil"}
	}
	if req.Audio.SampleRate <= 0 {
		return &InputError{Field: "sample_rate", Reason: fmt.Sprintf("must be positive, got %d", req.Audio.SampleRate)}
	}
	if req.Audio.Channels() == 0 || req.Audio.Len() == 0 {
		return &InputError{Field: "audio", Reason: "has no samples"}
	}
	if err := req.Audio.Validate(); err != nil {
		return &InputError{Field: "audio", Reason: err.Error()}
	}
	if math.IsNaN(req.FrameRate) || math.IsInf(req.FrameRate, 0) || req.FrameRate <= 0 {
		return &InputError{Field: "frame_rate", Reason: fmt.Sprintf("must be positive, got %v", req.FrameRate)}
	}
	return nil
}

// Run re-times req.Audio. The source buffer is not modified.
func (r *Reducer) Run(req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	started := time.Now()

	buf := req.Audio
	maxVolume := buf.MaxVolume()
	spf := float64(buf.SampleRate) / req.FrameRate
	frameCount := int(math.Ceil(float64(buf.Len()) / spf))

	loud, err := r.classifier.Classify(classify.Input{
		Buffer:          buf,
		FrameCount:      frameCount,
		SamplesPerFrame: spf,
		MaxVolume:       maxVolume,
	})
	if err != nil {
		return nil, fmt.Errorf("classify frames: %w", err)
	}

	spans, err := chunk.Build(loud, r.opts.FrameMargin)
	if err != nil {
		return nil, fmt.Errorf("build chunks: %w", err)
	}
	loudSpans, silentSpans := chunk.Counts(spans)
	r.logger.Debug("chunks built",
		"frames", frameCount,
		"samples_per_frame", spf,
		"chunks", len(spans),
		"sounded", loudSpans,
		"silent", silentSpans,
	)

	synthesizer, err := synth.New(r.stretcher, synth.Options{
		SamplesPerFrame: spf,
		SilentSpeed:     r.opts.SilentSpeed,
		SoundedSpeed:    r.opts.SoundedSpeed,
		FadeSamples:     r.opts.FadeSamples,
		MaxVolume:       maxVolume,
		BatchSize:       r.opts.BatchSize,
		Workers:         r.opts.Workers,
	}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("create synthesizer: %w", err)
	}
	synthesized, err := synthesizer.Run(buf, spans)
	if err != nil {
		return nil, fmt.Errorf("synthesize audio: %w", err)
	}

	tree, err := timeremap.Build(synthesized.Chunks)
	if err != nil {
		return nil, fmt.Errorf("build time expression: %w", err)
	}
	pts, err := timeremap.BuildPTS(synthesized.Chunks)
	if err != nil {
		return nil, fmt.Errorf("build pts expression: %w", err)
	}

	_, outputFrames := chunk.Totals(synthesized.Chunks)
	res := &Result{
		Audio:           synthesized.Audio,
		Chunks:          synthesized.Chunks,
		Expression:      tree.String() + timebaseSuffix,
		PTSExpression:   pts.String() + timebaseSuffix,
		OutputFrames:    outputFrames,
		FrameCount:      frameCount,
		SamplesPerFrame: spf,
		MaxVolume:       maxVolume,
		Elapsed:         time.Since(started),
	}

	r.logger.Info("track re-timed",
		"input_frames", frameCount,
		"output_frames", outputFrames,
		"chunks", len(res.Chunks),
		"tree_depth", tree.Depth(),
		"duration", res.Elapsed,
	)
	return res, nil
}
