// Package synth renders the re-timed audio track. Each span of frames is cut
// from the source, stretched to its speed, faded at both ends, normalized and
// appended to the output, while its position on the new frame timeline is
// recorded.
package synth

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"github.com/maauso/talks-reducer/internal/audio"
	"github.com/maauso/talks-reducer/internal/chunk"
	"github.com/maauso/talks-reducer/internal/stretch"
)

const (
	// DefaultBatchSize is how many spans are stretched concurrently before
	// their results are appended.
	DefaultBatchSize = 10
	// DefaultFadeSamples is the fade envelope length in samples.
	DefaultFadeSamples = 400
)

// Static errors for synthesizer configuration.
var (
	// ErrInvalidSamplesPerFrame is returned when samples per frame is not positive.
	ErrInvalidSamplesPerFrame = errors.New("synth: samples per frame must be positive")
	// ErrNoSpans is returned when there is nothing to synthesize.
	ErrNoSpans = errors.New("synth: no spans")
)

// StretchError reports the span that could not be time-stretched.
type StretchError struct {
	Index int
	Err   error
}

func (e *StretchError) Error() string {
	return fmt.Sprintf("synth: stretch span %d: %v", e.Index, e.Err)
}

func (e *StretchError) Unwrap() error {
	return e.Err
}

// Options configures a Synthesizer.
type Options struct {
	SamplesPerFrame float64
	SilentSpeed     float64
	SoundedSpeed    float64
	FadeSamples     int
	// MaxVolume is the source's global peak; output is divided by it. Zero skips normalization.
	MaxVolume float64
	// BatchSize defaults to DefaultBatchSize.
	BatchSize int
	// Workers bounds concurrent stretches within a batch. Defaults to GOMAXPROCS.
	Workers int
}

// Result is the synthesized track and its finalized chunk list.
type Result struct {
	Audio  *audio.Buffer
	Chunks []chunk.Chunk
	// Lengths holds the synthesized sample count of each chunk.
	Lengths []int
}

// Synthesizer renders spans into a new audio buffer.
type Synthesizer struct {
	stretcher stretch.Stretcher
	opts      Options
	logger    *slog.Logger
}

// New creates a Synthesizer. A nil logger uses slog.Default().
func New(stretcher stretch.Stretcher, opts Options, logger *slog.Logger) (*Synthesizer, error) {
	if math.IsNaN(opts.SamplesPerFrame) || opts.SamplesPerFrame <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidSamplesPerFrame, opts.SamplesPerFrame)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.FadeSamples < 0 {
		opts.FadeSamples = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{stretcher: stretcher, opts: opts, logger: logger}, nil
}

// speedFor returns the playback speed of a span's class.
func (s *Synthesizer) speedFor(span chunk.Span) float64 {
	if span.Loud {
		return s.opts.SoundedSpeed
	}
	return s.opts.SilentSpeed
}

// Run synthesizes every span in order. Spans are stretched a batch at a time
// in parallel, then the batch is appended in order by the calling goroutine,
// so the output matches a sequential render exactly. On any stretch failure
// Run returns a *StretchError and no audio.
func (s *Synthesizer) Run(buf *audio.Buffer, spans []chunk.Span) (*Result, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, ErrNoSpans
	}

	out := audio.NewBuffer(buf.SampleRate, buf.Channels(), 0)
	timelines := make([]chunk.Timeline, 0, len(spans))
	lengths := make([]int, 0, len(spans))
	spf := s.opts.SamplesPerFrame
	ptr := 0

	for lo := 0; lo < len(spans); lo += s.opts.BatchSize {
		hi := min(lo+s.opts.BatchSize, len(spans))
		rendered, err := s.renderBatch(buf, spans, lo, hi)
		if err != nil {
			return nil, err
		}

		for _, data := range rendered {
			n := 0
			if len(data) > 0 {
				n = len(data[0])
			}
			if err := out.Append(data); err != nil {
				return nil, fmt.Errorf("append chunk: %w", err)
			}
			timelines = append(timelines, chunk.Timeline{
				Start: int(math.Ceil(float64(ptr) / spf)),
				End:   int(math.Ceil(float64(ptr+n) / spf)),
			})
			lengths = append(lengths, n)
			ptr += n
		}
		s.logger.Debug("synthesized batch", "from", lo, "to", hi, "samples", ptr)
	}

	chunks, err := chunk.Finalize(spans, timelines)
	if err != nil {
		return nil, err
	}
	return &Result{Audio: out, Chunks: chunks, Lengths: lengths}, nil
}

// renderBatch renders spans[lo:hi] concurrently and returns them in span order.
func (s *Synthesizer) renderBatch(buf *audio.Buffer, spans []chunk.Span, lo, hi int) ([][][]float64, error) {
	results := make([][][]float64, hi-lo)
	errs := make([]error, hi-lo)

	sem := make(chan struct{}, s.opts.Workers)
	var wg sync.WaitGroup
	for i := lo; i < hi; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i-lo], errs[i-lo] = s.renderSpan(buf, spans[i])
		}(i)
	}
	wg.Wait()

	for k, err := range errs {
		if err != nil {
			return nil, &StretchError{Index: lo + k, Err: err}
		}
	}
	return results, nil
}

// renderSpan produces the faded, normalized audio for one span.
func (s *Synthesizer) renderSpan(buf *audio.Buffer, span chunk.Span) ([][]float64, error) {
	spf := s.opts.SamplesPerFrame
	start := int(float64(span.Start) * spf)
	end := int(float64(span.End) * spf)

	data, err := s.stretcher.Stretch(buf.Slice(start, end), s.speedFor(span))
	if err != nil {
		return nil, err
	}

	audio.ApplyFade(data, s.opts.FadeSamples)
	if s.opts.MaxVolume > 0 {
		audio.Scale(data, 1/s.opts.MaxVolume)
	}
	return data, nil
}
