// Package chunk groups classified frames into contiguous runs and tracks where
// each run lands on the output timeline.
//
// A chunk goes through two phases. Build produces Spans, which only know the
// input frame range and whether the run is sounded. Synthesis then produces one
// Timeline per span, and Finalize merges both into the read-only Chunk records
// consumed by the time remapping stage.
package chunk

import (
	"errors"
	"fmt"
)

// Static errors for chunk construction and validation.
var (
	// ErrNoFrames is returned when the classification slice is empty.
	ErrNoFrames = errors.New("chunk: no frames to build from")
	// ErrNegativeMargin is returned for a frame margin below zero.
	ErrNegativeMargin = errors.New("chunk: frame margin must not be negative")
	// ErrLengthMismatch is returned when spans and timelines differ in count.
	ErrLengthMismatch = errors.New("chunk: spans and timelines differ in length")
	// ErrInvariant is returned when a chunk list breaks its partition or timeline rules.
	ErrInvariant = errors.New("chunk: invariant violated")
)

// Span is a maximal run of frames sharing one speed class, over input frames [Start, End).
type Span struct {
	Start int
	End   int
	Loud  bool
}

// Len returns the number of input frames in the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// IsLoud reports whether the span plays at the sounded speed.
func (s Span) IsLoud() bool { return s.Loud }

// Timeline is the output frame range [Start, End) a span occupies after synthesis.
type Timeline struct {
	Start int
	End   int
}

// Chunk is a finalized span with both its input and output frame ranges.
type Chunk struct {
	OldStart int  `toml:"old_start"`
	OldEnd   int  `toml:"old_end"`
	NewStart int  `toml:"new_start"`
	NewEnd   int  `toml:"new_end"`
	Loud     bool `toml:"loud"`
}

// IsLoud reports whether the chunk plays at the sounded speed.
func (c Chunk) IsLoud() bool { return c.Loud }

// OldLen returns the number of input frames covered.
func (c Chunk) OldLen() int {
	return c.OldEnd - c.OldStart
}

// NewLen returns the number of output frames covered.
func (c Chunk) NewLen() int {
	return c.NewEnd - c.NewStart
}

// Finalize pairs every span with the timeline synthesis produced for it.
func Finalize(spans []Span, timelines []Timeline) ([]Chunk, error) {
	if len(spans) != len(timelines) {
		return nil, fmt.Errorf("%w: %d spans, %d timelines", ErrLengthMismatch, len(spans), len(timelines))
	}
	chunks := make([]Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = Chunk{
			OldStart: s.Start,
			OldEnd:   s.End,
			NewStart: timelines[i].Start,
			NewEnd:   timelines[i].End,
			Loud:     s.Loud,
		}
	}
	if err := Validate(chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// Validate checks that chunks partition their input range starting at frame 0
// and that the output ranges start at 0, never go backwards and abut each other.
func Validate(chunks []Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: empty chunk list", ErrInvariant)
	}
	if chunks[0].OldStart != 0 {
		return fmt.Errorf("%w: first chunk starts at input frame %d", ErrInvariant, chunks[0].OldStart)
	}
	if chunks[0].NewStart != 0 {
		return fmt.Errorf("%w: first chunk starts at output frame %d", ErrInvariant, chunks[0].NewStart)
	}
	for i, c := range chunks {
		if c.OldEnd <= c.OldStart {
			return fmt.Errorf("%w: chunk %d has empty input range [%d,%d)", ErrInvariant, i, c.OldStart, c.OldEnd)
		}
		if c.NewEnd < c.NewStart {
			return fmt.Errorf("%w: chunk %d output range [%d,%d) goes backwards", ErrInvariant, i, c.NewStart, c.NewEnd)
		}
		if i == 0 {
			continue
		}
		prev := chunks[i-1]
		if c.OldStart != prev.OldEnd {
			return fmt.Errorf("%w: chunk %d input starts at %d, previous ended at %d", ErrInvariant, i, c.OldStart, prev.OldEnd)
		}
		if c.NewStart != prev.NewEnd {
			return fmt.Errorf("%w: chunk %d output starts at %d, previous ended at %d", ErrInvariant, i, c.NewStart, prev.NewEnd)
		}
	}
	return nil
}

// Totals reports the input and output frame counts covered by chunks.
func Totals(chunks []Chunk) (oldFrames, newFrames int) {
	if len(chunks) == 0 {
		return 0, 0
	}
	last := chunks[len(chunks)-1]
	return last.OldEnd, last.NewEnd
}
