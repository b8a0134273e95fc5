// Package audio provides the in-memory sample buffer used by the re-timing
// pipeline, together with WAV encoding and ffmpeg-based audio extraction.
package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Static errors for buffer validation.
var (
	// ErrEmptyBuffer is returned when a buffer holds no samples.
	ErrEmptyBuffer = errors.New("audio: buffer has no samples")
	// ErrChannelMismatch is returned when channel counts do not agree.
	ErrChannelMismatch = errors.New("audio: channel count mismatch")
	// ErrInvalidSampleRate is returned when the sample rate is not positive.
	ErrInvalidSampleRate = errors.New("audio: sample rate must be positive")
)

// Buffer is a channel-major sample matrix. Data[c][i] is sample i of channel c.
//
// BitDepth records the integer scale the samples are expressed in: a buffer
// decoded from 16-bit PCM carries values in [-32768, 32767] and BitDepth 16.
// A BitDepth of 0 marks normalized samples in [-1, 1].
type Buffer struct {
	SampleRate int
	BitDepth   int
	Data       [][]float64
}

// NewBuffer allocates a zeroed buffer with the given shape.
func NewBuffer(sampleRate, channels, length int) *Buffer {
	data := make([][]float64, channels)
	for c := range data {
		data[c] = make([]float64, length)
	}
	return &Buffer{SampleRate: sampleRate, Data: data}
}

// FromInterleaved builds a buffer from interleaved frames (L R L R ...).
func FromInterleaved(samples []float64, channels, sampleRate int) (*Buffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: got %d channels", ErrChannelMismatch, channels)
	}
	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("%w: %d samples do not divide into %d channels", ErrChannelMismatch, len(samples), channels)
	}
	b := NewBuffer(sampleRate, channels, len(samples)/channels)
	for i, v := range samples {
		b.Data[i%channels][i/channels] = v
	}
	return b, nil
}

// Channels returns the number of channels.
func (b *Buffer) Channels() int {
	return len(b.Data)
}

// Len returns the number of samples per channel.
func (b *Buffer) Len() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Len()) / float64(b.SampleRate) * float64(time.Second))
}

// Validate checks that the buffer is non-empty, rectangular and has a sample rate.
func (b *Buffer) Validate() error {
	if b == nil || b.Len() == 0 {
		return ErrEmptyBuffer
	}
	if b.SampleRate <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSampleRate, b.SampleRate)
	}
	n := b.Len()
	for c, ch := range b.Data {
		if len(ch) != n {
			return fmt.Errorf("%w: channel %d has %d samples, want %d", ErrChannelMismatch, c, len(ch), n)
		}
	}
	return nil
}

// MaxVolume returns the largest absolute sample value across all channels.
func (b *Buffer) MaxVolume() float64 {
	return b.PeakRange(0, b.Len())
}

// PeakRange returns the largest absolute sample value in [start, end).
// Bounds are clipped to the buffer; an empty range yields 0.
func (b *Buffer) PeakRange(start, end int) float64 {
	start, end = b.clip(start, end)
	var peak float64
	for _, ch := range b.Data {
		for _, v := range ch[start:end] {
			if a := math.Abs(v); a > peak {
				peak = a
			}
		}
	}
	return peak
}

// Slice returns per-channel views of [start, end), clipped to the buffer.
// The returned slices share memory with the buffer.
func (b *Buffer) Slice(start, end int) [][]float64 {
	start, end = b.clip(start, end)
	out := make([][]float64, len(b.Data))
	for c, ch := range b.Data {
		out[c] = ch[start:end:end]
	}
	return out
}

// Append concatenates data onto the end of the buffer.
func (b *Buffer) Append(data [][]float64) error {
	if len(data) != len(b.Data) {
		return fmt.Errorf("%w: appending %d channels to %d", ErrChannelMismatch, len(data), len(b.Data))
	}
	for c := range b.Data {
		b.Data[c] = append(b.Data[c], data[c]...)
	}
	return nil
}

// Interleaved returns the samples as interleaved frames.
func (b *Buffer) Interleaved() []float64 {
	channels := b.Channels()
	out := make([]float64, b.Len()*channels)
	for c, ch := range b.Data {
		for i, v := range ch {
			out[i*channels+c] = v
		}
	}
	return out
}

func (b *Buffer) clip(start, end int) (int, int) {
	n := b.Len()
	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start > end {
		start = end
	}
	return start, end
}

// Scale multiplies every sample in data by factor.
func Scale(data [][]float64, factor float64) {
	for _, ch := range data {
		for i := range ch {
			ch[i] *= factor
		}
	}
}

// FullScale returns the magnitude of the most negative value representable
// at the given PCM bit depth (32768 for 16-bit). Depth 0 means normalized
// samples and yields 1.
func FullScale(bitDepth int) float64 {
	if bitDepth <= 0 {
		return 1
	}
	return math.Ldexp(1, bitDepth-1)
}
