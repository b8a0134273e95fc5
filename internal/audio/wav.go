package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when the input is not a decodable PCM WAV stream.
var ErrInvalidWAV = errors.New("audio: invalid wav file")

// DefaultOutputBitDepth is the PCM depth used for rewritten tracks.
const DefaultOutputBitDepth = 16

// ReadWAV decodes a PCM WAV stream into a buffer in the source integer scale.
func ReadWAV(r io.ReadSeeker) (*Buffer, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if pcm.Format == nil || pcm.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%w: missing format", ErrInvalidWAV)
	}

	samples := make([]float64, len(pcm.Data))
	for i, v := range pcm.Data {
		samples[i] = float64(v)
	}

	buf, err := FromInterleaved(samples, pcm.Format.NumChannels, pcm.Format.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	buf.BitDepth = int(decoder.BitDepth)
	return buf, nil
}

// ReadWAVFile opens and decodes a WAV file.
func ReadWAVFile(path string) (*Buffer, error) {
	f, err := os.Open(path) // #nosec G304 - path is a workspace file created by this process
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ReadWAV(f)
}

// WriteWAV encodes the buffer as PCM at the given bit depth. Samples are
// rescaled from the buffer's own scale and clipped to the target range.
func WriteWAV(w io.WriteSeeker, b *Buffer, bitDepth int) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if bitDepth <= 0 {
		bitDepth = DefaultOutputBitDepth
	}

	factor := FullScale(bitDepth) / FullScale(b.BitDepth)
	maxValue := FullScale(bitDepth) - 1
	minValue := -FullScale(bitDepth)

	interleaved := b.Interleaved()
	data := make([]int, len(interleaved))
	for i, v := range interleaved {
		scaled := math.Round(v * factor)
		if scaled > maxValue {
			scaled = maxValue
		} else if scaled < minValue {
			scaled = minValue
		}
		data[i] = int(scaled)
	}

	encoder := wav.NewEncoder(w, b.SampleRate, bitDepth, b.Channels(), 1)
	pcm := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: b.Channels(),
			SampleRate:  b.SampleRate,
		},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := encoder.Write(pcm); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// WriteWAVFile writes the buffer to path, creating parent directories.
func WriteWAVFile(path string, b *Buffer, bitDepth int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path) // #nosec G304 - path is a workspace file created by this process
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	if err := WriteWAV(f, b, bitDepth); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
