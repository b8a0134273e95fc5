package audio

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteWAVFile_ReadBack(t *testing.T) {
	t.Run("normalized samples are scaled to 16-bit", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out", "normalized.wav")
		src := &Buffer{
			SampleRate: 8000,
			Data:       [][]float64{{0, 0.5, -0.5, 1.5}, {0.25, -1, 1, 0}},
		}

		require.NoError(t, WriteWAVFile(path, src, 16))

		got, err := ReadWAVFile(path)
		require.NoError(t, err)
		assert.Equal(t, 8000, got.SampleRate)
		assert.Equal(t, 16, got.BitDepth)
		assert.Equal(t, 2, got.Channels())
		assert.Equal(t, []float64{0, 16384, -16384, 32767}, got.Data[0])
		assert.Equal(t, []float64{8192, -32768, 32767, 0}, got.Data[1])
	})

	t.Run("integer scale samples keep their values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pcm.wav")
		src := &Buffer{SampleRate: 22050, BitDepth: 16, Data: [][]float64{{-300, 0, 1200}}}

		require.NoError(t, WriteWAVFile(path, src, 16))

		got, err := ReadWAVFile(path)
		require.NoError(t, err)
		assert.Equal(t, []float64{-300, 0, 1200}, got.Data[0])
		assert.InDelta(t, 1200, got.MaxVolume(), 0)
	})
}

func TestWriteWAV_RejectsEmptyBuffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")
	err := WriteWAVFile(path, NewBuffer(8000, 2, 0), 16)
	assert.ErrorIs(t, err, ErrEmptyBuffer)
}

func TestReadWAV_InvalidData(t *testing.T) {
	_, err := ReadWAV(bytes.NewReader([]byte("definitely not a riff header")))
	assert.ErrorIs(t, err, ErrInvalidWAV)
}

func TestReadWAVFile_Missing(t *testing.T) {
	_, err := ReadWAVFile(filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open wav")
}
