package timeremap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/talks-reducer/internal/chunk"
)

func TestBuild_TwoChunks(t *testing.T) {
	chunks := []chunk.Chunk{
		{OldStart: 0, OldEnd: 10, NewStart: 0, NewEnd: 10, Loud: true},
		{OldStart: 10, OldEnd: 30, NewStart: 10, NewEnd: 20, Loud: false},
	}

	tree, err := Build(chunks)
	require.NoError(t, err)
	assert.Equal(t, "if(lt(N,10),N*1.0+0.0,N*2.0-10.0)", tree.String())
}

func TestBuild_HalvedSilence(t *testing.T) {
	chunks := []chunk.Chunk{
		{OldStart: 0, OldEnd: 10, NewStart: 0, NewEnd: 10, Loud: true},
		{OldStart: 10, OldEnd: 20, NewStart: 10, NewEnd: 15},
	}

	tree, err := Build(chunks)
	require.NoError(t, err)
	assert.Equal(t, "if(lt(N,10),N*1.0+0.0,N*2.0-10.0)", tree.String())
	assert.InDelta(t, 1.0, tree.Left.Slope, 0)
	assert.InDelta(t, 2.0, tree.Right.Slope, 0)

	pts, err := BuildPTS(chunks)
	require.NoError(t, err)
	assert.Equal(t, "if(lt(N,10),N*1.0+0.0,N*0.5+5.0)", pts.String())
}

func TestBuildPTS_InvertsBuild(t *testing.T) {
	chunks := []chunk.Chunk{
		{OldStart: 0, OldEnd: 8, NewStart: 0, NewEnd: 2},
		{OldStart: 8, OldEnd: 9, NewStart: 2, NewEnd: 2},
		{OldStart: 9, OldEnd: 30, NewStart: 2, NewEnd: 23, Loud: true},
		{OldStart: 30, OldEnd: 50, NewStart: 23, NewEnd: 28},
	}

	forward, err := Build(chunks)
	require.NoError(t, err)
	pts, err := BuildPTS(chunks)
	require.NoError(t, err)
	assert.Equal(t, 4, pts.Leaves(), "source frames of every chunk need a timestamp")
	assert.Equal(t, 3, forward.Leaves())

	for n := 0.0; n < 28; n += 0.5 {
		assert.InDelta(t, n, pts.Eval(forward.Eval(n)), 1e-9, "round trip at output frame %v", n)
	}
	// The collapsed chunk lands on the output frame where the next one starts.
	assert.InDelta(t, 2, pts.Eval(8.5), 1e-12)
}

func TestBuild_SingleChunk(t *testing.T) {
	tree, err := Build([]chunk.Chunk{{OldStart: 0, OldEnd: 100, NewStart: 0, NewEnd: 25}})
	require.NoError(t, err)
	assert.True(t, tree.IsLeaf())
	assert.Equal(t, "N*4.0+0.0", tree.String())
}

func TestBuild_SkipsEmptyOutputRanges(t *testing.T) {
	chunks := []chunk.Chunk{
		{OldStart: 0, OldEnd: 1, NewStart: 0, NewEnd: 0},
		{OldStart: 1, OldEnd: 4, NewStart: 0, NewEnd: 3, Loud: true},
		{OldStart: 4, OldEnd: 12, NewStart: 3, NewEnd: 5},
	}

	tree, err := Build(chunks)
	require.NoError(t, err)
	assert.Equal(t, "if(lt(N,3),N*1.0+1.0,N*4.0-8.0)", tree.String())
	assert.Equal(t, 2, tree.Leaves())
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(nil)
	assert.ErrorIs(t, err, ErrNoChunks)

	_, err = Build([]chunk.Chunk{{OldStart: 0, OldEnd: 3, NewStart: 0, NewEnd: 0}})
	assert.ErrorIs(t, err, ErrNoOutputFrames)
}

func TestBuild_BalancedSplit(t *testing.T) {
	chunks := make([]chunk.Chunk, 0, 9)
	newPos := 0
	for i := 0; i < 9; i++ {
		width := 1 + i%3
		chunks = append(chunks, chunk.Chunk{
			OldStart: i * 4, OldEnd: (i + 1) * 4,
			NewStart: newPos, NewEnd: newPos + width,
		})
		newPos += width
	}

	tree, err := Build(chunks)
	require.NoError(t, err)
	assert.Equal(t, 9, tree.Leaves())
	assert.Equal(t, 5, tree.Depth())
	assert.Equal(t, chunks[4].NewStart, tree.Threshold)
	assert.Equal(t, chunks[2].NewStart, tree.Left.Threshold)
}

func TestEval_MapsChunkBoundaries(t *testing.T) {
	chunks := []chunk.Chunk{
		{OldStart: 0, OldEnd: 7, NewStart: 0, NewEnd: 2},
		{OldStart: 7, OldEnd: 20, NewStart: 2, NewEnd: 15, Loud: true},
		{OldStart: 20, OldEnd: 33, NewStart: 15, NewEnd: 19},
		{OldStart: 33, OldEnd: 40, NewStart: 19, NewEnd: 26, Loud: true},
		{OldStart: 40, OldEnd: 41, NewStart: 26, NewEnd: 26},
		{OldStart: 41, OldEnd: 60, NewStart: 26, NewEnd: 31},
	}

	tree, err := Build(chunks)
	require.NoError(t, err)

	for _, c := range chunks {
		if c.NewLen() == 0 {
			continue
		}
		assert.InDelta(t, float64(c.OldStart), tree.Eval(float64(c.NewStart)), 1e-9, "start of %+v", c)
		// Approaching the end of a chunk from inside lands on its input end.
		assert.InDelta(t, float64(c.OldEnd), tree.Eval(float64(c.NewEnd)-1e-9), 1e-6, "end of %+v", c)
	}

	prev := math.Inf(-1)
	for n := 0.0; n < 31; n += 0.25 {
		v := tree.Eval(n)
		assert.GreaterOrEqual(t, v, prev, "mapping must not go backwards at %v", n)
		prev = v
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in         float64
		plain, sig string
	}{
		{1, "1.0", "+1.0"},
		{0, "0.0", "+0.0"},
		{math.Copysign(0, -1), "0.0", "+0.0"},
		{-10, "-10.0", "-10.0"},
		{2.5, "2.5", "+2.5"},
		{1.0 / 3, "0.3333333333333333", "+0.3333333333333333"},
		{-0.00001, "-0.00001", "-0.00001"},
		{1e6, "1000000.0", "+1000000.0"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.plain, formatFloat(tt.in))
		assert.Equal(t, tt.sig, formatSigned(tt.in))
	}
}
