// Package timeremap builds the piecewise-linear expression that relates the
// input and output frame timelines. The expression is a balanced binary
// decision tree over the finalized chunk list, serialized in ffmpeg
// expression syntax:
//
//	if(lt(N,10),N*1.0+0.0,N*2.0-10.0)
//
// Build maps output frames back to the source frames they play. BuildPTS
// maps source frames forward to their output position, which is what the
// setpts filter evaluates, since its N counts input frames.
package timeremap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/maauso/talks-reducer/internal/chunk"
)

// Static errors for expression building.
var (
	// ErrNoChunks is returned for an empty chunk list.
	ErrNoChunks = errors.New("timeremap: no chunks")
	// ErrNoOutputFrames is returned when every chunk has an empty output range.
	ErrNoOutputFrames = errors.New("timeremap: no chunk covers an output frame")
)

// Direction selects which timeline N ranges over.
type Direction int

const (
	// OutputToInput evaluates at an output frame and yields the source frame.
	OutputToInput Direction = iota
	// InputToOutput evaluates at a source frame and yields its output frame.
	InputToOutput
)

// Node is one node of the decision tree. Leaves carry Slope and Offset;
// internal nodes route frames below Threshold to Left and the rest to Right.
type Node struct {
	Threshold int
	Left      *Node
	Right     *Node

	Slope  float64
	Offset float64
}

// segment is one chunk seen from the chosen direction: it maps the domain
// range [from, to) linearly onto [start, end).
type segment struct {
	from, to   int
	start, end int
}

func segmentOf(c chunk.Chunk, dir Direction) segment {
	if dir == InputToOutput {
		return segment{from: c.OldStart, to: c.OldEnd, start: c.NewStart, end: c.NewEnd}
	}
	return segment{from: c.NewStart, to: c.NewEnd, start: c.OldStart, end: c.OldEnd}
}

func (s segment) leaf() *Node {
	slope := float64(s.end-s.start) / float64(s.to-s.from)
	return &Node{
		Slope:  slope,
		Offset: float64(s.start) - float64(s.from)*slope,
	}
}

// IsLeaf reports whether n is a leaf.
func (n *Node) IsLeaf() bool {
	return n.Left == nil && n.Right == nil
}

// Leaf returns the output-to-input segment for a single chunk. The chunk must
// cover at least one output frame.
func Leaf(c chunk.Chunk) *Node {
	return segmentOf(c, OutputToInput).leaf()
}

// Build constructs the output-to-input tree for chunks. The threshold of each
// split is the first output frame of its right half. Chunks whose output range
// is empty can never be selected and are left out.
func Build(chunks []chunk.Chunk) (*Node, error) {
	return BuildDirection(chunks, OutputToInput)
}

// BuildPTS constructs the input-to-output tree used for setpts. Chunks that
// collapse to zero output frames map all their source frames onto the next
// output frame.
func BuildPTS(chunks []chunk.Chunk) (*Node, error) {
	return BuildDirection(chunks, InputToOutput)
}

// BuildDirection constructs the decision tree for chunks in direction dir.
func BuildDirection(chunks []chunk.Chunk, dir Direction) (*Node, error) {
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	segments := make([]segment, 0, len(chunks))
	for _, c := range chunks {
		s := segmentOf(c, dir)
		if s.to > s.from {
			segments = append(segments, s)
		}
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: %d chunks", ErrNoOutputFrames, len(chunks))
	}
	return build(segments), nil
}

func build(segments []segment) *Node {
	if len(segments) == 1 {
		return segments[0].leaf()
	}
	split := len(segments) / 2
	return &Node{
		Threshold: segments[split].from,
		Left:      build(segments[:split]),
		Right:     build(segments[split:]),
	}
}

// Eval evaluates the tree at frame.
func (n *Node) Eval(frame float64) float64 {
	for !n.IsLeaf() {
		if frame < float64(n.Threshold) {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return frame*n.Slope + n.Offset
}

// Depth returns the number of levels in the tree.
func (n *Node) Depth() int {
	if n.IsLeaf() {
		return 1
	}
	return 1 + max(n.Left.Depth(), n.Right.Depth())
}

// Leaves returns the number of leaves in the tree.
func (n *Node) Leaves() int {
	if n.IsLeaf() {
		return 1
	}
	return n.Left.Leaves() + n.Right.Leaves()
}

// String serializes the tree as an ffmpeg expression over N.
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *Node) write(b *strings.Builder) {
	if n.IsLeaf() {
		b.WriteString("N*")
		b.WriteString(formatFloat(n.Slope))
		b.WriteString(formatSigned(n.Offset))
		return
	}
	b.WriteString("if(lt(N,")
	b.WriteString(strconv.Itoa(n.Threshold))
	b.WriteString("),")
	n.Left.write(b)
	b.WriteByte(',')
	n.Right.write(b)
	b.WriteByte(')')
}

// formatFloat renders v in the shortest fixed-point form that round-trips,
// keeping a ".0" suffix on integral values.
func formatFloat(v float64) string {
	if v == 0 {
		v = 0 // drop the sign of -0
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".nN") {
		s += ".0"
	}
	return s
}

// formatSigned is formatFloat with an explicit leading sign.
func formatSigned(v float64) string {
	if v < 0 {
		return formatFloat(v)
	}
	return "+" + formatFloat(v)
}
