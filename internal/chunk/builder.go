package chunk

import "fmt"

// Build widens every sounded frame by margin frames on each side and
// run-length encodes the result into spans covering [0, len(loud)).
//
// A frame is included when any frame within margin of it is sounded. The
// window test uses a prefix count, so the cost is linear in the frame count
// regardless of margin.
func Build(loud []bool, margin int) ([]Span, error) {
	n := len(loud)
	if n == 0 {
		return nil, ErrNoFrames
	}
	if margin < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrNegativeMargin, margin)
	}

	// prefix[i] = number of sounded frames in loud[:i]
	prefix := make([]int, n+1)
	for i, l := range loud {
		prefix[i+1] = prefix[i]
		if l {
			prefix[i+1]++
		}
	}

	include := func(i int) bool {
		lo := max(0, i-margin)
		hi := min(n, i+margin+1)
		return prefix[hi]-prefix[lo] > 0
	}

	spans := make([]Span, 0, 8)
	start := 0
	current := include(0)
	for i := 1; i < n; i++ {
		v := include(i)
		if v == current {
			continue
		}
		spans = append(spans, Span{Start: start, End: i, Loud: current})
		start = i
		current = v
	}
	spans = append(spans, Span{Start: start, End: n, Loud: current})
	return spans, nil
}

// Classed is implemented by Span and Chunk.
type Classed interface {
	IsLoud() bool
}

// Counts returns how many items are sounded and how many are silent.
func Counts[T Classed](items []T) (loud, silent int) {
	for _, item := range items {
		if item.IsLoud() {
			loud++
		} else {
			silent++
		}
	}
	return loud, silent
}
