package classify

import (
	"fmt"
	"math"
)

// DefaultThreshold is the normalized peak level at which a frame counts as sounded.
const DefaultThreshold = 0.03

// Volume marks a frame sounded when its peak absolute sample, relative to the
// track's global peak, reaches Threshold.
type Volume struct {
	threshold float64
}

// NewVolume returns a Volume classifier. threshold must lie in [0, 1].
func NewVolume(threshold float64) (*Volume, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}
	return &Volume{threshold: threshold}, nil
}

// Threshold returns the configured level.
func (v *Volume) Threshold() float64 {
	return v.threshold
}

// Classify implements Classifier. A silent track (MaxVolume == 0) yields no
// sounded frames.
func (v *Volume) Classify(in Input) ([]bool, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	loud := make([]bool, in.FrameCount)
	if in.MaxVolume <= 0 {
		return loud, nil
	}

	for i := range loud {
		start, end := in.bounds(i)
		if start >= end {
			continue
		}
		level := in.Buffer.PeakRange(start, end) / in.MaxVolume
		loud[i] = level >= v.threshold
	}
	return loud, nil
}

// Verify interface implementation at compile time.
var _ Classifier = (*Volume)(nil)
