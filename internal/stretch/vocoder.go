// Package stretch changes the duration of audio without changing its pitch.
package stretch

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// ErrInvalidSpeed is returned for a speed that is not a positive finite number.
var ErrInvalidSpeed = errors.New("stretch: speed must be a positive finite number")

// ErrInvalidFrame is returned when the frame length or hop cannot form a valid analysis grid.
var ErrInvalidFrame = errors.New("stretch: invalid frame length or hop")

const (
	// DefaultFrameLength is the analysis window size in samples.
	DefaultFrameLength = 2048
	// DefaultSynthesisHop is the distance between output frames in samples.
	DefaultSynthesisHop = DefaultFrameLength / 4

	normFloor = 1e-8
)

// Stretcher time-scales multichannel audio by a speed factor.
type Stretcher interface {
	Stretch(data [][]float64, speed float64) ([][]float64, error)
}

// PhaseVocoder is a phase-vocoder time-scale modifier. Frames are read from
// the input at an analysis hop of speed*SynthesisHop, their phases are
// advanced by the measured instantaneous frequency, and they are overlap-added
// at the synthesis hop. A PhaseVocoder holds no per-call state and may be
// shared between goroutines.
type PhaseVocoder struct {
	frameLength int
	hop         int
	window      []float64
}

// Option configures a PhaseVocoder.
type Option func(*PhaseVocoder)

// WithFrameLength sets the analysis window size.
func WithFrameLength(n int) Option {
	return func(p *PhaseVocoder) {
		p.frameLength = n
	}
}

// WithSynthesisHop sets the output hop size.
func WithSynthesisHop(n int) Option {
	return func(p *PhaseVocoder) {
		p.hop = n
	}
}

// NewPhaseVocoder creates a PhaseVocoder with the given options.
func NewPhaseVocoder(opts ...Option) (*PhaseVocoder, error) {
	p := &PhaseVocoder{
		frameLength: DefaultFrameLength,
		hop:         DefaultSynthesisHop,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.frameLength < 4 || p.frameLength%2 != 0 || p.hop <= 0 || p.hop > p.frameLength/2 {
		return nil, fmt.Errorf("%w: frame %d, hop %d", ErrInvalidFrame, p.frameLength, p.hop)
	}

	w := make([]float64, p.frameLength)
	for i := range w {
		w[i] = 1
	}
	p.window = window.Hann(w)
	return p, nil
}

// OutputLength returns the number of samples Stretch produces for n input
// samples at the given speed.
func OutputLength(n int, speed float64) int {
	return int(math.Round(float64(n) / speed))
}

// ValidateSpeed reports whether speed can be used for stretching.
func ValidateSpeed(speed float64) error {
	if math.IsNaN(speed) || math.IsInf(speed, 0) || speed <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidSpeed, speed)
	}
	return nil
}

// Stretch returns data played back speed times faster. Every output channel
// has OutputLength(len(channel), speed) samples.
func (p *PhaseVocoder) Stretch(data [][]float64, speed float64) ([][]float64, error) {
	if err := ValidateSpeed(speed); err != nil {
		return nil, err
	}

	out := make([][]float64, len(data))
	if len(data) == 0 {
		return out, nil
	}

	fft := fourier.NewFFT(p.frameLength)
	for c, ch := range data {
		out[c] = p.stretchChannel(fft, ch, speed)
	}
	return out, nil
}

func (p *PhaseVocoder) stretchChannel(fft *fourier.FFT, in []float64, speed float64) []float64 {
	target := OutputLength(len(in), speed)
	if target <= 0 {
		return []float64{}
	}

	n := p.frameLength
	half := n / 2
	bins := half + 1
	analysisHop := float64(p.hop) * speed
	frames := target/p.hop + n/p.hop + 1

	acc := make([]float64, frames*p.hop+n)
	norm := make([]float64, len(acc))

	frame := make([]float64, n)
	spectrum := make([]complex128, bins)
	prevPhase := make([]float64, bins)
	synthPhase := make([]float64, bins)
	prevPos := 0

	for f := 0; f < frames; f++ {
		pos := int(math.Round(float64(f)*analysisHop)) - half
		for i := range frame {
			j := pos + i
			if j >= 0 && j < len(in) {
				frame[i] = in[j] * p.window[i]
			} else {
				frame[i] = 0
			}
		}
		spectrum = fft.Coefficients(spectrum, frame)

		actualHop := float64(pos - prevPos)
		for k, x := range spectrum {
			mag, phase := cmplx.Abs(x), cmplx.Phase(x)
			if f == 0 {
				synthPhase[k] = phase
			} else {
				omega := 2 * math.Pi * float64(k) / float64(n)
				inst := omega
				if actualHop != 0 {
					delta := wrapPhase(phase - prevPhase[k] - omega*actualHop)
					inst = omega + delta/actualHop
				}
				synthPhase[k] = wrapPhase(synthPhase[k] + inst*float64(p.hop))
			}
			prevPhase[k] = phase
			spectrum[k] = cmplx.Rect(mag, synthPhase[k])
		}
		prevPos = pos

		frame = fft.Sequence(frame, spectrum)
		base := f * p.hop
		for i, v := range frame {
			w := p.window[i]
			acc[base+i] += v / float64(n) * w
			norm[base+i] += w * w
		}
	}

	result := make([]float64, target)
	for i := range result {
		j := half + i
		if norm[j] > normFloor {
			result[i] = acc[j] / norm[j]
		} else {
			result[i] = acc[j]
		}
	}
	return result
}

// wrapPhase maps an angle into [-pi, pi).
func wrapPhase(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// Verify interface implementation at compile time.
var _ Stretcher = (*PhaseVocoder)(nil)
