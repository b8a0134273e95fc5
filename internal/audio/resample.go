package audio

import (
	"math"

	"gonum.org/v1/gonum/dsp/window"
)

// Downmix averages all channels into a single mono channel.
func (b *Buffer) Downmix() []float64 {
	n := b.Len()
	mono := make([]float64, n)
	if len(b.Data) == 0 {
		return mono
	}
	for _, ch := range b.Data {
		for i, v := range ch {
			mono[i] += v
		}
	}
	inv := 1 / float64(len(b.Data))
	for i := range mono {
		mono[i] *= inv
	}
	return mono
}

// Resample converts samples from one rate to another by linear interpolation.
// It is intended for analysis paths (voice detection), not for output audio.
// When downsampling, the signal is first low-pass filtered below the new
// Nyquist frequency so content above it does not alias into the kept band.
func Resample(samples []float64, from, to int) []float64 {
	if from <= 0 || to <= 0 || len(samples) == 0 {
		return nil
	}
	if from == to {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}
	ratio := float64(from) / float64(to)
	n := int(math.Floor(float64(len(samples)) / ratio))
	out := make([]float64, n)

	at := func(i int) float64 { return samples[i] }
	if to < from {
		kernel := lowPassKernel(ratio)
		at = func(i int) float64 { return convolveAt(samples, kernel, i) }
	}

	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = at(last)
			continue
		}
		frac := pos - float64(idx)
		out[i] = at(idx)*(1-frac) + at(idx+1)*frac
	}
	return out
}

// antiAliasCutoff is the pass band edge as a fraction of the target Nyquist
// frequency; the Blackman transition band sits between it and Nyquist.
const antiAliasCutoff = 0.9

// lowPassKernel returns a Blackman-windowed sinc filter with unity DC gain
// for decimating by ratio.
func lowPassKernel(ratio float64) []float64 {
	half := int(math.Ceil(10 * ratio))
	fc := antiAliasCutoff * 0.5 / ratio // cycles per input sample
	kernel := make([]float64, 2*half+1)
	for k := range kernel {
		x := float64(k - half)
		if x == 0 {
			kernel[k] = 2 * fc
			continue
		}
		kernel[k] = math.Sin(2*math.Pi*fc*x) / (math.Pi * x)
	}
	window.Blackman(kernel)

	var sum float64
	for _, v := range kernel {
		sum += v
	}
	for k := range kernel {
		kernel[k] /= sum
	}
	return kernel
}

// convolveAt filters samples around index i, repeating the edge samples
// beyond either end.
func convolveAt(samples, kernel []float64, i int) float64 {
	half := len(kernel) / 2
	last := len(samples) - 1
	var acc float64
	for k, h := range kernel {
		j := min(max(i+k-half, 0), last)
		acc += h * samples[j]
	}
	return acc
}

// ToPCM16 quantizes samples expressed relative to fullScale into signed
// 16-bit PCM, clipping out-of-range values.
func ToPCM16(samples []float64, fullScale float64) []int16 {
	if fullScale <= 0 {
		fullScale = 1
	}
	out := make([]int16, len(samples))
	for i, v := range samples {
		out[i] = clip16(v / fullScale * 32767)
	}
	return out
}

func clip16(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(math.Round(v))
	}
}
