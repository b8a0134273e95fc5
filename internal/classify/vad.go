package classify

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/maauso/talks-reducer/internal/audio"
)

// ErrInvalidVADMode is returned when the WebRTC aggressiveness is outside 0..3.
var ErrInvalidVADMode = errors.New("classify: vad mode must be within 0..3")

const (
	// vadSampleRate is the rate the detector runs at; the track is resampled
	// to it at this boundary only.
	vadSampleRate = 16000
	vadFrameMs    = 30

	// DefaultVADMode is the most aggressive WebRTC mode.
	DefaultVADMode = 3
)

// VAD marks frames that overlap detected voice activity. Speech windows are
// mapped onto the frame grid by flooring their start and ceiling their end,
// so a frame that is even partly voiced counts as sounded.
type VAD struct {
	mu       sync.Mutex
	detector speechDetector
	mode     int
}

// speechDetector scores one window of 16-bit little-endian mono PCM.
type speechDetector interface {
	Process(sampleRate int, frame []byte) (bool, error)
}

// NewVAD creates a detector with the given aggressiveness.
func NewVAD(mode int) (*VAD, error) {
	if mode < 0 || mode > 3 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidVADMode, mode)
	}
	detector, err := newVAD(mode)
	if err != nil {
		return nil, fmt.Errorf("create vad: %w", err)
	}
	return &VAD{detector: detector, mode: mode}, nil
}

// Mode returns the configured aggressiveness.
func (v *VAD) Mode() int {
	return v.mode
}

// Classify implements Classifier.
func (v *VAD) Classify(in Input) ([]bool, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	mono := in.Buffer.Downmix()
	resampled := audio.Resample(mono, in.Buffer.SampleRate, vadSampleRate)
	pcm := audio.ToPCM16(resampled, audio.FullScale(in.Buffer.BitDepth))

	windowSamples := vadSampleRate * vadFrameMs / 1000
	ratio := float64(in.Buffer.SampleRate) / vadSampleRate
	frame := make([]byte, windowSamples*2)
	loud := make([]bool, in.FrameCount)

	v.mu.Lock()
	defer v.mu.Unlock()

	for w := 0; (w+1)*windowSamples <= len(pcm); w++ {
		window := pcm[w*windowSamples : (w+1)*windowSamples]
		for i, s := range window {
			binary.LittleEndian.PutUint16(frame[i*2:], uint16(s))
		}
		speech, err := v.detector.Process(vadSampleRate, frame)
		if err != nil {
			return nil, fmt.Errorf("vad window %d: %w", w, err)
		}
		if speech {
			start := float64(w*windowSamples) * ratio
			end := float64((w+1)*windowSamples) * ratio
			markSpeech(loud, start, end, in.SamplesPerFrame)
		}
	}
	return loud, nil
}

// markSpeech flags every frame touched by the sample range [start, end).
func markSpeech(loud []bool, start, end, samplesPerFrame float64) {
	if end <= start {
		return
	}
	first := int(math.Floor(start / samplesPerFrame))
	last := int(math.Ceil(end / samplesPerFrame))
	if first < 0 {
		first = 0
	}
	if last > len(loud) {
		last = len(loud)
	}
	for i := first; i < last; i++ {
		loud[i] = true
	}
}

// Verify interface implementation at compile time.
var _ Classifier = (*VAD)(nil)
