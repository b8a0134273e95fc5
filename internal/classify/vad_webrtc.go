//go:build cgo && webrtcvad

package classify

import "github.com/visvasity/webrtcvad"

type vadProcessor struct {
	vad *webrtcvad.VAD
}

func newVAD(mode int) (*vadProcessor, error) {
	vad, err := webrtcvad.New()
	if err != nil {
		return nil, err
	}
	// WebRTC VAD modes: 0 (quality) .. 3 (aggressive).
	if err := vad.SetMode(mode); err != nil {
		return nil, err
	}
	return &vadProcessor{vad: vad}, nil
}

func (v *vadProcessor) Process(sampleRate int, frame []byte) (bool, error) {
	return v.vad.Process(sampleRate, frame)
}
