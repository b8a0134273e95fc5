//go:build !cgo || !webrtcvad

package classify

import "errors"

var errVADUnavailable = errors.New("webrtcvad unavailable: build with cgo and -tags webrtcvad")

type vadProcessor struct{}

func newVAD(int) (*vadProcessor, error) {
	return nil, errVADUnavailable
}

func (v *vadProcessor) Process(int, []byte) (bool, error) {
	return false, errVADUnavailable
}
