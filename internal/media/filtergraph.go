package media

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrInvalidFrameRate is returned when the frame rate is not a positive number.
var ErrInvalidFrameRate = errors.New("invalid frame rate: must be positive")

// SmallScale is the scale filter applied in small mode.
const SmallScale = "scale=-2:720"

// FilterGraph builds the video filter graph: an optional downscale, a
// constant frame rate resample, then the setpts time remap. Commas inside the
// expression are escaped so the graph parser keeps it as a single filter.
func FilterGraph(frameRate float64, ptsExpr string, small bool) (string, error) {
	if math.IsNaN(frameRate) || math.IsInf(frameRate, 0) || frameRate <= 0 {
		return "", fmt.Errorf("%w: got %v", ErrInvalidFrameRate, frameRate)
	}

	parts := make([]string, 0, 3)
	if small {
		parts = append(parts, SmallScale)
	}
	parts = append(parts,
		"fps=fps="+strconv.FormatFloat(frameRate, 'f', -1, 64),
		"setpts="+strings.ReplaceAll(ptsExpr, ",", `\,`),
	)
	return strings.Join(parts, ","), nil
}

// WriteFilterScript writes graph to path for use with -filter_script:v.
func WriteFilterScript(path, graph string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create filter script directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(graph), 0o600); err != nil {
		return fmt.Errorf("write filter script: %w", err)
	}
	return nil
}
