package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/maauso/talks-reducer/internal/chunk"
	"github.com/maauso/talks-reducer/internal/config"
	"github.com/maauso/talks-reducer/internal/job"
)

// report is the document written by --report.
type report struct {
	GeneratedAt time.Time      `toml:"generated_at"`
	Settings    reportSettings `toml:"settings"`
	Files       []fileReport   `toml:"files"`
}

type reportSettings struct {
	SilentThreshold float64 `toml:"silent_threshold"`
	SilentSpeed     float64 `toml:"silent_speed"`
	SoundedSpeed    float64 `toml:"sounded_speed"`
	FrameMargin     int     `toml:"frame_margin"`
	SampleRate      int     `toml:"sample_rate"`
	Classifier      string  `toml:"classifier"`
	Small           bool    `toml:"small"`
}

type fileReport struct {
	Input        string        `toml:"input"`
	Output       string        `toml:"output"`
	URL          string        `toml:"url,omitempty"`
	Status       string        `toml:"status"`
	Error        string        `toml:"error,omitempty"`
	FrameRate    float64       `toml:"frame_rate"`
	InputFrames  int           `toml:"input_frames"`
	OutputFrames int           `toml:"output_frames"`
	Seconds      float64       `toml:"seconds"`
	Expression   string        `toml:"expression,omitempty"`
	Chunks       []chunk.Chunk `toml:"chunks"`
}

func buildReport(cfg *config.Config, results []*job.Output, now time.Time) report {
	r := report{
		GeneratedAt: now.UTC().Truncate(time.Second),
		Settings: reportSettings{
			SilentThreshold: cfg.SilentThreshold,
			SilentSpeed:     cfg.SilentSpeed,
			SoundedSpeed:    cfg.SoundedSpeed,
			FrameMargin:     cfg.FrameMargin,
			SampleRate:      cfg.SampleRate,
			Classifier:      cfg.Classifier,
			Small:           cfg.Small,
		},
		Files: make([]fileReport, 0, len(results)),
	}
	for _, out := range results {
		r.Files = append(r.Files, fileReport{
			Input:        out.InputPath,
			Output:       out.OutputPath,
			URL:          out.OutputURL,
			Status:       string(out.Status),
			Error:        out.Error,
			FrameRate:    out.FrameRate,
			InputFrames:  out.FrameCount,
			OutputFrames: out.OutputFrames,
			Seconds:      out.Elapsed.Seconds(),
			Expression:   out.Expression,
			Chunks:       out.Chunks,
		})
	}
	return r
}

// writeReport writes the TOML report for results to path.
func writeReport(path string, cfg *config.Config, results []*job.Output, now time.Time) error {
	data, err := toml.Marshal(buildReport(cfg, results, now))
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
