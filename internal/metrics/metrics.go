// Package metrics records reducer runs as Prometheus collectors. A CLI run has
// no scrape endpoint, so the registry is exported in the node-exporter
// textfile format when a metrics file is configured.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage names used as label values for stage timings.
const (
	StageProbe   = "probe"
	StageExtract = "extract"
	StageReduce  = "reduce"
	StageRender  = "render"
	StageUpload  = "upload"
)

// Recorder is what the job service reports to. Nop satisfies it for callers
// that do not export metrics.
type Recorder interface {
	ObserveStage(stage string, d time.Duration)
	RunFinished(status string)
	ChunksBuilt(sounded, silent int)
	FramesProcessed(input, output int)
}

// Metrics contains all Prometheus metrics for reducer runs.
type Metrics struct {
	registry *prometheus.Registry

	Runs           *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	Chunks         *prometheus.CounterVec
	InputFrames    prometheus.Counter
	OutputFrames   prometheus.Counter
	CompressionPct prometheus.Histogram
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talks_reducer_runs_total",
			Help: "Total number of processed input files by final status",
		}, []string{"status"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "talks_reducer_stage_duration_seconds",
			Help:    "Time spent in each processing stage",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7 minutes
		}, []string{"stage"}),
		Chunks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talks_reducer_chunks_total",
			Help: "Total number of chunks built by speed class",
		}, []string{"class"}),
		InputFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "talks_reducer_input_frames_total",
			Help: "Total number of source video frames classified",
		}),
		OutputFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "talks_reducer_output_frames_total",
			Help: "Total number of frames in re-timed outputs",
		}),
		CompressionPct: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "talks_reducer_output_ratio_percent",
			Help:    "Output length as a percentage of input length",
			Buckets: prometheus.LinearBuckets(10, 10, 10), // 10% to 100%
		}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RunFinished counts a finished run.
func (m *Metrics) RunFinished(status string) {
	m.Runs.WithLabelValues(status).Inc()
}

// ChunksBuilt counts chunks per speed class.
func (m *Metrics) ChunksBuilt(sounded, silent int) {
	m.Chunks.WithLabelValues("sounded").Add(float64(sounded))
	m.Chunks.WithLabelValues("silent").Add(float64(silent))
}

// FramesProcessed records input and output frame counts of one run.
func (m *Metrics) FramesProcessed(input, output int) {
	m.InputFrames.Add(float64(input))
	m.OutputFrames.Add(float64(output))
	if input > 0 {
		m.CompressionPct.Observe(100 * float64(output) / float64(input))
	}
}

// WriteTextfile writes the registry to path in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Nop is a Recorder that discards everything.
type Nop struct{}

func (Nop) ObserveStage(string, time.Duration) {}
func (Nop) RunFinished(string)                 {}
func (Nop) ChunksBuilt(int, int)               {}
func (Nop) FramesProcessed(int, int)           {}

var (
	_ Recorder = (*Metrics)(nil)
	_ Recorder = Nop{}
)
