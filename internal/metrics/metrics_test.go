package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value returns the sum of all samples of the named family matching label, or
// the sample count for histograms.
func value(t *testing.T, m *Metrics, name, label string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if label != "" {
				matched := false
				for _, lp := range metric.GetLabel() {
					if lp.GetValue() == label {
						matched = true
					}
				}
				if !matched {
					continue
				}
			}
			switch {
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				total += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.RunFinished("COMPLETED")
	m.RunFinished("COMPLETED")
	m.RunFinished("FAILED")
	m.ChunksBuilt(3, 4)
	m.FramesProcessed(300, 120)
	m.ObserveStage(StageRender, 2*time.Second)

	assert.InDelta(t, 2, value(t, m, "talks_reducer_runs_total", "COMPLETED"), 0)
	assert.InDelta(t, 1, value(t, m, "talks_reducer_runs_total", "FAILED"), 0)
	assert.InDelta(t, 3, value(t, m, "talks_reducer_chunks_total", "sounded"), 0)
	assert.InDelta(t, 4, value(t, m, "talks_reducer_chunks_total", "silent"), 0)
	assert.InDelta(t, 300, value(t, m, "talks_reducer_input_frames_total", ""), 0)
	assert.InDelta(t, 120, value(t, m, "talks_reducer_output_frames_total", ""), 0)
	assert.InDelta(t, 1, value(t, m, "talks_reducer_stage_duration_seconds", StageRender), 0)
	assert.InDelta(t, 1, value(t, m, "talks_reducer_output_ratio_percent", ""), 0)
}

func TestMetrics_IsolatedRegistries(t *testing.T) {
	a, b := New(), New()
	a.RunFinished("COMPLETED")
	assert.InDelta(t, 1, value(t, a, "talks_reducer_runs_total", "COMPLETED"), 0)
	assert.InDelta(t, 0, value(t, b, "talks_reducer_runs_total", "COMPLETED"), 0)
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.FramesProcessed(10, 5)

	path := filepath.Join(t.TempDir(), "talks_reducer.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path) // #nosec G304 - test temp path
	require.NoError(t, err)
	assert.Contains(t, string(data), "talks_reducer_input_frames_total 10")
	assert.Contains(t, string(data), "talks_reducer_output_ratio_percent_count 1")

	err = m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom"))
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	r.RunFinished("COMPLETED")
	r.ChunksBuilt(1, 1)
	r.FramesProcessed(1, 1)
	r.ObserveStage(StageProbe, time.Second)
}
