package job

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/talks-reducer/internal/audio"
	"github.com/maauso/talks-reducer/internal/classify"
	"github.com/maauso/talks-reducer/internal/media"
	"github.com/maauso/talks-reducer/internal/pipeline"
	"github.com/maauso/talks-reducer/internal/storage"
	"github.com/maauso/talks-reducer/internal/stretch"
)

const (
	testRate      = 4800
	testFrameRate = 30
	testSPF       = testRate / testFrameRate
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProcessor probes a fixed Info and "renders" by writing a marker file.
type fakeProcessor struct {
	info      *media.Info
	probeErr  error
	renderErr error

	mu       sync.Mutex
	rendered []media.RenderOpts
	script   string
}

func (p *fakeProcessor) Probe(_ context.Context, _ string) (*media.Info, error) {
	if p.probeErr != nil {
		return nil, p.probeErr
	}
	return p.info, nil
}

func (p *fakeProcessor) Render(_ context.Context, opts media.RenderOpts, progress media.ProgressFunc) error {
	if p.renderErr != nil {
		return p.renderErr
	}
	script, err := os.ReadFile(opts.FilterScript) // #nosec G304 - test workspace
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.rendered = append(p.rendered, opts)
	p.script = string(script)
	p.mu.Unlock()

	if progress != nil {
		for frame := 10; frame <= 30; frame += 10 {
			progress(frame)
		}
	}
	return os.WriteFile(opts.Output, []byte("rendered"), 0o600)
}

// toneExtractor writes one second of tone followed by one second of silence.
type toneExtractor struct {
	err  error
	opts audio.ExtractOpts
}

func (e *toneExtractor) Extract(_ context.Context, _, outputWav string, opts audio.ExtractOpts) error {
	if e.err != nil {
		return e.err
	}
	e.opts = opts
	buf := audio.NewBuffer(opts.SampleRate, 1, 2*opts.SampleRate)
	for i := 0; i < opts.SampleRate; i++ {
		buf.Data[0][i] = 0.8 * math.Sin(2*math.Pi*200*float64(i)/float64(opts.SampleRate))
	}
	return audio.WriteWAVFile(outputWav, buf, audio.DefaultOutputBitDepth)
}

type failingReducer struct{}

func (failingReducer) Run(pipeline.Request) (*pipeline.Result, error) {
	return nil, errors.New("classifier exploded")
}

// uploadStore is a LocalStorage that accepts uploads.
type uploadStore struct {
	*storage.LocalStorage
	keys []string
	body string
}

func (s *uploadStore) Upload(_ context.Context, key string, data io.Reader) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.keys = append(s.keys, key)
	s.body = string(b)
	return "https://talks.s3.example.com/" + key, nil
}

type recordedStage struct {
	stage string
	total int
}

// recordingReporter captures Begin/End calls and the frames reported.
type recordingReporter struct {
	begun  []recordedStage
	ended  []Stage
	frames []int
}

func (r *recordingReporter) Begin(stage Stage, total int) media.ProgressFunc {
	r.begun = append(r.begun, recordedStage{string(stage), total})
	return func(frame int) { r.frames = append(r.frames, frame) }
}

func (r *recordingReporter) End(stage Stage) {
	r.ended = append(r.ended, stage)
}

// recordingMetrics captures what the service reports.
type recordingMetrics struct {
	stages   []string
	statuses []string
	sounded  int
	silent   int
	in, out  int
}

func (m *recordingMetrics) ObserveStage(stage string, _ time.Duration) {
	m.stages = append(m.stages, stage)
}
func (m *recordingMetrics) RunFinished(status string) { m.statuses = append(m.statuses, status) }
func (m *recordingMetrics) ChunksBuilt(sounded, silent int) {
	m.sounded += sounded
	m.silent += silent
}
func (m *recordingMetrics) FramesProcessed(in, out int) {
	m.in += in
	m.out += out
}

func videoInfo() *media.Info {
	return &media.Info{
		Streams: []media.Stream{
			{CodecType: "video", AvgFrameRate: "30/1", RFrameRate: "30/1"},
			{CodecType: "audio"},
		},
		Format: media.Format{Duration: "2.0"},
	}
}

func newReducer(t *testing.T) *pipeline.Reducer {
	t.Helper()
	classifier, err := classify.NewVolume(classify.DefaultThreshold)
	require.NoError(t, err)
	pv, err := stretch.NewPhaseVocoder(stretch.WithFrameLength(256), stretch.WithSynthesisHop(64))
	require.NoError(t, err)
	r, err := pipeline.New(classifier, pv, pipeline.DefaultOptions(), quietLogger())
	require.NoError(t, err)
	return r
}

type fixture struct {
	dir       string
	input     string
	repo      *MemoryRepository
	processor *fakeProcessor
	extractor *toneExtractor
	store     *uploadStore
	reporter  *recordingReporter
	metrics   *recordingMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "talk.mp4")
	require.NoError(t, os.WriteFile(input, []byte("source"), 0o600))

	local, err := storage.NewLocalStorage(filepath.Join(dir, "scratch"))
	require.NoError(t, err)

	return &fixture{
		dir:       dir,
		input:     input,
		repo:      NewMemoryRepository(),
		processor: &fakeProcessor{info: videoInfo()},
		extractor: &toneExtractor{},
		store:     &uploadStore{LocalStorage: local},
		reporter:  &recordingReporter{},
		metrics:   &recordingMetrics{},
	}
}

func (f *fixture) service(reducer Reducer) *Service {
	return NewService(f.repo, f.processor, f.extractor, reducer, f.store, quietLogger(),
		WithSampleRate(testRate),
		WithRecorder(f.metrics),
		WithReporter(f.reporter),
		WithS3Prefix("talks/"),
	)
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, nil, nil, nil, nil,
		WithSampleRate(0),
		WithFallbackFrameRate(-1),
		WithRecorder(nil),
		WithReporter(nil),
	)
	assert.NotNil(t, svc.logger)
	assert.Equal(t, 44100, svc.sampleRate)
	assert.Equal(t, 2, svc.channels)
	assert.Equal(t, 30.0, svc.fallbackFrameRate)
	assert.NotNil(t, svc.recorder)
	assert.NotNil(t, svc.reporter)

	svc = NewService(NewMemoryRepository(), nil, nil, nil, nil, nil,
		WithSampleRate(48000),
		WithFallbackFrameRate(25),
	)
	assert.Equal(t, 48000, svc.sampleRate)
	assert.Equal(t, 25.0, svc.fallbackFrameRate)
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		input string
		small bool
		want  string
	}{
		{"talk.mp4", false, "talk_speedup.mp4"},
		{"talk.mp4", true, "talk_speedup_small.mp4"},
		{"/videos/day 1/keynote.mkv", false, "/videos/day 1/keynote_speedup.mkv"},
		{"archive.tar.mov", false, "archive.tar_speedup.mov"},
		{"noext", true, "noext_speedup_small"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OutputPath(tt.input, tt.small), tt.input)
	}
}

func TestProcess_Success(t *testing.T) {
	f := newFixture(t)
	svc := f.service(newReducer(t))

	out, err := svc.Process(context.Background(), Input{Path: f.input})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, filepath.Join(f.dir, "talk_speedup.mp4"), out.OutputPath)
	assert.Empty(t, out.OutputURL)
	assert.Equal(t, 30.0, out.FrameRate)
	assert.Equal(t, 60, out.FrameCount)
	assert.NotEmpty(t, out.Chunks)
	assert.Less(t, out.OutputFrames, out.FrameCount, "silence should be shortened")
	assert.True(t, strings.HasSuffix(out.Expression, "/TB/FR"))

	data, err := os.ReadFile(out.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "rendered", string(data))

	// The render saw the re-timed audio and a setpts filter script.
	require.Len(t, f.processor.rendered, 1)
	assert.Equal(t, f.input, f.processor.rendered[0].Input)
	assert.True(t, strings.HasPrefix(f.processor.script, "fps=fps=30,setpts="), f.processor.script)
	assert.Equal(t, testRate, f.extractor.opts.SampleRate)
	assert.Equal(t, media.DefaultAudioBitrate, f.extractor.opts.Bitrate)

	// The workspace is gone and the output lock is released.
	entries, err := os.ReadDir(f.store.TempDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
	lock, err := storage.LockFile(out.OutputPath)
	require.NoError(t, err)
	require.NoError(t, lock.Unlock())

	// Job state is persisted.
	saved, err := svc.GetJob(context.Background(), out.JobID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, saved.Status)
	assert.Equal(t, StageDone, saved.Stage)
	assert.Equal(t, 100, saved.Progress)

	// Metrics and progress reporting.
	assert.Equal(t, []string{"probe", "extract", "reduce", "render"}, f.metrics.stages)
	assert.Equal(t, []string{"completed"}, f.metrics.statuses)
	assert.Equal(t, len(out.Chunks), f.metrics.sounded+f.metrics.silent)
	assert.Equal(t, 60, f.metrics.in)
	assert.Equal(t, out.OutputFrames, f.metrics.out)
	assert.Equal(t, []recordedStage{{"extract", 60}, {"render", out.OutputFrames}}, f.reporter.begun)
	assert.Equal(t, []Stage{StageExtract, StageRender}, f.reporter.ended)
	assert.Equal(t, []int{60, 10, 20, 30}, f.reporter.frames)
}

func TestProcess_SmallWithUpload(t *testing.T) {
	f := newFixture(t)
	svc := f.service(newReducer(t))
	output := filepath.Join(f.dir, "out", "short.mp4")

	out, err := svc.Process(context.Background(), Input{
		Path:     f.input,
		Output:   output,
		Small:    true,
		PushToS3: true,
	})
	require.NoError(t, err)

	assert.Equal(t, output, out.OutputPath)
	assert.Equal(t, "https://talks.s3.example.com/talks/short.mp4", out.OutputURL)
	assert.Equal(t, []string{"talks/short.mp4"}, f.store.keys)
	assert.Equal(t, "rendered", f.store.body)
	assert.True(t, f.processor.rendered[0].Small)
	assert.True(t, strings.HasPrefix(f.processor.script, media.SmallScale+","))
	assert.Equal(t, media.SmallAudioBitrate, f.extractor.opts.Bitrate)
	assert.Contains(t, f.metrics.stages, "upload")
}

func TestProcess_FallbackFrameRate(t *testing.T) {
	f := newFixture(t)
	f.processor.info = &media.Info{
		Streams: []media.Stream{{CodecType: "video", AvgFrameRate: "0/0"}, {CodecType: "audio"}},
		Format:  media.Format{Duration: "2.0"},
	}
	svc := NewService(f.repo, f.processor, f.extractor, newReducer(t), f.store, quietLogger(),
		WithSampleRate(testRate),
		WithFallbackFrameRate(24),
	)

	out, err := svc.Process(context.Background(), Input{Path: f.input})
	require.NoError(t, err)
	assert.Equal(t, 24.0, out.FrameRate)
	assert.Equal(t, 48, out.FrameCount)
}

func TestService_Tally(t *testing.T) {
	f := newFixture(t)
	ok := f.service(newReducer(t))
	_, err := ok.Process(context.Background(), Input{Path: f.input})
	require.NoError(t, err)

	broken := NewService(f.repo, f.processor, f.extractor, failingReducer{}, f.store, quietLogger(),
		WithSampleRate(testRate))
	_, err = broken.Process(context.Background(), Input{Path: f.input, Output: filepath.Join(f.dir, "other.mp4")})
	require.Error(t, err)

	counts, err := ok.Tally(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[Status]int{StatusCompleted: 1, StatusFailed: 1}, counts)
}

func TestProcess_InputErrors(t *testing.T) {
	f := newFixture(t)
	svc := f.service(newReducer(t))

	_, err := svc.Process(context.Background(), Input{Path: "  "})
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = svc.Process(context.Background(), Input{Path: f.input, Output: f.input})
	assert.ErrorIs(t, err, ErrOutputIsInput)

	jobs, _ := f.repo.List(context.Background())
	assert.Empty(t, jobs, "rejected inputs should not create jobs")
}

func TestProcess_Failures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*fixture)
		reducer   Reducer
		wantErr   error
		wantText  string
		wantStage Stage
	}{
		{
			name:      "probe error",
			setup:     func(f *fixture) { f.processor.probeErr = media.ErrFFprobeExecution },
			wantErr:   media.ErrFFprobeExecution,
			wantStage: StageProbe,
		},
		{
			name: "no audio stream",
			setup: func(f *fixture) {
				f.processor.info = &media.Info{Streams: []media.Stream{{CodecType: "video", AvgFrameRate: "30/1"}}}
			},
			wantErr:   ErrNoAudio,
			wantStage: StageProbe,
		},
		{
			name: "no video stream",
			setup: func(f *fixture) {
				f.processor.info = &media.Info{Streams: []media.Stream{{CodecType: "audio"}}}
			},
			wantErr:   ErrNoVideo,
			wantStage: StageProbe,
		},
		{
			name:      "extraction error",
			setup:     func(f *fixture) { f.extractor.err = errors.New("codec missing") },
			wantText:  "extract audio: codec missing",
			wantStage: StageExtract,
		},
		{
			name:      "reducer error",
			setup:     func(*fixture) {},
			reducer:   failingReducer{},
			wantText:  "re-time audio: classifier exploded",
			wantStage: StageReduce,
		},
		{
			name:      "render error",
			setup:     func(f *fixture) { f.processor.renderErr = &media.FFmpegError{Err: errors.New("exit status 1")} },
			wantText:  "render output",
			wantStage: StageRender,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)
			reducer := tt.reducer
			if reducer == nil {
				reducer = newReducer(t)
			}
			svc := f.service(reducer)

			out, err := svc.Process(context.Background(), Input{Path: f.input})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantText != "" {
				assert.Contains(t, err.Error(), tt.wantText)
			}

			require.NotNil(t, out)
			assert.Equal(t, StatusFailed, out.Status)
			assert.Equal(t, err.Error(), out.Error)
			assert.Equal(t, []string{"failed"}, f.metrics.statuses)

			saved, err := svc.GetJob(context.Background(), out.JobID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStage, saved.Stage)

			entries, err := os.ReadDir(f.store.TempDir())
			if err == nil {
				assert.Empty(t, entries, "workspace should be removed after failure")
			}
		})
	}
}

func TestProcess_UploadWithoutS3(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.repo, f.processor, f.extractor, newReducer(t), f.store.LocalStorage, quietLogger(),
		WithSampleRate(testRate),
	)

	out, err := svc.Process(context.Background(), Input{Path: f.input, PushToS3: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrS3NotConfigured)
	assert.Equal(t, StatusFailed, out.Status)
	// The render itself succeeded.
	_, statErr := os.Stat(out.OutputPath)
	assert.NoError(t, statErr)
}

func TestProcess_LockedOutput(t *testing.T) {
	f := newFixture(t)
	svc := f.service(newReducer(t))
	output := OutputPath(f.input, false)

	lock, err := storage.LockFile(output)
	require.NoError(t, err)
	defer func() { _ = lock.Unlock() }()

	out, err := svc.Process(context.Background(), Input{Path: f.input})
	assert.ErrorIs(t, err, storage.ErrLocked)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Empty(t, f.processor.rendered)
}

func TestProcess_Cancelled(t *testing.T) {
	f := newFixture(t)
	svc := f.service(newReducer(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := svc.Process(ctx, Input{Path: f.input})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, out)
	assert.Equal(t, StatusCancelled, out.Status)
	assert.Contains(t, out.Error, context.Canceled.Error(), "the cancel reason is recorded")
	assert.Equal(t, []string{"cancelled"}, f.metrics.statuses)
}
