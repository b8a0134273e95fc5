package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maauso/talks-reducer/internal/audio"
	"github.com/maauso/talks-reducer/internal/chunk"
	"github.com/maauso/talks-reducer/internal/media"
	"github.com/maauso/talks-reducer/internal/metrics"
	"github.com/maauso/talks-reducer/internal/pipeline"
	"github.com/maauso/talks-reducer/internal/storage"
)

// Static errors for the file-level workflow.
var (
	// ErrEmptyInput is returned when no input path is given.
	ErrEmptyInput = errors.New("input path is empty")
	// ErrNoAudio is returned when the input has no audio stream to re-time.
	ErrNoAudio = errors.New("input has no audio stream")
	// ErrNoVideo is returned when the input has no video stream to render.
	ErrNoVideo = errors.New("input has no video stream")
	// ErrOutputIsInput is returned when the output path would overwrite the input.
	ErrOutputIsInput = errors.New("output path equals input path")
)

// File names inside a run workspace.
const (
	extractedWAV = "audio.wav"
	retimedWAV   = "spedup.wav"
	filterScript = "filterGraph.txt"
)

// Reducer re-times a decoded audio track. *pipeline.Reducer satisfies it.
type Reducer interface {
	Run(req pipeline.Request) (*pipeline.Result, error)
}

// Reporter receives progress for the long-running stages. Begin returns the
// callback fed with completed frames; End is called once the stage returns.
type Reporter interface {
	Begin(stage Stage, total int) media.ProgressFunc
	End(stage Stage)
}

type nopReporter struct{}

func (nopReporter) Begin(Stage, int) media.ProgressFunc { return nil }
func (nopReporter) End(Stage)                          {}

// Input describes one file to process.
type Input struct {
	// Path is the source media file.
	Path string
	// Output is the destination; empty derives it from Path with OutputPath.
	Output string
	// Small selects the 720p render with lower audio bitrate.
	Small bool
	// PushToS3 uploads the rendered file after a successful render.
	PushToS3 bool
}

// Output is the outcome of Process.
type Output struct {
	JobID        string
	Status       Status
	InputPath    string
	OutputPath   string
	OutputURL    string
	FrameRate    float64
	FrameCount   int
	OutputFrames int
	Chunks       []chunk.Chunk
	// Expression maps output frames back to source timestamps.
	Expression string
	Elapsed    time.Duration
	Error      string
}

// Service runs the file-level workflow: probe, extract, re-time, render and
// optionally upload. Each call to Process creates and tracks one Job.
type Service struct {
	repo      Repository
	media     media.Processor
	extractor audio.Extractor
	reducer   Reducer
	store     storage.Storage
	logger    *slog.Logger

	recorder          metrics.Recorder
	reporter          Reporter
	sampleRate        int
	channels          int
	fallbackFrameRate float64
	s3Prefix          string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRecorder sets the metrics recorder. Defaults to metrics.Nop.
func WithRecorder(r metrics.Recorder) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithReporter sets the progress reporter. Defaults to a no-op.
func WithReporter(r Reporter) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.reporter = r
		}
	}
}

// WithSampleRate sets the rate audio is extracted and re-timed at.
func WithSampleRate(rate int) ServiceOption {
	return func(s *Service) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// WithFallbackFrameRate sets the frame rate used when ffprobe reports none.
func WithFallbackFrameRate(rate float64) ServiceOption {
	return func(s *Service) {
		if rate > 0 {
			s.fallbackFrameRate = rate
		}
	}
}

// WithS3Prefix sets the key prefix for uploaded outputs.
func WithS3Prefix(prefix string) ServiceOption {
	return func(s *Service) {
		s.s3Prefix = prefix
	}
}

// NewService creates a Service. A nil logger uses slog.Default().
func NewService(
	repo Repository,
	processor media.Processor,
	extractor audio.Extractor,
	reducer Reducer,
	store storage.Storage,
	logger *slog.Logger,
	opts ...ServiceOption,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := audio.DefaultExtractOpts()
	s := &Service{
		repo:              repo,
		media:             processor,
		extractor:         extractor,
		reducer:           reducer,
		store:             store,
		logger:            logger,
		recorder:          metrics.Nop{},
		reporter:          nopReporter{},
		sampleRate:        defaults.SampleRate,
		channels:          defaults.Channels,
		fallbackFrameRate: 30,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OutputPath derives the default output file for input: the same directory
// and extension with "_speedup" (or "_speedup_small") appended to the name.
func OutputPath(input string, small bool) string {
	ext := filepath.Ext(input)
	suffix := "_speedup"
	if small {
		suffix = "_speedup_small"
	}
	return strings.TrimSuffix(input, ext) + suffix + ext
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// Tally counts the jobs this service has run, by status.
func (s *Service) Tally(ctx context.Context) (map[Status]int, error) {
	return s.repo.Tally(ctx)
}

// Process re-times one input file. The returned Output is non-nil whenever a
// job was created, including on failure.
func (s *Service) Process(ctx context.Context, in Input) (*Output, error) {
	if strings.TrimSpace(in.Path) == "" {
		return nil, ErrEmptyInput
	}
	output := in.Output
	if output == "" {
		output = OutputPath(in.Path, in.Small)
	}
	if filepath.Clean(output) == filepath.Clean(in.Path) {
		return nil, fmt.Errorf("%w: %s", ErrOutputIsInput, output)
	}

	job := New(in.Path)
	job.Small = in.Small
	job.OutputPath = output

	logger := s.logger.With(slog.String("job_id", job.ID), slog.String("input", in.Path))
	logger.Info("processing file",
		slog.String("output", output),
		slog.Bool("small", in.Small),
		slog.Bool("push_to_s3", in.PushToS3),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	if err := job.Start(); err != nil {
		return nil, err
	}

	started := time.Now()
	runErr := s.run(ctx, job, in, output, logger)
	elapsed := time.Since(started)

	switch {
	case runErr == nil:
		_ = job.Complete()
	case ctx.Err() != nil:
		_ = job.Cancel(runErr.Error())
	default:
		_ = job.Fail(runErr.Error())
	}
	s.save(ctx, job, logger)
	s.recorder.RunFinished(strings.ToLower(string(job.GetStatus())))

	out := s.output(job, elapsed)
	if runErr != nil {
		logger.Error("processing failed",
			slog.String("stage", string(job.GetStage())),
			slog.String("error", runErr.Error()),
		)
		return out, runErr
	}

	logger.Info("processing completed",
		slog.String("output", out.OutputPath),
		slog.Int("input_frames", out.FrameCount),
		slog.Int("output_frames", out.OutputFrames),
		slog.Duration("elapsed", elapsed),
	)
	return out, nil
}

func (s *Service) run(ctx context.Context, job *Job, in Input, output string, logger *slog.Logger) error {
	var info *media.Info
	err := s.stage(ctx, job, StageProbe, logger, func() error {
		var err error
		info, err = s.media.Probe(ctx, in.Path)
		if err != nil {
			return fmt.Errorf("probe input: %w", err)
		}
		if !info.HasAudio() {
			return ErrNoAudio
		}
		if !info.HasVideo() {
			return ErrNoVideo
		}
		return nil
	})
	if err != nil {
		return err
	}

	frameRate := info.FrameRate()
	if frameRate <= 0 {
		logger.Warn("frame rate unavailable, using fallback", slog.Float64("frame_rate", s.fallbackFrameRate))
		frameRate = s.fallbackFrameRate
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	lock, err := storage.LockFile(output)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release output lock", slog.String("error", err.Error()))
		}
	}()

	workspace, err := s.store.Workspace(ctx, filepath.Base(in.Path))
	if err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	defer func() {
		// Cleanup uses a fresh context so a cancelled run still removes its files.
		if err := s.store.Cleanup(context.WithoutCancel(ctx), []string{workspace}); err != nil {
			logger.Warn("failed to clean up workspace", slog.String("error", err.Error()))
		}
	}()

	extracted := filepath.Join(workspace, extractedWAV)
	err = s.stage(ctx, job, StageExtract, logger, func() error {
		total := int(info.DurationSeconds() * frameRate)
		progress := s.reporter.Begin(StageExtract, total)
		defer s.reporter.End(StageExtract)

		bitrate := media.DefaultAudioBitrate
		if in.Small {
			bitrate = media.SmallAudioBitrate
		}
		if err := s.extractor.Extract(ctx, in.Path, extracted, audio.ExtractOpts{
			SampleRate: s.sampleRate,
			Channels:   s.channels,
			Bitrate:    bitrate,
		}); err != nil {
			return fmt.Errorf("extract audio: %w", err)
		}
		if progress != nil {
			progress(total)
		}
		return nil
	})
	if err != nil {
		return err
	}

	var result *pipeline.Result
	err = s.stage(ctx, job, StageReduce, logger, func() error {
		buf, err := audio.ReadWAVFile(extracted)
		if err != nil {
			return fmt.Errorf("read extracted audio: %w", err)
		}
		result, err = s.reducer.Run(pipeline.Request{Audio: buf, FrameRate: frameRate})
		if err != nil {
			return fmt.Errorf("re-time audio: %w", err)
		}
		if err := audio.WriteWAVFile(filepath.Join(workspace, retimedWAV), result.Audio, audio.DefaultOutputBitDepth); err != nil {
			return fmt.Errorf("write re-timed audio: %w", err)
		}
		graph, err := media.FilterGraph(frameRate, result.PTSExpression, in.Small)
		if err != nil {
			return fmt.Errorf("build filter graph: %w", err)
		}
		if err := media.WriteFilterScript(filepath.Join(workspace, filterScript), graph); err != nil {
			return fmt.Errorf("write filter script: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	job.SetResult(frameRate, result.FrameCount, result.OutputFrames, result.Chunks)
	job.SetExpression(result.Expression)
	s.recorder.ChunksBuilt(chunk.Counts(result.Chunks))
	s.recorder.FramesProcessed(result.FrameCount, result.OutputFrames)
	logger.Info("track re-timed",
		slog.Float64("frame_rate", frameRate),
		slog.Int("chunks", len(result.Chunks)),
		slog.Int("input_frames", result.FrameCount),
		slog.Int("output_frames", result.OutputFrames),
	)

	err = s.stage(ctx, job, StageRender, logger, func() error {
		report := s.reporter.Begin(StageRender, result.OutputFrames)
		defer s.reporter.End(StageRender)

		progress := func(frame int) {
			if result.OutputFrames > 0 {
				job.UpdateProgress(stageProgress[StageRender] +
					(stageProgress[StageUpload]-stageProgress[StageRender])*min(frame, result.OutputFrames)/result.OutputFrames)
			}
			if report != nil {
				report(frame)
			}
		}
		if err := s.media.Render(ctx, media.RenderOpts{
			Input:        in.Path,
			Audio:        filepath.Join(workspace, retimedWAV),
			FilterScript: filepath.Join(workspace, filterScript),
			Output:       output,
			Small:        in.Small,
		}, progress); err != nil {
			return fmt.Errorf("render output: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	job.SetOutput(output, "")

	if !in.PushToS3 {
		return nil
	}
	return s.stage(ctx, job, StageUpload, logger, func() error {
		url, err := s.upload(ctx, output)
		if err != nil {
			return err
		}
		job.SetOutput(output, url)
		logger.Info("output uploaded", slog.String("url", url))
		return nil
	})
}

func (s *Service) upload(ctx context.Context, output string) (string, error) {
	reader, err := s.store.Open(ctx, output)
	if err != nil {
		return "", fmt.Errorf("open output: %w", err)
	}
	defer func() { _ = reader.Close() }()

	url, err := s.store.Upload(ctx, s.s3Prefix+filepath.Base(output), reader)
	if err != nil {
		return "", fmt.Errorf("upload output: %w", err)
	}
	return url, nil
}

// stage marks job as being in stage, runs fn and records its duration.
func (s *Service) stage(ctx context.Context, job *Job, stage Stage, logger *slog.Logger, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job.SetStage(stage)
	s.save(ctx, job, logger)

	started := time.Now()
	err := fn()
	s.recorder.ObserveStage(string(stage), time.Since(started))
	logger.Debug("stage finished",
		slog.String("stage", string(stage)),
		slog.Duration("duration", time.Since(started)),
		slog.Bool("ok", err == nil),
	)
	return err
}

func (s *Service) save(ctx context.Context, job *Job, logger *slog.Logger) {
	if err := s.repo.Save(context.WithoutCancel(ctx), job); err != nil {
		logger.Warn("failed to save job", slog.String("error", err.Error()))
	}
}

func (s *Service) output(job *Job, elapsed time.Duration) *Output {
	snapshot := job.Clone()
	return &Output{
		JobID:        snapshot.ID,
		Status:       snapshot.Status,
		InputPath:    snapshot.InputPath,
		OutputPath:   snapshot.OutputPath,
		OutputURL:    snapshot.OutputURL,
		FrameRate:    snapshot.FrameRate,
		FrameCount:   snapshot.FrameCount,
		OutputFrames: snapshot.OutputFrames,
		Chunks:       snapshot.Chunks,
		Expression:   snapshot.Expression,
		Elapsed:      elapsed,
		Error:        snapshot.Error,
	}
}
