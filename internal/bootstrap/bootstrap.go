// Package bootstrap provides dependency initialization for talks-reducer.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/talks-reducer/internal/audio"
	"github.com/maauso/talks-reducer/internal/classify"
	"github.com/maauso/talks-reducer/internal/config"
	"github.com/maauso/talks-reducer/internal/job"
	"github.com/maauso/talks-reducer/internal/media"
	"github.com/maauso/talks-reducer/internal/metrics"
	"github.com/maauso/talks-reducer/internal/pipeline"
	"github.com/maauso/talks-reducer/internal/storage"
	"github.com/maauso/talks-reducer/internal/stretch"
)

// Dependencies holds all initialized dependencies for a CLI run.
type Dependencies struct {
	Service *job.Service
	Reducer *pipeline.Reducer
	Metrics *metrics.Metrics
}

// NewDependencies creates and initializes all dependencies for the application.
// The reporter may be nil.
func NewDependencies(cfg *config.Config, logger *slog.Logger, reporter job.Reporter) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	reducer, err := NewReducer(cfg, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	processor := media.NewFFmpegProcessor(cfg.FFmpegPath, cfg.FFprobePath)
	extractor := audio.NewFFmpegExtractor(cfg.FFmpegPath)

	svc := job.NewService(
		job.NewMemoryRepository(),
		processor,
		extractor,
		reducer,
		store,
		logger,
		job.WithRecorder(m),
		job.WithReporter(reporter),
		job.WithSampleRate(cfg.SampleRate),
		job.WithFallbackFrameRate(cfg.FrameRate),
		job.WithS3Prefix(cfg.S3Prefix),
	)

	return &Dependencies{
		Service: svc,
		Reducer: reducer,
		Metrics: m,
	}, nil
}

// NewReducer builds the re-timing engine with the configured classifier.
func NewReducer(cfg *config.Config, logger *slog.Logger) (*pipeline.Reducer, error) {
	classifier, err := classify.New(classify.Options{
		Kind:      classify.Kind(cfg.Classifier),
		Threshold: cfg.SilentThreshold,
		VADMode:   cfg.VADMode,
	})
	if err != nil {
		return nil, fmt.Errorf("create classifier: %w", err)
	}

	vocoder, err := stretch.NewPhaseVocoder()
	if err != nil {
		return nil, fmt.Errorf("create phase vocoder: %w", err)
	}

	reducer, err := pipeline.New(classifier, vocoder, pipeline.Options{
		SilentSpeed:  cfg.SilentSpeed,
		SoundedSpeed: cfg.SoundedSpeed,
		FrameMargin:  cfg.FrameMargin,
		FadeSamples:  cfg.FadeSamples,
		BatchSize:    cfg.BatchSize,
		Workers:      cfg.Workers,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create reducer: %w", err)
	}

	logger.Debug("reducer configured",
		slog.String("classifier", cfg.Classifier),
		slog.Float64("silent_speed", cfg.SilentSpeed),
		slog.Float64("sounded_speed", cfg.SoundedSpeed),
		slog.Int("frame_margin", cfg.FrameMargin),
	)
	return reducer, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Debug("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Debug("local storage configured",
		slog.String("temp_dir", localStore.TempDir()),
	)
	return localStore, nil
}
