// Package config provides configuration loading from defaults, an optional
// TOML file and environment variables. Command line flags are applied on top
// by the CLI before validation.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/sethvargo/go-envconfig"
)

// Configuration errors.
var (
	// ErrInvalidConfig is returned when a field fails validation.
	ErrInvalidConfig = errors.New("config: invalid configuration")
	// ErrS3Required is returned when uploads are requested without S3 settings.
	ErrS3Required = errors.New("config: push to S3 requires S3_BUCKET and S3_REGION")
)

// Classifier kinds accepted by the configuration.
const (
	ClassifierVolume = "volume"
	ClassifierVAD    = "vad"
)

// Config holds the re-timing tunables and the run environment.
// Every env tag uses overwrite so that values from Default() and the TOML
// file survive when the variable is unset.
type Config struct {
	// Re-timing settings
	SilentThreshold float64 `toml:"silent_threshold" env:"TALKS_REDUCER_SILENT_THRESHOLD, overwrite" validate:"gte=0,lte=1" json:"silent_threshold"`
	SilentSpeed     float64 `toml:"silent_speed" env:"TALKS_REDUCER_SILENT_SPEED, overwrite" validate:"gt=0" json:"silent_speed"`
	SoundedSpeed    float64 `toml:"sounded_speed" env:"TALKS_REDUCER_SOUNDED_SPEED, overwrite" validate:"gt=0" json:"sounded_speed"`
	FrameMargin     int     `toml:"frame_margin" env:"TALKS_REDUCER_FRAME_MARGIN, overwrite" validate:"gte=0" json:"frame_margin"`
	FadeSamples     int     `toml:"audio_fade_envelope_size" env:"TALKS_REDUCER_FADE_SAMPLES, overwrite" validate:"gte=0" json:"audio_fade_envelope_size"`
	SampleRate      int     `toml:"sample_rate" env:"TALKS_REDUCER_SAMPLE_RATE, overwrite" validate:"gte=8000,lte=192000" json:"sample_rate"`
	FrameRate       float64 `toml:"frame_rate" env:"TALKS_REDUCER_FRAME_RATE, overwrite" validate:"gt=0" json:"frame_rate"` // used when ffprobe reports none

	// Classifier settings
	Classifier string `toml:"classifier" env:"TALKS_REDUCER_CLASSIFIER, overwrite" validate:"oneof=volume vad" json:"classifier"`
	VADMode    int    `toml:"vad_mode" env:"TALKS_REDUCER_VAD_MODE, overwrite" validate:"gte=0,lte=3" json:"vad_mode"`

	// Synthesis concurrency; zero picks the defaults
	BatchSize int `toml:"batch_size" env:"TALKS_REDUCER_BATCH_SIZE, overwrite" validate:"gte=0" json:"batch_size"`
	Workers   int `toml:"workers" env:"TALKS_REDUCER_WORKERS, overwrite" validate:"gte=0" json:"workers"`

	// Output settings
	Small bool `toml:"small" env:"TALKS_REDUCER_SMALL, overwrite" json:"small"`

	// Tooling and storage settings
	TempDir     string `toml:"temp_folder" env:"TALKS_REDUCER_TEMP_DIR, overwrite" json:"temp_dir"`
	FFmpegPath  string `toml:"ffmpeg_path" env:"FFMPEG_PATH, overwrite" json:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path" env:"FFPROBE_PATH, overwrite" json:"ffprobe_path"`
	MetricsFile string `toml:"metrics_file" env:"TALKS_REDUCER_METRICS_FILE, overwrite" json:"metrics_file,omitempty"`

	// Optional S3 settings
	PushToS3           bool   `toml:"push_to_s3" env:"TALKS_REDUCER_PUSH_TO_S3, overwrite" json:"push_to_s3"`
	S3Bucket           string `toml:"s3_bucket" env:"S3_BUCKET, overwrite" json:"s3_bucket,omitempty"`
	S3Region           string `toml:"s3_region" env:"S3_REGION, overwrite" json:"s3_region,omitempty"`
	S3Endpoint         string `toml:"s3_endpoint" env:"S3_ENDPOINT, overwrite" json:"s3_endpoint,omitempty"`
	S3Prefix           string `toml:"s3_prefix" env:"S3_PREFIX, overwrite" json:"s3_prefix,omitempty"`
	AWSAccessKeyID     string `toml:"-" env:"AWS_ACCESS_KEY_ID, overwrite" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `toml:"-" env:"AWS_SECRET_ACCESS_KEY, overwrite" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `toml:"log_format" env:"LOG_FORMAT, overwrite" validate:"oneof=text json" json:"log_format"`                   // "json" or "text"
	LogLevel  string `toml:"log_level" env:"LOG_LEVEL, overwrite" validate:"oneof=debug info warn warning error" json:"log_level"` // "debug", "info", "warn", "error"
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		SilentThreshold: 0.03,
		SilentSpeed:     4.0,
		SoundedSpeed:    1.0,
		FrameMargin:     2,
		FadeSamples:     400,
		SampleRate:      44100,
		FrameRate:       30,
		Classifier:      ClassifierVolume,
		VADMode:         3,
		FFmpegPath:      "ffmpeg",
		FFprobePath:     "ffprobe",
		LogFormat:       "text",
		LogLevel:        "info",
	}
}

// S3Enabled reports whether a bucket and region are both set.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load builds the configuration from Default(), then the TOML file at path
// when path is not empty, then environment variables. The result is not
// validated, so callers can apply flags first.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	file, err := os.Open(path) // #nosec G304 - path comes from the operator
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = file.Close() }()

	return c.decode(file)
}

func (c *Config) decode(r io.Reader) error {
	decoder := toml.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Validate checks field ranges and cross-field requirements.
func (c *Config) Validate() error {
	c.Classifier = strings.ToLower(strings.TrimSpace(c.Classifier))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q (value %v)", ErrInvalidConfig, fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.PushToS3 && !c.S3Enabled() {
		return ErrS3Required
	}
	return nil
}

// NewLogger builds the slog logger selected by LogFormat ("json" or text)
// and LogLevel. It writes to stderr; stdout carries the command output.
func (c *Config) NewLogger() *slog.Logger {
	return c.newLogger(os.Stderr)
}

func (c *Config) newLogger(w io.Writer) *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String renders the config for debug logs with credentials masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{SilentThreshold: %g, SilentSpeed: %g, SoundedSpeed: %g, FrameMargin: %d, FadeSamples: %d, SampleRate: %d, Classifier: %s, Small: %t, TempDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.SilentThreshold,
		c.SilentSpeed,
		c.SoundedSpeed,
		c.FrameMargin,
		c.FadeSamples,
		c.SampleRate,
		c.Classifier,
		c.Small,
		c.TempDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel maps debug, warn and error; anything else is info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
