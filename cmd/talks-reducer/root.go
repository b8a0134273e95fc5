package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/maauso/talks-reducer/internal/bootstrap"
	"github.com/maauso/talks-reducer/internal/config"
	"github.com/maauso/talks-reducer/internal/job"
	"github.com/maauso/talks-reducer/internal/media"
)

var errNoInputs = errors.New("no input files with an audio stream were found")

// summaryRows is how many chunks the per-file summary lists.
const summaryRows = 5

// cliOptions holds flags that are not part of config.Config.
type cliOptions struct {
	inputs     []string
	output     string
	configPath string
	reportPath string
}

// flagTarget mirrors the config fields exposed as flags. Values are copied
// onto the loaded config only for flags the user actually set, so file and
// environment values survive.
type flagTarget struct {
	tempDir      string
	threshold    float64
	soundedSpeed float64
	silentSpeed  float64
	frameMargin  int
	sampleRate   int
	small        bool
	classifier   string
	pushToS3     bool
	metricsFile  string
	logLevel     string
	logFormat    string
}

func newRootCommand() *cobra.Command {
	return buildRootCommand(&cliOptions{}, &flagTarget{})
}

// buildRootCommand binds the flags to opts and target.
func buildRootCommand(opts *cliOptions, target *flagTarget) *cobra.Command {
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "talks-reducer -i <file|dir>... [flags]",
		Short: "Speed up the silent parts of recorded talks",
		Long: "talks-reducer modifies a video so it plays at one speed while someone is talking\n" +
			"and at another, faster speed during silence.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.inputs = append(opts.inputs, args...)
			cfg, err := loadConfig(cmd.Context(), cmd.Flags(), opts, target)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&opts.inputs, "input_file", "i", nil, "Video file(s) to modify; directories expand to the files in them with an audio stream")
	flags.StringVarP(&opts.output, "output_file", "o", "", "Output file; only used when a single file is processed")
	flags.StringVarP(&opts.configPath, "config", "c", "", "TOML configuration file")
	flags.StringVar(&opts.reportPath, "report", "", "Write a TOML report with the chunks of every processed file")

	flags.StringVar(&target.tempDir, "temp_folder", defaults.TempDir, "Working directory for intermediate files")
	flags.Float64VarP(&target.threshold, "silent_threshold", "t", defaults.SilentThreshold, "Volume a frame's audio must reach to count as sounded")
	flags.Float64VarP(&target.soundedSpeed, "sounded_speed", "S", defaults.SoundedSpeed, "Playback speed of sounded frames")
	flags.Float64VarP(&target.silentSpeed, "silent_speed", "s", defaults.SilentSpeed, "Playback speed of silent frames")
	flags.IntVar(&target.frameMargin, "frame_margin", defaults.FrameMargin, "Silent frames kept at normal speed around sounded frames")
	flags.IntVar(&target.sampleRate, "sample_rate", defaults.SampleRate, "Sample rate audio is extracted and processed at")
	flags.BoolVar(&target.small, "small", defaults.Small, "Render a 720p output with 128k audio")
	flags.StringVar(&target.classifier, "classifier", defaults.Classifier, "Frame classifier: volume or vad")
	flags.BoolVar(&target.pushToS3, "push-to-s3", defaults.PushToS3, "Upload rendered files to the configured S3 bucket")
	flags.StringVar(&target.metricsFile, "metrics-file", defaults.MetricsFile, "Write Prometheus metrics in textfile format")
	flags.StringVar(&target.logLevel, "log-level", defaults.LogLevel, "Log level: debug, info, warn or error")
	flags.StringVar(&target.logFormat, "log-format", defaults.LogFormat, "Log format: text or json")

	return cmd
}

// loadConfig layers defaults, the config file, the environment and changed flags.
func loadConfig(ctx context.Context, flags *pflag.FlagSet, opts *cliOptions, target *flagTarget) (*config.Config, error) {
	cfg, err := config.Load(ctx, opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyFlags(flags, target, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(flags *pflag.FlagSet, target *flagTarget, cfg *config.Config) {
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("temp_folder", func() { cfg.TempDir = target.tempDir })
	set("silent_threshold", func() { cfg.SilentThreshold = target.threshold })
	set("sounded_speed", func() { cfg.SoundedSpeed = target.soundedSpeed })
	set("silent_speed", func() { cfg.SilentSpeed = target.silentSpeed })
	set("frame_margin", func() { cfg.FrameMargin = target.frameMargin })
	set("sample_rate", func() { cfg.SampleRate = target.sampleRate })
	set("small", func() { cfg.Small = target.small })
	set("classifier", func() { cfg.Classifier = target.classifier })
	set("push-to-s3", func() { cfg.PushToS3 = target.pushToS3 })
	set("metrics-file", func() { cfg.MetricsFile = target.metricsFile })
	set("log-level", func() { cfg.LogLevel = target.logLevel })
	set("log-format", func() { cfg.LogFormat = target.logFormat })
}

func run(ctx context.Context, cfg *config.Config, opts *cliOptions, stdout, stderr io.Writer) error {
	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	logger.Debug("configuration loaded", slog.String("config", cfg.String()))

	if len(opts.inputs) == 0 {
		return errNoInputs
	}

	deps, err := bootstrap.NewDependencies(cfg, logger, newBarReporter(stderr))
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	prober := media.NewFFmpegProcessor(cfg.FFmpegPath, cfg.FFprobePath)
	files := gatherInputs(ctx, prober, opts.inputs, logger)
	if len(files) == 0 {
		return errNoInputs
	}

	output := opts.output
	if output != "" && len(files) > 1 {
		logger.Warn("ignoring output file for multiple inputs", slog.String("output_file", output))
		output = ""
	}

	started := time.Now()
	var results []*job.Output
	rejected := 0 // inputs refused before a job was created
	for i, file := range files {
		fmt.Fprintf(stdout, "Processing file %d/%d '%s'\n", i+1, len(files), filepath.Base(file))

		out, err := deps.Service.Process(ctx, job.Input{
			Path:     file,
			Output:   output,
			Small:    cfg.Small,
			PushToS3: cfg.PushToS3,
		})
		if out != nil {
			results = append(results, out)
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if out == nil {
				rejected++
			}
			fmt.Fprintf(stdout, "Failed: %v\n", err)
			continue
		}

		fmt.Fprintln(stdout, renderChunkSummary(out.Chunks, summaryRows))
		fmt.Fprintf(stdout, "Output: %s (%d -> %d frames)\n", out.OutputPath, out.FrameCount, out.OutputFrames)
		if out.OutputURL != "" {
			fmt.Fprintf(stdout, "Uploaded: %s\n", out.OutputURL)
		}
	}

	fmt.Fprintf(stdout, "\nTime: %s\n", formatElapsed(time.Since(started)))

	if opts.reportPath != "" {
		if err := writeReport(opts.reportPath, cfg, results, time.Now()); err != nil {
			return err
		}
	}
	if cfg.MetricsFile != "" {
		if err := deps.Metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	counts, err := deps.Service.Tally(ctx)
	if err != nil {
		return fmt.Errorf("tally jobs: %w", err)
	}
	if failed := counts[job.StatusFailed] + rejected; failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

// formatElapsed renders d as "1h 2m 3.45s".
func formatElapsed(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := d.Seconds() - float64(hours*3600+minutes*60)
	return fmt.Sprintf("%dh %dm %.2fs", hours, minutes, seconds)
}
