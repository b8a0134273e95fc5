package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/maauso/talks-reducer/internal/job"
	"github.com/maauso/talks-reducer/internal/media"
)

// barReporter draws one progress bar per long-running stage.
type barReporter struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

// newBarReporter returns a reporter writing to w, or nil when w is not a
// terminal so that redirected output stays free of control sequences.
func newBarReporter(w io.Writer) job.Reporter {
	if !isTerminal(w) {
		return nil
	}
	return &barReporter{w: w}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

var stageLabels = map[job.Stage]string{
	job.StageExtract: "Extracting audio",
	job.StageRender:  "Rendering video",
}

func (r *barReporter) Begin(stage job.Stage, total int) media.ProgressFunc {
	label, ok := stageLabels[stage]
	if !ok {
		label = string(stage)
	}
	if total <= 0 {
		total = -1 // spinner
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.w),
		progressbar.OptionSetDescription(label),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetPredictTime(true),
	)
	r.bar = bar
	return func(frame int) {
		if total > 0 && frame > total {
			frame = total
		}
		_ = bar.Set(frame)
	}
}

func (r *barReporter) End(job.Stage) {
	if r.bar == nil {
		return
	}
	_ = r.bar.Finish()
	r.bar = nil
	fmt.Fprintln(r.w)
}
