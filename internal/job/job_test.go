package job

import (
	"errors"
	"sync"
	"testing"

	"github.com/maauso/talks-reducer/internal/chunk"
)

func TestNew(t *testing.T) {
	job := New("talk.mp4")

	if job.ID == "" {
		t.Error("expected non-empty ID")
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %s, got %s", StatusQueued, job.Status)
	}
	if job.InputPath != "talk.mp4" {
		t.Errorf("expected input path talk.mp4, got %q", job.InputPath)
	}
	if job.CreatedAt.IsZero() || !job.CreatedAt.Equal(job.UpdatedAt) {
		t.Error("expected CreatedAt and UpdatedAt to be set and equal")
	}
}

func TestNewWithID(t *testing.T) {
	job := NewWithID("custom-id", "in.mkv")
	if job.ID != "custom-id" {
		t.Errorf("expected ID custom-id, got %s", job.ID)
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %s, got %s", StatusQueued, job.Status)
	}
}

func TestJob_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"queued to running", StatusQueued, StatusRunning, true},
		{"queued to cancelled", StatusQueued, StatusCancelled, true},
		{"queued to completed", StatusQueued, StatusCompleted, false},
		{"queued to failed", StatusQueued, StatusFailed, false},
		{"running to completed", StatusRunning, StatusCompleted, true},
		{"running to failed", StatusRunning, StatusFailed, true},
		{"running to cancelled", StatusRunning, StatusCancelled, true},
		{"running to queued", StatusRunning, StatusQueued, false},
		{"completed to running", StatusCompleted, StatusRunning, false},
		{"failed to running", StatusFailed, StatusRunning, false},
		{"cancelled to running", StatusCancelled, StatusRunning, false},
		{"unknown status", Status("PAUSED"), StatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := canTransition(tt.from, tt.to); got != tt.allowed {
				t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestJob_Lifecycle(t *testing.T) {
	job := New("talk.mp4")

	if err := job.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if job.StartedAt.IsZero() {
		t.Error("expected StartedAt to be set")
	}
	job.SetStage(StageRender)
	if job.Progress != 40 {
		t.Errorf("expected progress 40 at render, got %d", job.Progress)
	}

	if err := job.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if job.Stage != StageDone || job.Progress != 100 {
		t.Errorf("completed job should be done at 100%%, got %s %d", job.Stage, job.Progress)
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
}

func TestJob_Fail(t *testing.T) {
	job := New("talk.mp4")
	_ = job.Start()
	job.SetStage(StageExtract)

	if err := job.Fail("ffmpeg exited"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if job.Status != StatusFailed || job.Error != "ffmpeg exited" {
		t.Errorf("unexpected failed job state: %s %q", job.Status, job.Error)
	}
	if job.Stage != StageExtract {
		t.Errorf("failed job should keep its stage, got %s", job.Stage)
	}
}

func TestJob_Cancel(t *testing.T) {
	job := New("talk.mp4")
	_ = job.Start()
	job.SetStage(StageRender)

	if err := job.Cancel("render video: context canceled"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !job.IsTerminal() {
		t.Error("cancelled job should be terminal")
	}
	if job.GetStatus() != StatusCancelled || job.Error != "render video: context canceled" {
		t.Errorf("unexpected cancelled job state: %s %q", job.GetStatus(), job.Error)
	}
	if job.GetStage() != StageRender {
		t.Errorf("cancelled job should keep its stage, got %s", job.GetStage())
	}

	// A finished job refuses the transition and keeps its error.
	if err := job.Cancel("again"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if job.Error != "render video: context canceled" {
		t.Errorf("refused cancel overwrote the error: %q", job.Error)
	}
}

func TestJob_CannotTransitionFromTerminalState(t *testing.T) {
	for _, terminal := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		job := New("talk.mp4")
		job.Status = terminal
		if err := job.Start(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s: expected ErrInvalidTransition, got %v", terminal, err)
		}
	}
}

func TestJob_IsTerminal(t *testing.T) {
	tests := map[Status]bool{
		StatusQueued:    false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	}
	for status, want := range tests {
		job := New("x")
		job.Status = status
		if got := job.IsTerminal(); got != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestJob_SetStage_NeverMovesBackwards(t *testing.T) {
	job := New("x")
	job.SetStage(StageRender)
	job.SetStage(StageExtract)
	if job.Stage != StageExtract {
		t.Errorf("expected stage to be recorded, got %s", job.Stage)
	}
	if job.Progress != 40 {
		t.Errorf("progress should not decrease, got %d", job.Progress)
	}
}

func TestJob_UpdateProgress(t *testing.T) {
	job := New("x")
	tests := []struct{ in, want int }{{50, 50}, {-10, 0}, {150, 100}}
	for _, tt := range tests {
		job.UpdateProgress(tt.in)
		if job.Progress != tt.want {
			t.Errorf("UpdateProgress(%d) = %d, want %d", tt.in, job.Progress, tt.want)
		}
	}
}

func TestJob_SetResultAndOutput(t *testing.T) {
	job := New("talk.mp4")
	chunks := []chunk.Chunk{{OldStart: 0, OldEnd: 10, NewStart: 0, NewEnd: 3}}
	job.SetResult(30, 10, 3, chunks)
	job.SetOutput("talk_speedup.mp4", "https://bucket/talk_speedup.mp4")

	if job.FrameRate != 30 || job.FrameCount != 10 || job.OutputFrames != 3 || len(job.Chunks) != 1 {
		t.Errorf("unexpected result fields: %+v", job)
	}
	if job.OutputPath != "talk_speedup.mp4" || job.OutputURL != "https://bucket/talk_speedup.mp4" {
		t.Errorf("unexpected output fields: %q %q", job.OutputPath, job.OutputURL)
	}
}

func TestJob_Clone(t *testing.T) {
	job := New("talk.mp4")
	job.Small = true
	job.SetResult(25, 100, 40, []chunk.Chunk{{OldEnd: 100, NewEnd: 40, Loud: true}})
	_ = job.Start()

	clone := job.Clone()
	if clone.ID != job.ID || clone.Status != job.Status || !clone.Small || clone.FrameRate != 25 {
		t.Errorf("clone differs from original: %+v", clone)
	}

	clone.Chunks[0].Loud = false
	if !job.Chunks[0].Loud {
		t.Error("modifying clone chunks should not affect the original")
	}

	empty := New("y").Clone()
	if empty.Chunks != nil {
		t.Error("clone of a job without chunks should keep a nil slice")
	}
}

func TestJob_GetStatus_ThreadSafe(t *testing.T) {
	job := New("x")
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = job.GetStatus()
		}()
		go func(p int) {
			defer wg.Done()
			job.UpdateProgress(p)
		}(i)
	}
	wg.Wait()
}
