// Package job provides the Job aggregate for re-timing one input file.
// It includes the Job entity with its state machine, the repository port for
// persistence, and the Service that runs the file-level workflow.
package job

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/talks-reducer/internal/chunk"
	"github.com/maauso/talks-reducer/internal/job/id"
)

// Status is where a job stands in its lifecycle.
type Status string

const (
	// StatusQueued indicates the job was created and has not started.
	StatusQueued Status = "QUEUED"
	// StatusRunning indicates the job is being processed.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the output was rendered successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates a stage returned an error; Job.Error holds it.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the context was cancelled while running.
	StatusCancelled Status = "CANCELLED"
)

// Stage is the step of the workflow a running job is in.
type Stage string

const (
	StageProbe   Stage = "probe"
	StageExtract Stage = "extract"
	StageReduce  Stage = "reduce"
	StageRender  Stage = "render"
	StageUpload  Stage = "upload"
	StageDone    Stage = "done"
)

// ErrInvalidTransition is returned for a status change the lifecycle forbids,
// such as restarting a finished job.
var ErrInvalidTransition = errors.New("job: invalid status transition")

// nextStatuses lists the statuses reachable from each status. Terminal
// statuses have none.
var nextStatuses = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

func canTransition(from, to Status) bool {
	return slices.Contains(nextStatuses[from], to)
}

// Job tracks the re-timing of a single input file.
type Job struct {
	mu sync.RWMutex

	ID     string
	Status Status
	// Stage is the workflow step the job reached last.
	Stage Stage
	// InputPath is the source media file.
	InputPath string
	// OutputPath is the rendered file.
	OutputPath string
	// OutputURL is the S3 URL when the output was uploaded.
	OutputURL string
	// Small selects the downscaled render.
	Small bool
	// FrameRate is the video frame rate used for the frame grid.
	FrameRate float64
	// FrameCount is the number of source frames.
	FrameCount int
	// OutputFrames is the number of frames after re-timing.
	OutputFrames int
	// Chunks are the finalized chunks of the re-timed track.
	Chunks []chunk.Chunk
	// Expression maps output frames back to source timestamps.
	Expression string
	// Progress is the overall completion in percent.
	Progress int
	// Error is the failure message of a FAILED job.
	Error string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time // set for every terminal status
}

// New creates a new Job for inputPath with a generated ID and QUEUED status.
func New(inputPath string) *Job {
	return NewWithID(id.Generate(), inputPath)
}

// NewWithID creates a QUEUED job with a caller-chosen ID.
func NewWithID(jobID, inputPath string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusQueued,
		InputPath: inputPath,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo moves the job to status and stamps the matching timestamps.
// A completed job also reaches StageDone at 100 percent.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted:
		j.CompletedAt = j.UpdatedAt
		j.Stage = StageDone
		j.Progress = 100
	case StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start marks a queued job as running.
func (j *Job) Start() error { return j.TransitionTo(StatusRunning) }

// Complete marks a running job as rendered.
func (j *Job) Complete() error { return j.TransitionTo(StatusCompleted) }

// Fail records errMsg and marks the job as failed.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	j.Error = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// Cancel marks the job as abandoned because its context ended and records
// reason as its Error. A refused transition leaves Error untouched.
func (j *Job) Cancel(reason string) error {
	if err := j.TransitionTo(StatusCancelled); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Error = reason
	return nil
}

// GetStatus reads Status under the job's lock.
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// GetStage reads Stage under the job's lock.
func (j *Job) GetStage() Stage {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Stage
}

// SetStage records the workflow step and its share of overall progress.
func (j *Job) SetStage(stage Stage) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Stage = stage
	if p := stageProgress[stage]; p > j.Progress {
		j.Progress = p
	}
	j.UpdatedAt = time.Now()
}

// stageProgress is the progress reached when a stage begins.
var stageProgress = map[Stage]int{
	StageProbe:   0,
	StageExtract: 5,
	StageReduce:  15,
	StageRender:  40,
	StageUpload:  95,
	StageDone:    100,
}

// SetResult stores the re-timing outcome.
func (j *Job) SetResult(frameRate float64, frameCount, outputFrames int, chunks []chunk.Chunk) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.FrameRate = frameRate
	j.FrameCount = frameCount
	j.OutputFrames = outputFrames
	j.Chunks = chunks
	j.UpdatedAt = time.Now()
}

// SetExpression stores the time-remapping expression of the result.
func (j *Job) SetExpression(expr string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Expression = expr
}

// UpdateProgress sets the overall progress, clamped to 0..100.
func (j *Job) UpdateProgress(progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress = min(max(progress, 0), 100)
	j.UpdatedAt = time.Now()
}

// SetOutput sets the output path and optional S3 URL.
func (j *Job) SetOutput(outputPath, outputURL string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputPath = outputPath
	j.OutputURL = outputURL
	j.UpdatedAt = time.Now()
}

// IsTerminal reports whether the job can no longer change status.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	next, known := nextStatuses[j.Status]
	return known && len(next) == 0
}

// Clone returns a copy that shares no mutable state with j.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var chunks []chunk.Chunk
	if j.Chunks != nil {
		chunks = make([]chunk.Chunk, len(j.Chunks))
		copy(chunks, j.Chunks)
	}

	return &Job{
		ID:           j.ID,
		Status:       j.Status,
		Stage:        j.Stage,
		InputPath:    j.InputPath,
		OutputPath:   j.OutputPath,
		OutputURL:    j.OutputURL,
		Small:        j.Small,
		FrameRate:    j.FrameRate,
		FrameCount:   j.FrameCount,
		OutputFrames: j.OutputFrames,
		Chunks:       chunks,
		Expression:   j.Expression,
		Progress:     j.Progress,
		Error:        j.Error,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
}
