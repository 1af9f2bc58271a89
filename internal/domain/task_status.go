package domain

// TaskStatus represents the pipeline stage a Task is currently in.
type TaskStatus string

const (
	TaskStatusQueued      TaskStatus = "queued"
	TaskStatusDownloading TaskStatus = "downloading"
	TaskStatusExtracting  TaskStatus = "extracting"
	TaskStatusMetadata    TaskStatus = "metadata"
	TaskStatusArtwork     TaskStatus = "artwork"
	TaskStatusComplete    TaskStatus = "complete"
	TaskStatusFailed      TaskStatus = "failed"
)

// PipelineOrder lists the non-failure statuses in the order a task visits them.
var PipelineOrder = []TaskStatus{
	TaskStatusQueued,
	TaskStatusDownloading,
	TaskStatusExtracting,
	TaskStatusMetadata,
	TaskStatusArtwork,
	TaskStatusComplete,
}

// StageProgress is the progress marker recorded when a task enters a status.
// A failed task keeps whatever progress it had reached.
var StageProgress = map[TaskStatus]float64{
	TaskStatusQueued:      0.0,
	TaskStatusDownloading: 0.2,
	TaskStatusExtracting:  0.4,
	TaskStatusMetadata:    0.6,
	TaskStatusArtwork:     0.8,
	TaskStatusComplete:    1.0,
}

// ProgressFor returns the marker for status, or -1 when the status has none.
func ProgressFor(status TaskStatus) float64 {
	p, ok := StageProgress[status]
	if !ok {
		return -1
	}
	return p
}

func (s TaskStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions can happen.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusComplete || s == TaskStatusFailed
}

// IsActive reports whether the task is queued or somewhere inside the pipeline.
func (s TaskStatus) IsActive() bool {
	return s.rank() >= 0 && !s.IsTerminal()
}

// IsRunning reports whether an executor is working on the task.
func (s TaskStatus) IsRunning() bool {
	return s.IsActive() && s != TaskStatusQueued
}

// CanTransitionTo enforces forward-only movement along PipelineOrder. Any
// non-terminal status may jump straight to failed.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == TaskStatusFailed {
		return true
	}
	from, to := s.rank(), next.rank()
	return from >= 0 && to > from
}

func (s TaskStatus) rank() int {
	for i, st := range PipelineOrder {
		if st == s {
			return i
		}
	}
	if s == TaskStatusFailed {
		return len(PipelineOrder)
	}
	return -1
}
