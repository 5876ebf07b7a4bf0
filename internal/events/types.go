package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Topic constants
const (
	TopicTask = "task"
	TopicRun  = "run"
)

// Event type constants
const (
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
	EventTypeRunProgress   = "run.progress"
	EventTypeRunStopped    = "run.stopped"
)

// TaskCompletedEvent is published when a task finishes with a genuine answer.
type TaskCompletedEvent struct {
	ID        string
	Category  string
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task exhausts its retries without a
// genuine answer.
type TaskFailedEvent struct {
	ID        string
	Category  string
	Kind      string // failure kind from the classifier taxonomy
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// RunProgressEvent is published after every completed task with a consistent
// snapshot of the run counters.
type RunProgressEvent struct {
	Completed int
	Total     int
	Errors    int
	Elapsed   time.Duration
	ETA       time.Duration
	Timestamp time.Time
}

func (e RunProgressEvent) EventType() string { return EventTypeRunProgress }
func (e RunProgressEvent) TaskID() string    { return "" }

// RunStoppedEvent is published exactly once if the run breaker trips.
type RunStoppedEvent struct {
	Reason    string
	Timestamp time.Time
}

func (e RunStoppedEvent) EventType() string { return EventTypeRunStopped }
func (e RunStoppedEvent) TaskID() string    { return "" }
