// Package dispatch contains the concurrent task-execution core: a bounded
// worker pool pulling from a queue, a retry executor around the provider
// call, shared run counters with a stop breaker, and progress reporting.
package dispatch

import "github.com/promptbatch/promptbatch/internal/provider"

// Task is one opaque unit of work. Immutable once created; consumed exactly
// once by a worker unless the run is halted before it is dequeued, in which
// case it is dropped without being processed or recorded.
type Task struct {
	ID       string
	Category string
	Request  provider.Request
}

// Source yields tasks lazily. The total count is unknown until the source is
// exhausted; implementations need not be safe for concurrent use, the
// producer is the only caller.
type Source interface {
	Next() (Task, bool)
}

// sliceSource adapts a fully materialized task list to the Source interface.
type sliceSource struct {
	tasks []Task
	pos   int
}

// NewSliceSource returns a Source over the given tasks.
func NewSliceSource(tasks []Task) Source {
	return &sliceSource{tasks: tasks}
}

func (s *sliceSource) Next() (Task, bool) {
	if s.pos >= len(s.tasks) {
		return Task{}, false
	}
	t := s.tasks[s.pos]
	s.pos++
	return t, true
}
