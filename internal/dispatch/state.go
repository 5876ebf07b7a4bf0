package dispatch

import (
	"fmt"
	"sync"
	"time"
)

// BreakerConfig holds the thresholds for the run-level stop policy.
//
// Two rules trip the breaker. The burst rule stops the run almost immediately
// when the backend fails the same way over and over (backend down, unknown
// model). The rate rule catches noisier failure patterns scattered across
// many tasks, gated by a minimum sample size so it cannot trip on
// small-sample noise.
type BreakerConfig struct {
	MaxConsecutiveErrors int     // burst rule threshold
	ErrorRateThreshold   float64 // rate rule threshold, e.g. 0.20
	ErrorRateMinSamples  int     // rate rule is inert below this many seen tasks
}

// DefaultBreakerConfig returns the default breaker thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxConsecutiveErrors: 5,
		ErrorRateThreshold:   0.20,
		ErrorRateMinSamples:  20,
	}
}

// Progress is a consistent snapshot of the run counters, taken under the same
// lock that guards them.
type Progress struct {
	Completed  int
	Total      int // 0 until the producer has finished enumerating
	Errors     int
	Seen       int
	Percent    float64
	Elapsed    time.Duration
	AvgTask    time.Duration
	LastTask   time.Duration
	ETA        time.Duration
	Stopped    bool
	StopReason string
	Tripped    bool // true only on the snapshot where the breaker tripped
}

// RunState owns the shared mutable counters of one run. All reads and updates
// go through its methods under a single mutex, which keeps the breaker
// decision atomic. Created once per run.
type RunState struct {
	mu  sync.Mutex
	cfg BreakerConfig

	start        time.Time
	total        int
	completed    int
	seen         int
	errors       int
	taskTime     time.Duration
	consecKey    string
	consecKeySet bool
	consecCount  int
	stopped      bool
	stopReason   string
}

// NewRunState creates the state for a fresh run.
func NewRunState(cfg BreakerConfig) *RunState {
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = DefaultBreakerConfig().MaxConsecutiveErrors
	}
	if cfg.ErrorRateThreshold <= 0 {
		cfg.ErrorRateThreshold = DefaultBreakerConfig().ErrorRateThreshold
	}
	if cfg.ErrorRateMinSamples <= 0 {
		cfg.ErrorRateMinSamples = DefaultBreakerConfig().ErrorRateMinSamples
	}
	return &RunState{cfg: cfg, start: time.Now()}
}

// SetTotal publishes the task count once the producer has finished
// enumerating the source.
func (s *RunState) SetTotal(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = n
}

// Stopped reports whether the breaker has tripped. Workers check this before
// taking more work; once true it never reverts.
func (s *RunState) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// StopReason returns the reason recorded by the first trip, or "".
func (s *RunState) StopReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopReason
}

// Counts returns (completed, errors) for end-of-run reporting.
func (s *RunState) Counts() (completed, errors int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed, s.errors
}

// RecordResult folds one finished task into the counters, evaluates the
// breaker, and returns a progress snapshot — all under one lock acquisition.
//
// key identifies the failure for the burst rule (the failure kind, or the
// message when the kind is too generic); it is ignored for successes. The
// consecutive-error streak is tracked across the whole worker pool, not per
// worker, and resets only on a clean success. seen and errors increase
// monotonically for the lifetime of the run; each dequeued task counts
// exactly once regardless of how many attempts it took.
func (s *RunState) RecordResult(key string, failed bool, took time.Duration) Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completed++
	s.seen++
	s.taskTime += took

	if failed {
		s.errors++
		if s.consecKeySet && key == s.consecKey {
			s.consecCount++
		} else {
			s.consecKey = key
			s.consecKeySet = true
			s.consecCount = 1
		}
	} else {
		s.consecKey = ""
		s.consecKeySet = false
		s.consecCount = 0
	}

	tripped := false
	if !s.stopped && failed && s.consecCount >= s.cfg.MaxConsecutiveErrors {
		s.stopped = true
		s.stopReason = fmt.Sprintf("same error %d times in a row: %s", s.consecCount, s.consecKey)
		tripped = true
	}
	if !s.stopped && s.seen >= s.cfg.ErrorRateMinSamples {
		rate := float64(s.errors) / float64(s.seen)
		if rate > s.cfg.ErrorRateThreshold {
			s.stopped = true
			s.stopReason = fmt.Sprintf("error rate %.1f%% exceeds threshold %.0f%%",
				rate*100, s.cfg.ErrorRateThreshold*100)
			tripped = true
		}
	}

	return s.snapshotLocked(took, tripped)
}

// snapshotLocked builds a Progress under the already-held lock.
func (s *RunState) snapshotLocked(lastTask time.Duration, tripped bool) Progress {
	p := Progress{
		Completed:  s.completed,
		Total:      s.total,
		Errors:     s.errors,
		Seen:       s.seen,
		Elapsed:    time.Since(s.start),
		LastTask:   lastTask,
		Stopped:    s.stopped,
		StopReason: s.stopReason,
		Tripped:    tripped,
	}
	if s.completed > 0 {
		p.AvgTask = s.taskTime / time.Duration(s.completed)
	}
	if s.total > 0 {
		p.Percent = float64(s.completed) / float64(s.total) * 100
		if remaining := s.total - s.completed; remaining > 0 {
			p.ETA = p.AvgTask * time.Duration(remaining)
		}
	}
	return p
}
