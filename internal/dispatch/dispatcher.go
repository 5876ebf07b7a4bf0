package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/promptbatch/promptbatch/internal/events"
	"github.com/promptbatch/promptbatch/internal/provider"
	"github.com/promptbatch/promptbatch/internal/sink"
)

// queueDepth soft-bounds the task queue. The producer and the workers start
// together, so a full queue simply paces the producer to consumer throughput
// instead of deadlocking; a bounded queue also caps memory on huge datasets.
const queueDepth = 256

// ResultSink receives one record per attempted task.
type ResultSink interface {
	Append(rec sink.Record) error
}

// Config configures one dispatcher run.
type Config struct {
	Workers  int // fixed worker pool size
	MaxTasks int // cap on tasks taken from the source; 0 means no cap

	Retry   RetryConfig
	Breaker BreakerConfig

	// QPS caps provider calls per second across all workers; 0 disables.
	QPS float64

	// PacingDelay + random(0, PacingJitter) is slept after every completed
	// task to avoid bursty request patterns against rate-limited backends.
	PacingDelay  time.Duration
	PacingJitter time.Duration

	// Snapshot is stamped into every durable record.
	Snapshot sink.ConfigSnapshot
}

// Stats summarizes a finished (or halted) run.
type Stats struct {
	Dispatched int
	Completed  int
	Errors     int
	StopReason string // non-empty iff the breaker tripped
	Elapsed    time.Duration
}

// Tripped reports whether the run was halted by the breaker.
func (s Stats) Tripped() bool {
	return s.StopReason != ""
}

// Dispatcher owns the queue, the worker pool, and the run state.
type Dispatcher struct {
	cfg      Config
	provider provider.Provider
	sink     ResultSink
	bus      *events.Bus // optional
	limiter  *rate.Limiter
	log      zerolog.Logger
}

// New validates the configuration and creates a dispatcher. Configuration
// errors are fatal here, before any task is dispatched.
func New(cfg Config, p provider.Provider, rs ResultSink, bus *events.Bus, log zerolog.Logger) (*Dispatcher, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", cfg.Workers)
	}
	if p == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if rs == nil {
		return nil, fmt.Errorf("result sink is required")
	}

	var limiter *rate.Limiter
	if cfg.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.QPS), 1)
	}

	return &Dispatcher{
		cfg:      cfg,
		provider: p,
		sink:     rs,
		bus:      bus,
		limiter:  limiter,
		log:      log,
	}, nil
}

// Run drains the source through the worker pool and returns once every
// dispatched task has been processed or discarded.
//
// The producer and the workers start concurrently: the queue is soft-bounded,
// and starting workers only after the producer finished would deadlock as
// soon as the source outgrows the queue. The total is published to the run
// state as soon as the producer finishes, which is when percent and ETA
// become meaningful.
func (d *Dispatcher) Run(ctx context.Context, src Source) (Stats, error) {
	state := NewRunState(d.cfg.Breaker)
	queue := make(chan Task, queueDepth)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)

	dispatched := make(chan int, 1)
	g.Go(func() error {
		defer close(queue)
		count := 0
		for {
			if d.cfg.MaxTasks > 0 && count >= d.cfg.MaxTasks {
				break
			}
			task, ok := src.Next()
			if !ok {
				break
			}
			select {
			case queue <- task:
				count++
			case <-gctx.Done():
				dispatched <- count
				return gctx.Err()
			}
		}
		d.log.Info().Int("tasks", count).Msg("producer finished enumerating")
		dispatched <- count
		return nil
	})

	for i := 0; i < d.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			d.runWorker(gctx, worker, queue, state)
			return nil
		})
	}

	total := <-dispatched
	state.SetTotal(total)
	d.log.Info().
		Int("total", total).
		Int("workers", d.cfg.Workers).
		Msg("dispatching")

	err := g.Wait()

	completed, errCount := state.Counts()
	stats := Stats{
		Dispatched: total,
		Completed:  completed,
		Errors:     errCount,
		StopReason: state.StopReason(),
		Elapsed:    time.Since(start),
	}
	if err != nil && ctx.Err() != nil {
		return stats, ctx.Err()
	}
	return stats, nil
}

// runWorker pulls tasks until the queue is exhausted. After a stop it keeps
// receiving but discards everything: stopped workers must not process further
// tasks, but leaving the queue non-empty would block the producer forever.
func (d *Dispatcher) runWorker(ctx context.Context, id int, queue <-chan Task, state *RunState) {
	for task := range queue {
		if state.Stopped() || ctx.Err() != nil {
			continue // drain
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				continue
			}
		}

		taskStart := time.Now()
		outcome := Execute(ctx, d.provider, task.Request, d.cfg.Retry)
		took := time.Since(taskStart)

		if err := d.sink.Append(d.buildRecord(task, outcome, took)); err != nil {
			d.log.Error().Err(err).Str("task", task.ID).Msg("failed to persist result record")
		}

		prog := state.RecordResult(outcome.Key(), outcome.Failed(), took)
		d.report(task, outcome, prog)

		// Small randomized inter-task delay to avoid burstiness.
		if d.cfg.PacingDelay > 0 || d.cfg.PacingJitter > 0 {
			delay := d.cfg.PacingDelay
			if d.cfg.PacingJitter > 0 {
				delay += time.Duration(rand.Int63n(int64(d.cfg.PacingJitter)))
			}
			if !sleep(ctx, delay) {
				continue
			}
		}
	}
}

// report emits the progress line and the observability events for one
// completed task. The progress snapshot was taken under the run state lock,
// so its fields are mutually consistent.
func (d *Dispatcher) report(task Task, outcome Outcome, prog Progress) {
	evt := d.log.Info()
	if outcome.Failed() {
		evt = d.log.Warn().
			Str("kind", string(outcome.Kind)).
			Str("error", outcome.Message)
	}
	evt.
		Str("task", task.ID).
		Str("category", task.Category).
		Int("attempts", outcome.Attempts).
		Str("took", FormatDuration(prog.LastTask)).
		Str("progress", fmt.Sprintf("%d/%d (%.1f%%)", prog.Completed, prog.Total, prog.Percent)).
		Str("elapsed", FormatDuration(prog.Elapsed)).
		Str("avg", FormatDuration(prog.AvgTask)).
		Str("eta", FormatDuration(prog.ETA)).
		Msg("task finished")

	if d.bus != nil {
		now := time.Now()
		if outcome.Failed() {
			d.bus.Publish(events.TopicTask, events.TaskFailedEvent{
				ID:        task.ID,
				Category:  task.Category,
				Kind:      string(outcome.Kind),
				Attempts:  outcome.Attempts,
				Duration:  prog.LastTask,
				Timestamp: now,
			})
		} else {
			d.bus.Publish(events.TopicTask, events.TaskCompletedEvent{
				ID:        task.ID,
				Category:  task.Category,
				Attempts:  outcome.Attempts,
				Duration:  prog.LastTask,
				Timestamp: now,
			})
		}
		d.bus.Publish(events.TopicRun, events.RunProgressEvent{
			Completed: prog.Completed,
			Total:     prog.Total,
			Errors:    prog.Errors,
			Elapsed:   prog.Elapsed,
			ETA:       prog.ETA,
			Timestamp: now,
		})
	}

	if prog.Tripped {
		d.log.Error().Str("reason", prog.StopReason).Msg("run breaker tripped, winding down")
		if d.bus != nil {
			d.bus.Publish(events.TopicRun, events.RunStoppedEvent{
				Reason:    prog.StopReason,
				Timestamp: time.Now(),
			})
		}
	}
}

// buildRecord projects one executed task onto its durable record.
func (d *Dispatcher) buildRecord(task Task, outcome Outcome, took time.Duration) sink.Record {
	rec := sink.Record{
		Index:      task.ID,
		Category:   task.Category,
		Outcome:    string(outcome.Kind),
		Answer:     outcome.Text,
		Attempts:   outcome.Attempts,
		DurationMS: took.Milliseconds(),
		Timestamp:  time.Now().UTC(),
		Config:     d.cfg.Snapshot,
	}
	if outcome.Failed() {
		rec.ErrorKey = string(outcome.Kind)
		rec.ErrorMessage = outcome.Message
	}
	for _, part := range task.Request.Parts {
		switch part.Type {
		case provider.PartText:
			rec.Prompt = append(rec.Prompt, sink.PromptPart{Type: "text", Text: part.Text})
		case provider.PartImage:
			// Image payloads stay out of the record; the path is enough to
			// reproduce the prompt.
			rec.Prompt = append(rec.Prompt, sink.PromptPart{Type: "image", ImagePath: part.ImagePath})
		}
	}
	return rec
}
