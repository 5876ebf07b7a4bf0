package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/promptbatch/promptbatch/internal/classify"
	"github.com/promptbatch/promptbatch/internal/provider"
)

// RetryConfig bounds the retry loop around one provider call.
type RetryConfig struct {
	MaxAttempts    int           // total attempts, not extra retries (default 3)
	AttemptTimeout time.Duration // per-attempt deadline; generous because agentic tool use is slow (default 600s)
	BackoffBase    time.Duration // first backoff interval, doubled each attempt (default 1s)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		AttemptTimeout: 600 * time.Second,
		BackoffBase:    time.Second,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = def.AttemptTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	return c
}

// Outcome is the result of a fully-retried task.
type Outcome struct {
	Kind     classify.Kind
	Text     string // the answer for OK; the last raw text for disguised failures
	Message  string // failure description, empty on success
	Attempts int
}

// Failed reports whether the task ended without a genuine answer.
func (o Outcome) Failed() bool {
	return !o.Kind.OK()
}

// Key identifies the failure for the consecutive-error streak. Kinds are
// specific enough on their own except for exceptions, where the message
// distinguishes one fault from another.
func (o Outcome) Key() string {
	if o.Kind == classify.KindException && o.Message != "" {
		return o.Message
	}
	return string(o.Kind)
}

// Execute runs one task through the provider with bounded retries.
//
// Each attempt runs under its own timeout. Faults and disguised failures
// (answers the classifier rejects) are retried with exponential backoff and
// jitter; on the final attempt the failure is returned as an Outcome instead.
// No error ever propagates out of Execute — a single broken task must never
// take down the dispatcher.
func Execute(ctx context.Context, p provider.Provider, req provider.Request, cfg RetryConfig) Outcome {
	cfg = cfg.withDefaults()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.BackoffBase
	policy.Multiplier = 2.0
	policy.RandomizationFactor = 0.3
	policy.MaxInterval = 5 * time.Minute
	policy.MaxElapsedTime = 0 // attempts are bounded by count, not wall time
	policy.Reset()

	for attempt := 1; ; attempt++ {
		last := attempt >= cfg.MaxAttempts

		text, err := sendOnce(ctx, p, req, cfg.AttemptTimeout)
		if err != nil {
			kind := classify.KindException
			msg := fmt.Sprintf("%T: %v", err, err)
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				kind = classify.KindTimeout
				msg = fmt.Sprintf("attempt timed out after %s", cfg.AttemptTimeout)
			}
			if last || ctx.Err() != nil {
				return Outcome{Kind: kind, Message: msg, Attempts: attempt}
			}
			if !sleep(ctx, policy.NextBackOff()) {
				return Outcome{Kind: kind, Message: msg, Attempts: attempt}
			}
			continue
		}

		res := classify.Classify(text)
		if res.Kind.OK() {
			return Outcome{Kind: classify.KindOK, Text: text, Attempts: attempt}
		}

		// Disguised failure: retry unless out of attempts, in which case the
		// text is recorded verbatim with a truncated preview in the message.
		if last {
			return Outcome{
				Kind:     res.Kind,
				Text:     text,
				Message:  res.Message,
				Attempts: attempt,
			}
		}
		if !sleep(ctx, policy.NextBackOff()) {
			return Outcome{Kind: res.Kind, Text: text, Message: res.Message, Attempts: attempt}
		}
	}
}

// sendOnce performs one provider call under a per-attempt deadline. A
// timed-out attempt is abandoned, not awaited further.
func sendOnce(ctx context.Context, p provider.Provider, req provider.Request, timeout time.Duration) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Send(attemptCtx, req)
}

// sleep waits for d or until the context is cancelled. Returns false on
// cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
