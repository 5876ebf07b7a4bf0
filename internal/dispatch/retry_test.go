package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/promptbatch/promptbatch/internal/classify"
	"github.com/promptbatch/promptbatch/internal/provider"
)

const genuineAnswer = "The picture shows a quiet harbor with several fishing boats tied to the dock."

// scriptedProvider returns its scripted results in order; entries are either
// a string (answer text) or an error.
type scriptedProvider struct {
	mu     sync.Mutex
	script []any
	calls  int
	block  bool // when true, Send blocks until the context expires
}

func (p *scriptedProvider) Send(ctx context.Context, req provider.Request) (string, error) {
	if p.block {
		<-ctx.Done()
		return "", ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls >= len(p.script) {
		return "", fmt.Errorf("unexpected call %d", p.calls+1)
	}
	entry := p.script[p.calls]
	p.calls++

	switch v := entry.(type) {
	case string:
		return v, nil
	case error:
		return "", v
	default:
		return "", fmt.Errorf("invalid script entry %T", v)
	}
}

func (p *scriptedProvider) Close() error { return nil }

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		AttemptTimeout: 2 * time.Second,
		BackoffBase:    time.Millisecond,
	}
}

// TestExecute_RetryThenSucceed: two transport failures followed by a genuine
// answer yield an OK outcome after three attempts.
func TestExecute_RetryThenSucceed(t *testing.T) {
	p := &scriptedProvider{script: []any{
		fmt.Errorf("connection reset"),
		fmt.Errorf("connection reset"),
		genuineAnswer,
	}}

	start := time.Now()
	out := Execute(context.Background(), p, provider.Request{}, fastRetry(3))

	if out.Failed() {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Text != genuineAnswer {
		t.Errorf("text = %q", out.Text)
	}
	if out.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", out.Attempts)
	}
	if p.Calls() != 3 {
		t.Errorf("provider calls = %d, want 3", p.Calls())
	}
	// Two backoff sleeps happened (1ms base, doubled): elapsed must reflect
	// at least the un-jittered minimum.
	if time.Since(start) < 2*time.Millisecond {
		t.Error("expected at least two backoff sleeps before success")
	}
}

func TestExecute_ExhaustedFaultsBecomeException(t *testing.T) {
	p := &scriptedProvider{script: []any{
		fmt.Errorf("boom 1"),
		fmt.Errorf("boom 2"),
		fmt.Errorf("boom 3"),
	}}

	out := Execute(context.Background(), p, provider.Request{}, fastRetry(3))

	if out.Kind != classify.KindException {
		t.Fatalf("kind = %q, want exception", out.Kind)
	}
	if !strings.Contains(out.Message, "boom 3") {
		t.Errorf("message should carry the final fault, got %q", out.Message)
	}
	if out.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", out.Attempts)
	}
}

func TestExecute_TimeoutKind(t *testing.T) {
	p := &scriptedProvider{block: true}

	cfg := RetryConfig{
		MaxAttempts:    2,
		AttemptTimeout: 20 * time.Millisecond,
		BackoffBase:    time.Millisecond,
	}
	out := Execute(context.Background(), p, provider.Request{}, cfg)

	if out.Kind != classify.KindTimeout {
		t.Fatalf("kind = %q, want timeout", out.Kind)
	}
	if out.Attempts != 2 {
		t.Errorf("attempts = %d, want 2 (timeouts are retried)", out.Attempts)
	}
}

// TestExecute_DisguisedFailureRetriedThenRecorded: answers the classifier
// rejects are retried, and on the final attempt returned with their kind and
// the raw text, never as a success.
func TestExecute_DisguisedFailureRetriedThenRecorded(t *testing.T) {
	degenerate := strings.Repeat("<|im_end|>", 200)
	p := &scriptedProvider{script: []any{degenerate, degenerate, degenerate}}

	out := Execute(context.Background(), p, provider.Request{}, fastRetry(3))

	if out.Kind != classify.KindFailedAnswer {
		t.Fatalf("kind = %q, want failed_answer", out.Kind)
	}
	if out.Text != degenerate {
		t.Error("final disguised failure should carry the raw text verbatim")
	}
	if out.Message == "" {
		t.Error("expected a failure message with a preview")
	}
	if p.Calls() != 3 {
		t.Errorf("provider calls = %d, want 3 (disguised failures are retried)", p.Calls())
	}
}

func TestExecute_DisguisedFailureThenRecovery(t *testing.T) {
	p := &scriptedProvider{script: []any{
		"[ERROR] transient upstream hiccup",
		genuineAnswer,
	}}

	out := Execute(context.Background(), p, provider.Request{}, fastRetry(3))

	if out.Failed() {
		t.Fatalf("expected recovery on attempt 2, got %+v", out)
	}
	if out.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", out.Attempts)
	}
}

func TestExecute_NoRetryBudgetUsesSingleAttempt(t *testing.T) {
	p := &scriptedProvider{script: []any{"[ERROR] immediate"}}

	out := Execute(context.Background(), p, provider.Request{}, fastRetry(1))

	if out.Kind != classify.KindExplicitError {
		t.Fatalf("kind = %q, want explicit_error", out.Kind)
	}
	if p.Calls() != 1 {
		t.Errorf("provider calls = %d, want 1", p.Calls())
	}
}

func TestOutcome_Key(t *testing.T) {
	ok := Outcome{Kind: classify.KindOK}
	if ok.Failed() {
		t.Error("ok outcome reported as failed")
	}

	timeout := Outcome{Kind: classify.KindTimeout, Message: "attempt timed out after 600s"}
	if timeout.Key() != "timeout" {
		t.Errorf("timeout key = %q", timeout.Key())
	}

	// Exceptions key on the message so different faults form different
	// streaks.
	exc := Outcome{Kind: classify.KindException, Message: "*url.Error: dial tcp: refused"}
	if exc.Key() != "*url.Error: dial tcp: refused" {
		t.Errorf("exception key = %q", exc.Key())
	}
}
