// Package provider contains the adapters that perform the actual remote work
// for a task: HTTP calls against OpenAI-compatible APIs and per-request CLI
// subprocesses. All adapters sit behind the Provider interface; the dispatch
// layer never sees protocol details.
package provider

import (
	"context"
	"fmt"
)

// Provider is the responder contract consumed by the retry executor.
//
// Send must return an error only for transport-level faults (network failure,
// subprocess crash, malformed wire response). A remote model refusing to
// answer is a normal text response and is left to the classifier.
type Provider interface {
	Send(ctx context.Context, req Request) (string, error)
	Close() error
}

// Config defines the configuration for a provider adapter.
type Config struct {
	Type    string // "openai" or "cli"
	BaseURL string // OpenAI-compatible endpoint base (openai type)
	APIKey  string
	Command string   // CLI binary name (cli type)
	Args    []string // extra args prepended to every CLI invocation
	Params  Params
}

// New creates a provider adapter based on cfg.Type.
// The ProcessManager is only used by subprocess-backed adapters and may be
// nil, in which case subprocesses are not tracked for shutdown.
func New(cfg Config, pm *ProcessManager) (Provider, error) {
	switch cfg.Type {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "cli":
		return NewCLIProvider(cfg, pm)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}
