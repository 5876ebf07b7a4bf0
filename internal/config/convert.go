package config

import (
	"fmt"
	"time"

	"github.com/promptbatch/promptbatch/internal/dispatch"
	"github.com/promptbatch/promptbatch/internal/provider"
	"github.com/promptbatch/promptbatch/internal/sink"
)

// ProviderSettings resolves the selected provider entry into the adapter
// configuration, with the run's model and generation parameters applied.
func (c *RunConfig) ProviderSettings() (provider.Config, error) {
	pc, ok := c.Providers[c.Provider]
	if !ok {
		return provider.Config{}, fmt.Errorf("provider %q is not defined in providers", c.Provider)
	}
	return provider.Config{
		Type:    pc.Type,
		BaseURL: pc.BaseURL,
		APIKey:  pc.APIKey,
		Command: pc.Command,
		Args:    pc.Args,
		Params: provider.Params{
			Model:       c.Model,
			Temperature: c.Generation.Temperature,
			TopP:        c.Generation.TopP,
			MaxTokens:   c.Generation.MaxTokens,
			Seed:        c.Generation.Seed,
		},
	}, nil
}

// DispatchConfig builds the dispatcher configuration for one run.
func (c *RunConfig) DispatchConfig() dispatch.Config {
	return dispatch.Config{
		Workers:  c.Workers,
		MaxTasks: c.MaxTasks,
		Retry: dispatch.RetryConfig{
			MaxAttempts:    c.Retry.MaxAttempts,
			AttemptTimeout: backoffDuration(c.Retry.TimeoutSeconds),
			BackoffBase:    backoffDuration(c.Retry.BackoffSeconds),
		},
		Breaker: dispatch.BreakerConfig{
			MaxConsecutiveErrors: c.Breaker.MaxConsecutiveErrors,
			ErrorRateThreshold:   c.Breaker.ErrorRateThreshold,
			ErrorRateMinSamples:  c.Breaker.ErrorRateMinSamples,
		},
		QPS:          c.QPS,
		PacingDelay:  time.Duration(c.PacingDelayMS) * time.Millisecond,
		PacingJitter: time.Duration(c.PacingJitterMS) * time.Millisecond,
		Snapshot:     c.Snapshot(),
	}
}

// Snapshot is the per-record stamp of the generation settings.
func (c *RunConfig) Snapshot() sink.ConfigSnapshot {
	return sink.ConfigSnapshot{
		Provider:    c.Provider,
		Model:       c.Model,
		Temperature: c.Generation.Temperature,
		TopP:        c.Generation.TopP,
		MaxTokens:   c.Generation.MaxTokens,
		Seed:        c.Generation.Seed,
	}
}
