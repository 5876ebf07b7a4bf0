package config

import "time"

// DefaultConfig returns the built-in configuration: a local OpenAI-compatible
// endpoint, ten workers, and the stock retry and breaker thresholds.
func DefaultConfig() *RunConfig {
	return &RunConfig{
		Provider: "openai",
		Model:    "llava-v1.5-13b",

		Workers: 10,

		PacingDelayMS:  100,
		PacingJitterMS: 200,

		Retry: RetryConfig{
			MaxAttempts:    3,
			TimeoutSeconds: 600,
			BackoffSeconds: 1,
		},
		Breaker: BreakerConfig{
			MaxConsecutiveErrors: 5,
			ErrorRateThreshold:   0.20,
			ErrorRateMinSamples:  20,
		},
		Sampling: SamplingConfig{
			Rate: 1.0,
			Seed: 42,
		},
		Dataset: DatasetConfig{
			QuestionGlob: "data/processed_questions/*.json",
			ImageBase:    "data/imgs",
			ImageTypes:   []string{"SD"},
		},
		Generation: GenerationConfig{
			Temperature: 0.2,
			TopP:        1.0,
			MaxTokens:   1024,
		},

		OutputDir: "results",

		Providers: map[string]ProviderConfig{
			"openai": {
				Type:    "openai",
				BaseURL: "http://localhost:8000/v1",
				APIKey:  "${OPENAI_API_KEY}",
			},
			"openrouter": {
				Type:    "openai",
				BaseURL: "https://openrouter.ai/api/v1",
				APIKey:  "${OPENROUTER_API_KEY}",
			},
			"claude": {
				Type:    "cli",
				Command: "claude",
			},
		},
	}
}

// backoffDuration converts a fractional-seconds setting to a duration.
func backoffDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
