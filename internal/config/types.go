package config

import "fmt"

// ProviderConfig defines a transport layer (HTTP endpoint or CLI command).
// Providers are separate from runs -- multiple runs can share one provider.
type ProviderConfig struct {
	Type    string   `json:"type"`               // adapter type: "openai" or "cli"
	BaseURL string   `json:"base_url,omitempty"` // OpenAI-compatible endpoint base (openai type)
	APIKey  string   `json:"api_key,omitempty"`  // bearer token; ${VAR} expands from the environment
	Command string   `json:"command,omitempty"`  // CLI binary name (cli type)
	Args    []string `json:"args,omitempty"`     // default args prepended to every invocation
}

// BreakerConfig holds the run-level stop thresholds.
type BreakerConfig struct {
	MaxConsecutiveErrors int     `json:"max_consecutive_errors"` // same-key streak that halts the run
	ErrorRateThreshold   float64 `json:"error_rate_threshold"`   // fraction of failed tasks that halts the run
	ErrorRateMinSamples  int     `json:"error_rate_min_samples"` // tasks seen before the rate rule applies
}

// RetryConfig holds the per-task retry policy.
type RetryConfig struct {
	MaxAttempts    int     `json:"max_attempts"`
	TimeoutSeconds float64 `json:"timeout_seconds"` // per-attempt deadline
	BackoffSeconds float64 `json:"backoff_seconds"` // first retry delay, doubled per attempt
}

// SamplingConfig selects a deterministic subset of the dataset.
type SamplingConfig struct {
	Rate float64 `json:"rate"` // fraction of each category to keep, 0 < rate <= 1
	Seed int64   `json:"seed"`
}

// DatasetConfig locates the question files and image tree.
type DatasetConfig struct {
	QuestionGlob string   `json:"question_glob"`        // glob over per-category JSON files
	ImageBase    string   `json:"image_base"`           // root of <category>/<type>/<index>.jpg
	ImageTypes   []string `json:"image_types"`          // which renderings to run (SD, SD_TYPO, TYPO)
	Categories   []string `json:"categories,omitempty"` // empty means all
}

// GenerationConfig carries the sampling parameters sent with every request.
type GenerationConfig struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
	Seed        *int64  `json:"seed,omitempty"`
}

// RunConfig is the top-level configuration.
type RunConfig struct {
	Provider string `json:"provider"` // key into Providers
	Model    string `json:"model"`

	Workers  int `json:"workers"`
	MaxTasks int `json:"max_tasks,omitempty"` // 0 means the whole sampled dataset

	// QPS caps provider calls per second across all workers; 0 disables.
	QPS            float64 `json:"qps,omitempty"`
	PacingDelayMS  int     `json:"pacing_delay_ms,omitempty"`
	PacingJitterMS int     `json:"pacing_jitter_ms,omitempty"`

	Retry      RetryConfig      `json:"retry"`
	Breaker    BreakerConfig    `json:"breaker"`
	Sampling   SamplingConfig   `json:"sampling"`
	Dataset    DatasetConfig    `json:"dataset"`
	Generation GenerationConfig `json:"generation"`

	OutputDir string `json:"output_dir"` // parent of per-run job folders

	Providers map[string]ProviderConfig `json:"providers"`
}

// Validate rejects configurations the dispatcher would refuse or that would
// silently do nothing.
func (c *RunConfig) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.TimeoutSeconds <= 0 {
		return fmt.Errorf("retry.timeout_seconds must be positive, got %g", c.Retry.TimeoutSeconds)
	}
	if c.Breaker.MaxConsecutiveErrors <= 0 {
		return fmt.Errorf("breaker.max_consecutive_errors must be positive, got %d", c.Breaker.MaxConsecutiveErrors)
	}
	if c.Breaker.ErrorRateThreshold <= 0 || c.Breaker.ErrorRateThreshold > 1 {
		return fmt.Errorf("breaker.error_rate_threshold must be in (0, 1], got %g", c.Breaker.ErrorRateThreshold)
	}
	if c.Sampling.Rate <= 0 || c.Sampling.Rate > 1 {
		return fmt.Errorf("sampling.rate must be in (0, 1], got %g", c.Sampling.Rate)
	}
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if _, ok := c.Providers[c.Provider]; !ok {
		return fmt.Errorf("provider %q is not defined in providers", c.Provider)
	}
	if c.Dataset.QuestionGlob == "" {
		return fmt.Errorf("dataset.question_glob is required")
	}
	for _, it := range c.Dataset.ImageTypes {
		switch it {
		case "SD", "SD_TYPO", "TYPO":
		default:
			return fmt.Errorf("unknown image type %q in dataset.image_types", it)
		}
	}
	return nil
}
