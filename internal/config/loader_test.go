package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name          string
		globalConfig  string
		projectConfig string
		check         func(t *testing.T, cfg *RunConfig)
	}{
		{
			name: "No config files - returns defaults",
			check: func(t *testing.T, cfg *RunConfig) {
				if cfg.Workers != 10 {
					t.Errorf("workers = %d, want 10", cfg.Workers)
				}
				if cfg.Retry.MaxAttempts != 3 || cfg.Retry.TimeoutSeconds != 600 {
					t.Errorf("retry = %+v, want 3 attempts / 600s", cfg.Retry)
				}
				if cfg.Breaker.MaxConsecutiveErrors != 5 || cfg.Breaker.ErrorRateThreshold != 0.20 || cfg.Breaker.ErrorRateMinSamples != 20 {
					t.Errorf("breaker = %+v, want 5 / 0.20 / 20", cfg.Breaker)
				}
				if len(cfg.Providers) != 3 {
					t.Errorf("providers count = %d, want 3", len(cfg.Providers))
				}
			},
		},
		{
			name:         "Global only - overrides scalar, keeps the rest",
			globalConfig: `{"workers": 4, "model": "gpt-4o"}`,
			check: func(t *testing.T, cfg *RunConfig) {
				if cfg.Workers != 4 {
					t.Errorf("workers = %d, want 4", cfg.Workers)
				}
				if cfg.Model != "gpt-4o" {
					t.Errorf("model = %q, want gpt-4o", cfg.Model)
				}
				// Untouched sections keep their defaults.
				if cfg.Retry.MaxAttempts != 3 {
					t.Errorf("retry.max_attempts = %d, want default 3", cfg.Retry.MaxAttempts)
				}
			},
		},
		{
			name:          "Project overrides global - project wins",
			globalConfig:  `{"workers": 4, "model": "model-x"}`,
			projectConfig: `{"model": "model-y"}`,
			check: func(t *testing.T, cfg *RunConfig) {
				if cfg.Model != "model-y" {
					t.Errorf("model = %q, want model-y", cfg.Model)
				}
				// Global setting not touched by the project survives.
				if cfg.Workers != 4 {
					t.Errorf("workers = %d, want 4", cfg.Workers)
				}
			},
		},
		{
			name:         "Provider entries merge by key",
			globalConfig: `{"providers": {"vllm": {"type": "openai", "base_url": "http://gpu-box:8000/v1"}}}`,
			check: func(t *testing.T, cfg *RunConfig) {
				if len(cfg.Providers) != 4 {
					t.Errorf("providers count = %d, want 4 (3 defaults + 1 new)", len(cfg.Providers))
				}
				p, ok := cfg.Providers["vllm"]
				if !ok || p.BaseURL != "http://gpu-box:8000/v1" {
					t.Errorf("vllm provider = %+v", p)
				}
				if _, ok := cfg.Providers["openrouter"]; !ok {
					t.Error("default provider entries must survive the merge")
				}
			},
		},
		{
			name:          "Nested section partial override",
			projectConfig: `{"breaker": {"max_consecutive_errors": 8, "error_rate_threshold": 0.5, "error_rate_min_samples": 50}}`,
			check: func(t *testing.T, cfg *RunConfig) {
				if cfg.Breaker.MaxConsecutiveErrors != 8 {
					t.Errorf("breaker.max_consecutive_errors = %d, want 8", cfg.Breaker.MaxConsecutiveErrors)
				}
				if cfg.Breaker.ErrorRateMinSamples != 50 {
					t.Errorf("breaker.error_rate_min_samples = %d, want 50", cfg.Breaker.ErrorRateMinSamples)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()

			globalPath := ""
			if tt.globalConfig != "" {
				globalPath = writeConfig(t, tmpDir, "global.json", tt.globalConfig)
			}
			projectPath := ""
			if tt.projectConfig != "" {
				projectPath = writeConfig(t, tmpDir, "project.json", tt.projectConfig)
			}

			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	tmpDir := t.TempDir()

	globalPath := writeConfig(t, tmpDir, "global.json", "{invalid json")

	_, err := Load(globalPath, "")
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

func TestLoad_MissingFilesNotError(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("expected no error for missing files, got: %v", err)
	}
	if cfg.Workers != 10 {
		t.Errorf("workers = %d, want default 10", cfg.Workers)
	}
}

func TestLoad_ExpandsAPIKeyFromEnv(t *testing.T) {
	t.Setenv("PB_TEST_KEY", "sk-from-env")

	tmpDir := t.TempDir()
	path := writeConfig(t, tmpDir, "project.json",
		`{"providers": {"remote": {"type": "openai", "base_url": "https://example.com/v1", "api_key": "${PB_TEST_KEY}"}}}`)

	cfg, err := Load("", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Providers["remote"].APIKey; got != "sk-from-env" {
		t.Errorf("api key = %q, want the expanded env value", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *RunConfig { return DefaultConfig() }

	tests := []struct {
		name    string
		mutate  func(cfg *RunConfig)
		wantErr bool
	}{
		{"defaults are valid", func(cfg *RunConfig) {}, false},
		{"zero workers", func(cfg *RunConfig) { cfg.Workers = 0 }, true},
		{"zero attempts", func(cfg *RunConfig) { cfg.Retry.MaxAttempts = 0 }, true},
		{"zero timeout", func(cfg *RunConfig) { cfg.Retry.TimeoutSeconds = 0 }, true},
		{"rate threshold above 1", func(cfg *RunConfig) { cfg.Breaker.ErrorRateThreshold = 1.5 }, true},
		{"sampling rate zero", func(cfg *RunConfig) { cfg.Sampling.Rate = 0 }, true},
		{"undefined provider", func(cfg *RunConfig) { cfg.Provider = "missing" }, true},
		{"empty dataset glob", func(cfg *RunConfig) { cfg.Dataset.QuestionGlob = "" }, true},
		{"unknown image type", func(cfg *RunConfig) { cfg.Dataset.ImageTypes = []string{"PNG"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
