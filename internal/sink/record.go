// Package sink persists one durable record per attempted task.
package sink

import "time"

// PromptPart is the on-disk projection of one prompt block. Image parts keep
// only the path; the base64 payload is never persisted.
type PromptPart struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ImagePath string `json:"image_path,omitempty"`
}

// ConfigSnapshot captures the generation parameters active when the task ran.
type ConfigSnapshot struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
	Seed        *int64  `json:"seed,omitempty"`
}

// Record is the durable projection of (task, outcome, timing, config). One
// record is appended per task that was actually dequeued and attempted; tasks
// dropped after a stop are never recorded.
type Record struct {
	Index        string         `json:"index"`
	Category     string         `json:"category"`
	Outcome      string         `json:"outcome"`
	Answer       string         `json:"answer"`
	ErrorKey     string         `json:"error_key,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Attempts     int            `json:"attempts"`
	DurationMS   int64          `json:"duration_ms"`
	Timestamp    time.Time      `json:"ts"`
	Prompt       []PromptPart   `json:"prompt,omitempty"`
	Config       ConfigSnapshot `json:"config"`
}
