// Package jobs allocates numbered output folders for runs and writes the
// end-of-run summary. Folder names sort chronologically and are readable at a
// glance: <number>_<Provider>_<model>_<MMDD_HHMMSS>.
package jobs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const counterFile = ".run_counter"

// Manager hands out monotonically increasing run numbers under one results
// root. The counter survives restarts via a plain text file; concurrent
// managers in the same process are serialized, concurrent processes are not.
type Manager struct {
	mu   sync.Mutex
	root string
}

// NewManager creates a manager rooted at dir, creating it if necessary.
func NewManager(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating results root %s: %w", root, err)
	}
	return &Manager{root: root}, nil
}

// NextRunNumber increments and persists the run counter, returning the new
// value. The first run of a fresh root is number 1.
func (m *Manager) NextRunNumber() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := filepath.Join(m.root, counterFile)

	n := 0
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		n, err = strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			return 0, fmt.Errorf("corrupt run counter %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fresh root
	default:
		return 0, fmt.Errorf("reading run counter: %w", err)
	}

	n++
	if err := os.WriteFile(path, []byte(strconv.Itoa(n)+"\n"), 0644); err != nil {
		return 0, fmt.Errorf("writing run counter: %w", err)
	}
	return n, nil
}

// CreateRunDir allocates the next run number and creates its folder.
func (m *Manager) CreateRunDir(provider, model string, now time.Time) (string, error) {
	num, err := m.NextRunNumber()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(m.root, FolderName(num, provider, model, now))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating run folder %s: %w", dir, err)
	}
	return dir, nil
}

// FolderName formats one run folder name, e.g. "007_OpenRouter_llava-v1.5-13b_0825_143012".
func FolderName(num int, provider, model string, t time.Time) string {
	return fmt.Sprintf("%03d_%s_%s_%s",
		num, camelCase(provider), sanitize(model), t.Format("0102_150405"))
}

// camelCase capitalizes each separator-delimited word and drops the
// separators: "open-router" becomes "OpenRouter".
func camelCase(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		switch r {
		case '-', '_', ' ', '.':
			upper = true
		default:
			if upper {
				b.WriteRune(toUpper(r))
				upper = false
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}

// sanitize replaces path-hostile characters in model names; "org/model:tag"
// becomes "org-model-tag".
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '-'
		}
		return r
	}, s)
}

// Summary is the machine-readable wrap-up written next to the result records.
type Summary struct {
	RunID      string    `json:"run_id"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Dispatched int       `json:"dispatched"`
	Completed  int       `json:"completed"`
	Errors     int       `json:"errors"`
	StopReason string    `json:"stop_reason,omitempty"`
	ExitCode   int       `json:"exit_code"`
	StartedAt  time.Time `json:"started_at"`
	DurationS  float64   `json:"duration_seconds"`
}

// WriteSummary writes summary.json into the run folder.
func WriteSummary(dir string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	path := filepath.Join(dir, "summary.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
