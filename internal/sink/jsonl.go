package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONL is an append-only newline-delimited JSON writer. Appends are
// serialized by a mutex and each record is written in a single Write call, so
// interleaving across workers can never corrupt an individual record.
type JSONL struct {
	mu sync.Mutex
	f  *os.File
}

// NewJSONL opens (or creates) the destination file for appending. Parent
// directories are created as needed. Existing records are never overwritten.
func NewJSONL(path string) (*JSONL, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	return &JSONL{f: f}, nil
}

// Append writes one record as a single JSON line.
func (w *JSONL) Append(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record %s: %w", rec.Index, err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.Write(data); err != nil {
		return fmt.Errorf("appending record %s: %w", rec.Index, err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *JSONL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
