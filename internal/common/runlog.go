package common

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	RunOK     = "ok"
	RunFailed = "failed"
)

// RunEntry records the outcome of decoding one recording.
type RunEntry struct {
	Source   string    `json:"source"`
	Status   string    `json:"status"`
	Error    string    `json:"error,omitempty"`
	Digest   string    `json:"sha256,omitempty"`
	Events   int64     `json:"events"`
	Words    int64     `json:"words"`
	Duration float64   `json:"durationSec"`
	Ts       time.Time `json:"ts"`
}

// RunLog provides append-only access to a JSONL run log.
type RunLog struct {
	path string
	mu   sync.Mutex
}

func NewRunLog(path string) *RunLog {
	return &RunLog{path: path}
}

// Path returns the backing file path for the log.
func (l *RunLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes entry as one JSON line, creating the parent directory when
// needed.
func (l *RunLog) Append(entry RunEntry) error {
	if l == nil {
		return errors.New("nil run log")
	}
	if entry.Source == "" {
		return errors.New("run entry missing source")
	}
	if entry.Status == "" {
		entry.Status = RunOK
	}
	if entry.Ts.IsZero() {
		entry.Ts = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	dir := filepath.Dir(l.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// ReadRunLog loads every entry from the supplied JSONL file.
func ReadRunLog(path string) ([]RunEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var entries []RunEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry RunEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode run entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
